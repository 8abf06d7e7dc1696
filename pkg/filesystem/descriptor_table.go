package filesystem

import (
	"github.com/buildbarn/bb-sectorfs/pkg/disk"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OpenFileID is the identifier under which a file is registered in the
// descriptor table of a FileSystem.
type OpenFileID int

// InvalidOpenFileID is returned by FileSystem.Open() upon failure.
const InvalidOpenFileID OpenFileID = -1

// descriptorTable maps OpenFileIDs in the range [1, len(files)] to
// files that are opened.
type descriptorTable struct {
	files       []*OpenFile
	openedCount int
}

func newDescriptorTable(maximumOpenFiles int) *descriptorTable {
	return &descriptorTable{
		files: make([]*OpenFile, maximumOpenFiles),
	}
}

func (t *descriptorTable) isFull() bool {
	return t.openedCount == len(t.files)
}

// insert a file into the first free slot of the table.
func (t *descriptorTable) insert(f *OpenFile) (OpenFileID, error) {
	for i, existing := range t.files {
		if existing == nil {
			t.files[i] = f
			t.openedCount++
			return OpenFileID(i + 1), nil
		}
	}
	return InvalidOpenFileID, status.Errorf(codes.ResourceExhausted, "Cannot open more than %d files at the same time", len(t.files))
}

func (t *descriptorTable) get(id OpenFileID) (*OpenFile, error) {
	if id < 1 || int(id) > len(t.files) {
		return nil, status.Errorf(codes.InvalidArgument, "Open file ID %d is outside the range [1, %d]", id, len(t.files))
	}
	f := t.files[id-1]
	if f == nil {
		return nil, status.Errorf(codes.NotFound, "Open file ID %d is not in use", id)
	}
	return f, nil
}

func (t *descriptorTable) remove(id OpenFileID) error {
	if _, err := t.get(id); err != nil {
		return err
	}
	t.files[id-1] = nil
	t.openedCount--
	return nil
}

// findByHeaderSector returns the ID of an open file whose header is
// stored in a given sector.
func (t *descriptorTable) findByHeaderSector(sector disk.Sector) (OpenFileID, bool) {
	for i, f := range t.files {
		if f != nil && f.HeaderSector() == sector {
			return OpenFileID(i + 1), true
		}
	}
	return InvalidOpenFileID, false
}

func (t *descriptorTable) closeAll() {
	clear(t.files)
	t.openedCount = 0
}
