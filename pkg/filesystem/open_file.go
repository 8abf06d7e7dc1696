package filesystem

import (
	"io"

	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OpenFile provides byte-level access to the contents of a file whose
// header has been located on disk. Files have a fixed length that is
// determined when they are created. Writes past the end of the file
// are truncated.
//
// OpenFile implements io.ReaderAt, io.WriterAt and io.ReadWriteSeeker.
// The latter uses a seek position that is private to the OpenFile.
type OpenFile struct {
	disk         disk.Disk
	headerSector disk.Sector
	header       *FileHeader
	position     int64
}

var (
	_ io.ReaderAt        = (*OpenFile)(nil)
	_ io.WriterAt        = (*OpenFile)(nil)
	_ io.ReadWriteSeeker = (*OpenFile)(nil)
)

// NewOpenFile opens a file, given the sector at which its header is
// stored.
func NewOpenFile(d disk.Disk, headerSector disk.Sector) (*OpenFile, error) {
	header := NewFileHeader(d)
	if err := header.FetchFrom(headerSector); err != nil {
		return nil, err
	}
	return &OpenFile{
		disk:         d,
		headerSector: headerSector,
		header:       header,
	}, nil
}

// HeaderSector returns the sector at which the header of the file is
// stored. This value uniquely identifies the file.
func (f *OpenFile) HeaderSector() disk.Sector {
	return f.headerSector
}

// Length returns the length of the file in bytes.
func (f *OpenFile) Length() int64 {
	return int64(f.header.FileLength())
}

// ReadAt reads data from the file. Like regular files, io.EOF is
// returned when reading reaches the end of the file.
func (f *OpenFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "Negative read offset: %d", off)
	}
	length := f.Length()
	if off >= length {
		return 0, io.EOF
	}
	requested := len(p)
	if remaining := length - off; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	sectorSizeBytes := int64(f.disk.SectorSizeBytes())
	buffer := make([]byte, sectorSizeBytes)
	n := 0
	for n < len(p) {
		position := off + int64(n)
		sector := f.header.ByteToSector(int(position))
		if err := f.disk.ReadSector(sector, buffer); err != nil {
			return n, util.StatusWrapf(err, "Failed to read data sector %d", sector)
		}
		n += copy(p[n:], buffer[position%sectorSizeBytes:])
	}
	if n < requested {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes data into the file. Files cannot grow, meaning that
// data past the end of the file is discarded. io.ErrShortWrite is
// returned in that case.
func (f *OpenFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "Negative write offset: %d", off)
	}
	length := f.Length()
	if off >= length {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.ErrShortWrite
	}
	requested := len(p)
	if remaining := length - off; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	sectorSizeBytes := int64(f.disk.SectorSizeBytes())
	buffer := make([]byte, sectorSizeBytes)
	n := 0
	for n < len(p) {
		position := off + int64(n)
		sector := f.header.ByteToSector(int(position))
		offsetInSector := position % sectorSizeBytes
		chunk := min(int64(len(p)-n), sectorSizeBytes-offsetInSector)
		if offsetInSector != 0 || chunk != sectorSizeBytes {
			// Partial sector write. Preserve the existing data.
			if err := f.disk.ReadSector(sector, buffer); err != nil {
				return n, util.StatusWrapf(err, "Failed to read data sector %d", sector)
			}
		}
		copy(buffer[offsetInSector:], p[n:n+int(chunk)])
		if err := f.disk.WriteSector(sector, buffer); err != nil {
			return n, util.StatusWrapf(err, "Failed to write data sector %d", sector)
		}
		n += int(chunk)
	}
	if n < requested {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Read data from the file at the current seek position.
func (f *OpenFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.position)
	f.position += int64(n)
	if err == io.EOF && n > 0 {
		return n, nil
	}
	return n, err
}

// Write data into the file at the current seek position.
func (f *OpenFile) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.position)
	f.position += int64(n)
	return n, err
}

// Seek adjusts the position at which Read() and Write() operate.
func (f *OpenFile) Seek(offset int64, whence int) (int64, error) {
	var position int64
	switch whence {
	case io.SeekStart:
		position = offset
	case io.SeekCurrent:
		position = f.position + offset
	case io.SeekEnd:
		position = f.Length() + offset
	default:
		return f.position, status.Errorf(codes.InvalidArgument, "Invalid whence: %d", whence)
	}
	if position < 0 {
		return f.position, status.Errorf(codes.InvalidArgument, "Negative seek position: %d", position)
	}
	f.position = position
	return position, nil
}
