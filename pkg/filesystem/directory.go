package filesystem

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DirectoryEntryCount is the number of entries stored in every
	// directory, including the root directory.
	DirectoryEntryCount = 64
	// MaximumFilenameLength is the maximum length in bytes of a
	// single pathname component.
	MaximumFilenameLength = 9

	// Layout of a directory entry on disk:
	//
	//	0: in use (uint8)
	//	1: is directory (uint8)
	//	2: reserved (uint16)
	//	4: header sector (int32, little endian)
	//	8: name, NUL terminated ([MaximumFilenameLength+1]byte)
	//	18: reserved (uint16)
	directoryEntryInUseOffset       = 0
	directoryEntryIsDirectoryOffset = 1
	directoryEntrySectorOffset      = 4
	directoryEntryNameOffset        = 8
	directoryEntrySizeBytes         = 20

	// DirectoryFileSizeBytes is the size of the file in which a
	// directory is stored.
	DirectoryFileSizeBytes = DirectoryEntryCount * directoryEntrySizeBytes
)

// DirectoryEntry is a single slot in a directory.
type DirectoryEntry struct {
	InUse       bool
	IsDirectory bool
	Sector      disk.Sector
	Name        string
}

// Directory is the in-memory copy of a directory. A directory is a
// table of a fixed number of entries, each binding a name to the
// sector holding the header of a file or subdirectory. Names are
// unique among the entries that are in use.
//
// Changes to a Directory are not persisted until WriteBack() is
// called.
type Directory struct {
	entries []DirectoryEntry
}

// NewDirectory creates an empty directory with a given number of
// slots.
func NewDirectory(entryCount int) *Directory {
	entries := make([]DirectoryEntry, entryCount)
	for i := range entries {
		entries[i].Sector = disk.NoSector
	}
	return &Directory{
		entries: entries,
	}
}

// FetchFrom loads the contents of the directory from a file.
func (d *Directory) FetchFrom(f *OpenFile) error {
	data := make([]byte, len(d.entries)*directoryEntrySizeBytes)
	if n, err := f.ReadAt(data, 0); n != len(data) {
		if err == nil || err == io.EOF {
			return status.Errorf(codes.DataLoss, "Directory file is %d bytes in size, while %d bytes were expected", n, len(data))
		}
		return util.StatusWrap(err, "Failed to read directory file")
	}
	sectorCount := f.disk.SectorCount()
	for i := range d.entries {
		entry, err := decodeDirectoryEntry(data[i*directoryEntrySizeBytes:][:directoryEntrySizeBytes])
		if err != nil {
			return util.StatusWrapf(err, "Invalid directory entry at index %d", i)
		}
		if entry.InUse && (entry.Sector < 0 || int(entry.Sector) >= sectorCount) {
			return status.Errorf(codes.DataLoss, "Directory entry %#v refers to sector %d, which is outside the range [0, %d)", entry.Name, entry.Sector, sectorCount)
		}
		d.entries[i] = entry
	}
	return nil
}

func decodeDirectoryEntry(data []byte) (DirectoryEntry, error) {
	nameField := data[directoryEntryNameOffset:][:MaximumFilenameLength+1]
	nameLength := bytes.IndexByte(nameField, 0)
	if nameLength < 0 {
		return DirectoryEntry{}, status.Error(codes.DataLoss, "Name is not NUL terminated")
	}
	return DirectoryEntry{
		InUse:       data[directoryEntryInUseOffset] != 0,
		IsDirectory: data[directoryEntryIsDirectoryOffset] != 0,
		Sector:      disk.Sector(int32(binary.LittleEndian.Uint32(data[directoryEntrySectorOffset:]))),
		Name:        string(nameField[:nameLength]),
	}, nil
}

// WriteBack stores the contents of the directory in a file.
func (d *Directory) WriteBack(f *OpenFile) error {
	data := make([]byte, len(d.entries)*directoryEntrySizeBytes)
	for i, entry := range d.entries {
		entryData := data[i*directoryEntrySizeBytes:]
		if entry.InUse {
			entryData[directoryEntryInUseOffset] = 1
		}
		if entry.IsDirectory {
			entryData[directoryEntryIsDirectoryOffset] = 1
		}
		binary.LittleEndian.PutUint32(entryData[directoryEntrySectorOffset:], uint32(entry.Sector))
		copy(entryData[directoryEntryNameOffset:][:MaximumFilenameLength], entry.Name)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return util.StatusWrap(err, "Failed to write directory file")
	}
	return nil
}

func (d *Directory) findIndex(name path.Component) int {
	nameStr := name.String()
	for i, entry := range d.entries {
		if entry.InUse && entry.Name == nameStr {
			return i
		}
	}
	return -1
}

// Find returns the sector holding the header of the file or
// subdirectory with a given name. disk.NoSector is returned if no
// such entry exists.
func (d *Directory) Find(name path.Component) disk.Sector {
	if i := d.findIndex(name); i >= 0 {
		return d.entries[i].Sector
	}
	return disk.NoSector
}

// IsDirectory returns whether the entry with a given name refers to a
// subdirectory. False is returned if no such entry exists.
func (d *Directory) IsDirectory(name path.Component) bool {
	if i := d.findIndex(name); i >= 0 {
		return d.entries[i].IsDirectory
	}
	return false
}

// Add an entry to the directory.
func (d *Directory) Add(name path.Component, sector disk.Sector, isDirectory bool) error {
	nameStr := name.String()
	if len(nameStr) > MaximumFilenameLength {
		return status.Errorf(codes.InvalidArgument, "Name %#v is longer than %d bytes", nameStr, MaximumFilenameLength)
	}
	if d.findIndex(name) >= 0 {
		return status.Errorf(codes.AlreadyExists, "Name %#v already exists", nameStr)
	}
	for i := range d.entries {
		if entry := &d.entries[i]; !entry.InUse {
			*entry = DirectoryEntry{
				InUse:       true,
				IsDirectory: isDirectory,
				Sector:      sector,
				Name:        nameStr,
			}
			return nil
		}
	}
	return status.Errorf(codes.ResourceExhausted, "Directory has no free slots for %#v", nameStr)
}

// Remove an entry from the directory.
func (d *Directory) Remove(name path.Component) error {
	i := d.findIndex(name)
	if i < 0 {
		return status.Errorf(codes.NotFound, "Name %#v does not exist", name.String())
	}
	d.entries[i].InUse = false
	return nil
}

// Entries returns all entries that are in use, in slot order.
func (d *Directory) Entries() []DirectoryEntry {
	var entries []DirectoryEntry
	for _, entry := range d.entries {
		if entry.InUse {
			entries = append(entries, entry)
		}
	}
	return entries
}

// List the names of the entries in the directory, one per line. When
// recursive, the contents of subdirectories are listed as well,
// indented by their depth.
func (d *Directory) List(w io.Writer, dsk disk.Disk, recursive bool, depth int) error {
	indentation := strings.Repeat("    ", depth)
	for _, entry := range d.Entries() {
		if !entry.IsDirectory {
			fmt.Fprintf(w, "%s[F] %s\n", indentation, entry.Name)
			continue
		}
		fmt.Fprintf(w, "%s[D] %s\n", indentation, entry.Name)
		if recursive {
			child, err := openDirectory(dsk, entry.Sector)
			if err != nil {
				return util.StatusWrapf(err, "Failed to open directory %#v", entry.Name)
			}
			if err := child.directory.List(w, dsk, true, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Print the names of the entries in the directory, followed by the
// headers and contents of the files they refer to.
func (d *Directory) Print(w io.Writer, dsk disk.Disk) error {
	fmt.Fprint(w, "Directory contents:\n")
	for _, entry := range d.Entries() {
		fmt.Fprintf(w, "Name: %s, Sector: %d\n", entry.Name, entry.Sector)
		header := NewFileHeader(dsk)
		if err := header.FetchFrom(entry.Sector); err != nil {
			return util.StatusWrapf(err, "Failed to fetch header of %#v", entry.Name)
		}
		if err := header.Print(w); err != nil {
			return err
		}
	}
	fmt.Fprint(w, "\n")
	return nil
}

// openedDirectory is a directory together with the file backing it.
type openedDirectory struct {
	file      *OpenFile
	directory *Directory
}

func openDirectory(dsk disk.Disk, sector disk.Sector) (openedDirectory, error) {
	f, err := NewOpenFile(dsk, sector)
	if err != nil {
		return openedDirectory{}, err
	}
	directory := NewDirectory(DirectoryEntryCount)
	if err := directory.FetchFrom(f); err != nil {
		return openedDirectory{}, err
	}
	return openedDirectory{
		file:      f,
		directory: directory,
	}, nil
}
