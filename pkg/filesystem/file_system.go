package filesystem

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// FreeMapSector is the sector holding the header of the file in
	// which the free sector bitmap is stored.
	FreeMapSector disk.Sector = 0
	// DirectorySector is the sector holding the header of the file
	// in which the root directory is stored.
	DirectorySector disk.Sector = 1
)

// FileSystem is a hierarchical file system stored on a Disk. Files
// and directories are addressed by slash-delimited paths.
//
// Every mutating operation first applies its changes to in-memory
// copies of the free sector bitmap and directories, and only writes
// them back to disk if the operation as a whole succeeds.
//
// Implementations are not thread-safe. Callers must ensure that no
// two operations are invoked concurrently.
type FileSystem interface {
	// Create a file of a given size, or an empty directory. Files
	// cannot be resized after creation.
	Create(p string, sizeBytes int, isDirectory bool) error
	// Open a file and register it in the descriptor table.
	Open(p string) (*OpenFile, OpenFileID, error)
	// Close a file that was opened through Open().
	Close(id OpenFileID) error
	// Read from a file that was opened through Open().
	Read(id OpenFileID, p []byte) (int, error)
	// Write into a file that was opened through Open().
	Write(id OpenFileID, p []byte) (int, error)
	// Remove a file or directory. Directories that are not empty
	// can only be removed if recursive is set.
	Remove(recursive bool, p string) error
	// List the contents of a directory.
	List(w io.Writer, recursive bool, p string) error
	// Print the free sector bitmap and the root directory, together
	// with the headers and contents of all files they reference.
	Print(w io.Writer) error
	// Unmount the file system, closing all open files. No further
	// operations may be performed afterwards.
	Unmount() error
}

// Options that are provided to Format() and Mount().
type Options struct {
	// Maximum number of files that may be opened at the same time.
	MaximumOpenFiles int
	// If set, operations on the file system are logged.
	Logger *log.Logger
}

type fileSystem struct {
	disk          disk.Disk
	freeMapFile   *OpenFile
	directoryFile *OpenFile
	descriptors   *descriptorTable
	logger        *log.Logger
}

// Format a disk to contain an empty file system, and mount it.
func Format(d disk.Disk, options Options) (FileSystem, error) {
	if DirectSectorsPerHeader(d.SectorSizeBytes()) < 1 {
		return nil, status.Errorf(codes.InvalidArgument, "Sectors of %d bytes are too small to hold a file header", d.SectorSizeBytes())
	}
	freeMap := NewPersistentBitmap(d.SectorCount())
	freeMap.Mark(FreeMapSector)
	freeMap.Mark(DirectorySector)

	freeMapHeader := NewFileHeader(d)
	if _, err := freeMapHeader.Allocate(freeMap, FreeMapFileSizeBytes(d.SectorCount())); err != nil {
		return nil, util.StatusWrap(err, "Failed to allocate free map file")
	}
	directoryHeader := NewFileHeader(d)
	if _, err := directoryHeader.Allocate(freeMap, DirectoryFileSizeBytes); err != nil {
		return nil, util.StatusWrap(err, "Failed to allocate root directory file")
	}
	if err := freeMapHeader.WriteBack(FreeMapSector); err != nil {
		return nil, err
	}
	if err := directoryHeader.WriteBack(DirectorySector); err != nil {
		return nil, err
	}

	freeMapFile, err := NewOpenFile(d, FreeMapSector)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to open free map file")
	}
	directoryFile, err := NewOpenFile(d, DirectorySector)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to open root directory file")
	}
	if err := freeMap.WriteBack(freeMapFile); err != nil {
		return nil, err
	}
	if err := NewDirectory(DirectoryEntryCount).WriteBack(directoryFile); err != nil {
		return nil, err
	}
	if err := d.Sync(); err != nil {
		return nil, util.StatusWrap(err, "Failed to synchronize disk")
	}
	return newFileSystem(d, freeMapFile, directoryFile, options), nil
}

// Mount a file system that was previously created using Format().
func Mount(d disk.Disk, options Options) (FileSystem, error) {
	freeMapFile, err := openWellKnownFile(d, FreeMapSector, FreeMapFileSizeBytes(d.SectorCount()))
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.FailedPrecondition, "Disk does not contain a formatted file system: Invalid free map file")
	}
	directoryFile, err := openWellKnownFile(d, DirectorySector, DirectoryFileSizeBytes)
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.FailedPrecondition, "Disk does not contain a formatted file system: Invalid root directory file")
	}
	return newFileSystem(d, freeMapFile, directoryFile, options), nil
}

func openWellKnownFile(d disk.Disk, sector disk.Sector, expectedSizeBytes int) (*OpenFile, error) {
	f, err := NewOpenFile(d, sector)
	if err != nil {
		return nil, err
	}
	if length := f.Length(); length != int64(expectedSizeBytes) {
		return nil, status.Errorf(codes.DataLoss, "File is %d bytes in size, while %d bytes were expected", length, expectedSizeBytes)
	}
	return f, nil
}

func newFileSystem(d disk.Disk, freeMapFile, directoryFile *OpenFile, options Options) *fileSystem {
	logger := options.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &fileSystem{
		disk:          d,
		freeMapFile:   freeMapFile,
		directoryFile: directoryFile,
		descriptors:   newDescriptorTable(options.MaximumOpenFiles),
		logger:        logger,
	}
}

func (fs *fileSystem) checkMounted() error {
	if fs.directoryFile == nil {
		return status.Error(codes.FailedPrecondition, "File system is not mounted")
	}
	return nil
}

func (fs *fileSystem) fetchFreeMap() (*PersistentBitmap, error) {
	freeMap := NewPersistentBitmap(fs.disk.SectorCount())
	if err := freeMap.FetchFrom(fs.freeMapFile); err != nil {
		return nil, err
	}
	return freeMap, nil
}

// resolve the directory containing the final component of a path.
// The root directory is loaded from disk on every call, so that any
// modifications made by a failing operation are discarded.
func (fs *fileSystem) resolve(p string) (openedDirectory, *path.Component, error) {
	if err := fs.checkMounted(); err != nil {
		return openedDirectory{}, nil, err
	}
	root := openedDirectory{
		file:      fs.directoryFile,
		directory: NewDirectory(DirectoryEntryCount),
	}
	if err := root.directory.FetchFrom(fs.directoryFile); err != nil {
		return openedDirectory{}, nil, util.StatusWrap(err, "Failed to load root directory")
	}
	containing, leaf, err := resolveContainingDirectory(fs.disk, root, p)
	if err != nil {
		return openedDirectory{}, nil, util.StatusWrapf(err, "Failed to resolve path %#v", p)
	}
	return containing, leaf, nil
}

func (fs *fileSystem) Create(p string, sizeBytes int, isDirectory bool) error {
	fs.logger.Printf("Creating %#v with size %d (directory: %t)", p, sizeBytes, isDirectory)
	if isDirectory {
		sizeBytes = DirectoryFileSizeBytes
	} else if sizeBytes < 0 {
		return status.Errorf(codes.InvalidArgument, "Negative file size: %d", sizeBytes)
	}
	containing, leaf, err := fs.resolve(p)
	if err != nil {
		return err
	}
	if leaf == nil {
		return status.Error(codes.AlreadyExists, "The root directory already exists")
	}
	if containing.directory.Find(*leaf) != disk.NoSector {
		return status.Errorf(codes.AlreadyExists, "%#v already exists", p)
	}

	freeMap, err := fs.fetchFreeMap()
	if err != nil {
		return err
	}
	sector, err := freeMap.FindAndSet()
	if err != nil {
		return util.StatusWrapf(err, "Failed to allocate header for %#v", p)
	}
	if err := containing.directory.Add(*leaf, sector, isDirectory); err != nil {
		return err
	}
	header := NewFileHeader(fs.disk)
	totalHeaderBytes, err := header.Allocate(freeMap, sizeBytes)
	if err != nil {
		return util.StatusWrapf(err, "Failed to allocate data for %#v", p)
	}

	if err := header.WriteBack(sector); err != nil {
		return err
	}
	if err := containing.directory.WriteBack(containing.file); err != nil {
		return err
	}
	if err := freeMap.WriteBack(fs.freeMapFile); err != nil {
		return err
	}
	fs.logger.Printf("Created %#v at sector %d, with %d bytes of headers", p, sector, totalHeaderBytes)
	return nil
}

func (fs *fileSystem) Open(p string) (*OpenFile, OpenFileID, error) {
	fs.logger.Printf("Opening %#v", p)
	containing, leaf, err := fs.resolve(p)
	if err != nil {
		return nil, InvalidOpenFileID, err
	}
	if leaf == nil {
		return nil, InvalidOpenFileID, status.Error(codes.InvalidArgument, "The root directory cannot be opened")
	}
	if fs.descriptors.isFull() {
		return nil, InvalidOpenFileID, status.Errorf(codes.ResourceExhausted, "Cannot open more than %d files at the same time", len(fs.descriptors.files))
	}
	sector := containing.directory.Find(*leaf)
	if sector == disk.NoSector {
		return nil, InvalidOpenFileID, status.Errorf(codes.NotFound, "%#v does not exist", p)
	}
	f, err := NewOpenFile(fs.disk, sector)
	if err != nil {
		return nil, InvalidOpenFileID, util.StatusWrapf(err, "Failed to open %#v", p)
	}
	id, err := fs.descriptors.insert(f)
	if err != nil {
		return nil, InvalidOpenFileID, err
	}
	fs.logger.Printf("Opened %#v with ID %d", p, id)
	return f, id, nil
}

func (fs *fileSystem) Close(id OpenFileID) error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	return fs.descriptors.remove(id)
}

func (fs *fileSystem) Read(id OpenFileID, p []byte) (int, error) {
	if err := fs.checkMounted(); err != nil {
		return 0, err
	}
	f, err := fs.descriptors.get(id)
	if err != nil {
		return 0, err
	}
	return f.Read(p)
}

func (fs *fileSystem) Write(id OpenFileID, p []byte) (int, error) {
	if err := fs.checkMounted(); err != nil {
		return 0, err
	}
	f, err := fs.descriptors.get(id)
	if err != nil {
		return 0, err
	}
	return f.Write(p)
}

func (fs *fileSystem) Remove(recursive bool, p string) error {
	fs.logger.Printf("Removing %#v (recursive: %t)", p, recursive)
	containing, leaf, err := fs.resolve(p)
	if err != nil {
		return err
	}
	if leaf == nil {
		return status.Error(codes.InvalidArgument, "The root directory cannot be removed")
	}
	return fs.removeEntry(containing, *leaf, recursive, p)
}

// removeEntry removes a single entry from a directory that has already
// been resolved. The contents of subdirectories are removed by
// descending into them by sector, so that the length of the original
// path does not limit the depth of the removal. The path is only used
// for reporting.
func (fs *fileSystem) removeEntry(containing openedDirectory, name path.Component, recursive bool, p string) error {
	sector := containing.directory.Find(name)
	if sector == disk.NoSector {
		return status.Errorf(codes.NotFound, "%#v does not exist", p)
	}
	if id, ok := fs.descriptors.findByHeaderSector(sector); ok {
		return status.Errorf(codes.FailedPrecondition, "%#v is still opened with ID %d", p, id)
	}

	if containing.directory.IsDirectory(name) {
		child, err := openDirectory(fs.disk, sector)
		if err != nil {
			return util.StatusWrapf(err, "Failed to open directory %#v", p)
		}
		if entries := child.directory.Entries(); len(entries) > 0 {
			if !recursive {
				return status.Errorf(codes.FailedPrecondition, "Directory %#v is not empty", p)
			}
			// Children are removed one by one, each persisting
			// its own changes. A failure leaves the children
			// that were already removed deleted.
			prefix := strings.TrimSuffix(p, "/") + "/"
			for _, entry := range entries {
				childName, ok := path.NewComponent(entry.Name)
				if !ok {
					return status.Errorf(codes.DataLoss, "Directory %#v contains an entry with invalid name %#v", p, entry.Name)
				}
				if err := fs.removeEntry(child, childName, true, prefix+entry.Name); err != nil {
					return err
				}
			}
		}
	}

	// Load the free map only after children have been removed, as
	// removing them updated the copy stored on disk.
	freeMap, err := fs.fetchFreeMap()
	if err != nil {
		return err
	}
	header := NewFileHeader(fs.disk)
	if err := header.FetchFrom(sector); err != nil {
		return util.StatusWrapf(err, "Failed to load header of %#v", p)
	}
	header.Deallocate(freeMap)
	freeMap.Clear(sector)
	if err := containing.directory.Remove(name); err != nil {
		return err
	}

	if err := freeMap.WriteBack(fs.freeMapFile); err != nil {
		return err
	}
	if err := containing.directory.WriteBack(containing.file); err != nil {
		return err
	}
	fs.logger.Printf("Removed %#v, which had its header at sector %d", p, sector)
	return nil
}

func (fs *fileSystem) List(w io.Writer, recursive bool, p string) error {
	containing, leaf, err := fs.resolve(p)
	if err != nil {
		return err
	}
	if leaf == nil {
		return containing.directory.List(w, fs.disk, recursive, 0)
	}
	sector := containing.directory.Find(*leaf)
	if sector == disk.NoSector {
		return status.Errorf(codes.NotFound, "%#v does not exist", p)
	}
	if !containing.directory.IsDirectory(*leaf) {
		return status.Errorf(codes.FailedPrecondition, "%#v is not a directory", p)
	}
	target, err := openDirectory(fs.disk, sector)
	if err != nil {
		return util.StatusWrapf(err, "Failed to open directory %#v", p)
	}
	return target.directory.List(w, fs.disk, recursive, 0)
}

func (fs *fileSystem) Print(w io.Writer) error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	fmt.Fprint(w, "Bit map file header:\n")
	if err := fs.freeMapFile.header.Print(w); err != nil {
		return err
	}
	fmt.Fprint(w, "Directory file header:\n")
	if err := fs.directoryFile.header.Print(w); err != nil {
		return err
	}
	freeMap, err := fs.fetchFreeMap()
	if err != nil {
		return err
	}
	freeMap.Print(w)
	root := NewDirectory(DirectoryEntryCount)
	if err := root.FetchFrom(fs.directoryFile); err != nil {
		return err
	}
	return root.Print(w, fs.disk)
}

func (fs *fileSystem) Unmount() error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	fs.descriptors.closeAll()
	fs.freeMapFile = nil
	fs.directoryFile = nil
	if err := fs.disk.Sync(); err != nil {
		return util.StatusWrap(err, "Failed to synchronize disk")
	}
	return nil
}
