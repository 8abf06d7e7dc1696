package filesystem_test

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	configuration "github.com/buildbarn/bb-sectorfs/pkg/configuration/bb_sectorfs"
	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-sectorfs/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// freeSectorCount returns the number of free sectors, as recorded in
// the free map on disk.
func freeSectorCount(t *testing.T, d disk.Disk) int {
	freeMapFile, err := filesystem.NewOpenFile(d, filesystem.FreeMapSector)
	require.NoError(t, err)
	freeMap := filesystem.NewPersistentBitmap(d.SectorCount())
	require.NoError(t, freeMap.FetchFrom(freeMapFile))
	return freeMap.CountClear()
}

func listing(t *testing.T, fs filesystem.FileSystem, recursive bool, p string) string {
	var output bytes.Buffer
	require.NoError(t, fs.List(&output, recursive, p))
	return output.String()
}

func TestFileSystemFormat(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 1024)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
	require.NoError(t, err)

	// Headers of the free map and root directory, one sector of
	// free map data and ten sectors of directory data.
	require.Equal(t, 1024-13, freeSectorCount(t, d))
	require.Equal(t, "", listing(t, fs, true, "/"))

	t.Run("SectorsTooSmall", func(t *testing.T) {
		_, err := filesystem.Format(disk.NewInMemoryDisk(12, 1024), filesystem.Options{})
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Sectors of 12 bytes are too small to hold a file header"), err)
	})

	t.Run("DiskTooSmall", func(t *testing.T) {
		_, err := filesystem.Format(disk.NewInMemoryDisk(128, 8), filesystem.Options{})
		testutil.RequireEqualStatus(t, status.Error(codes.ResourceExhausted, "Failed to allocate root directory file: File requires 10 more sectors, while only 5 sectors are free"), err)
	})
}

func TestFileSystemMount(t *testing.T) {
	t.Run("Unformatted", func(t *testing.T) {
		_, err := filesystem.Mount(disk.NewInMemoryDisk(128, 1024), filesystem.Options{})
		testutil.RequirePrefixedStatus(t, status.Error(codes.FailedPrecondition, "Disk does not contain a formatted file system: Invalid free map file: "), err)
	})

	t.Run("DifferentGeometry", func(t *testing.T) {
		d := disk.NewInMemoryDisk(128, 1024)
		_, err := filesystem.Format(d, filesystem.Options{})
		require.NoError(t, err)

		// Reinterpret the same storage as a disk with twice as
		// many sectors. The free map has the wrong size.
		data := make([]byte, 128)
		larger := disk.NewInMemoryDisk(128, 2048)
		for sector := disk.Sector(0); sector < 1024; sector++ {
			require.NoError(t, d.ReadSector(sector, data))
			require.NoError(t, larger.WriteSector(sector, data))
		}
		_, err = filesystem.Mount(larger, filesystem.Options{})
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "Disk does not contain a formatted file system: Invalid free map file: File is 128 bytes in size, while 256 bytes were expected"), err)
	})

	t.Run("Persistence", func(t *testing.T) {
		d := disk.NewInMemoryDisk(128, 1024)
		fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
		require.NoError(t, err)
		require.NoError(t, fs.Create("/dir", 0, true))
		require.NoError(t, fs.Create("/dir/file", 5, false))
		_, id, err := fs.Open("/dir/file")
		require.NoError(t, err)
		n, err := fs.Write(id, []byte("Hello"))
		require.NoError(t, err)
		require.Equal(t, 5, n)
		require.NoError(t, fs.Unmount())

		// Operations are no longer permitted after unmounting.
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "File system is not mounted"), fs.Create("/other", 0, false))
		_, err = fs.Read(id, make([]byte, 5))
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "File system is not mounted"), err)

		fs, err = filesystem.Mount(d, filesystem.Options{MaximumOpenFiles: 20})
		require.NoError(t, err)
		require.Equal(t, "[D] dir\n    [F] file\n", listing(t, fs, true, "/"))
		_, id, err = fs.Open("/dir/file")
		require.NoError(t, err)
		var p [10]byte
		n, err = fs.Read(id, p[:])
		require.NoError(t, err)
		require.Equal(t, "Hello", string(p[:n]))
	})

	t.Run("ImageFile", func(t *testing.T) {
		// Contents of a disk image must survive the disk being
		// closed and opened again.
		diskConfiguration := &configuration.DiskConfiguration{
			ImagePath:       filepath.Join(t.TempDir(), "disk.img"),
			SectorSizeBytes: 128,
			SectorCount:     1024,
		}
		d, err := disk.NewDiskFromConfiguration(diskConfiguration)
		require.NoError(t, err)
		fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
		require.NoError(t, err)
		require.NoError(t, fs.Create("/a", 100, false))
		_, id, err := fs.Open("/a")
		require.NoError(t, err)
		_, err = fs.Write(id, []byte("Hello"))
		require.NoError(t, err)
		require.NoError(t, fs.Unmount())
		require.NoError(t, d.Close())

		d, err = disk.NewDiskFromConfiguration(diskConfiguration)
		require.NoError(t, err)
		fs, err = filesystem.Mount(d, filesystem.Options{MaximumOpenFiles: 20})
		require.NoError(t, err)
		require.Equal(t, "[F] a\n", listing(t, fs, true, "/"))
		require.Equal(t, 1024-15, freeSectorCount(t, d))
		_, id, err = fs.Open("/a")
		require.NoError(t, err)
		var p [5]byte
		n, err := fs.Read(id, p[:])
		require.NoError(t, err)
		require.Equal(t, "Hello", string(p[:n]))
		require.NoError(t, fs.Unmount())
		require.NoError(t, d.Close())
	})
}

func TestFileSystemCreate(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 1024)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
	require.NoError(t, err)
	initialFree := freeSectorCount(t, d)

	t.Run("Success", func(t *testing.T) {
		require.NoError(t, fs.Create("/a", 100, false))
		require.Equal(t, initialFree-2, freeSectorCount(t, d))
		f, _, err := fs.Open("/a")
		require.NoError(t, err)
		require.Equal(t, int64(100), f.Length())
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		before := freeSectorCount(t, d)
		testutil.RequireEqualStatus(t, status.Error(codes.AlreadyExists, "\"/a\" already exists"), fs.Create("/a", 10, false))
		testutil.RequireEqualStatus(t, status.Error(codes.AlreadyExists, "\"a\" already exists"), fs.Create("a", 10, true))
		testutil.RequireEqualStatus(t, status.Error(codes.AlreadyExists, "The root directory already exists"), fs.Create("/", 0, true))
		require.Equal(t, before, freeSectorCount(t, d))
	})

	t.Run("NegativeSize", func(t *testing.T) {
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Negative file size: -5"), fs.Create("/neg", -5, false))
	})

	t.Run("MissingParent", func(t *testing.T) {
		testutil.RequireEqualStatus(t, status.Error(codes.NotFound, "Failed to resolve path \"/x/y\": Directory \"x\" does not exist"), fs.Create("/x/y", 10, false))
	})

	t.Run("ParentIsFile", func(t *testing.T) {
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "Failed to resolve path \"/a/y\": \"a\" is not a directory"), fs.Create("/a/y", 10, false))
	})

	t.Run("NameTooLong", func(t *testing.T) {
		before := freeSectorCount(t, d)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Name \"waytoolongname\" is longer than 9 bytes"), fs.Create("/waytoolongname", 10, false))
		require.Equal(t, before, freeSectorCount(t, d))
	})

	t.Run("InsufficientSpace", func(t *testing.T) {
		// Failing creations must not leave any traces on disk,
		// even if sectors were claimed before running out.
		before := freeSectorCount(t, d)
		err := fs.Create("/huge", 128*1024, false)
		require.Equal(t, codes.ResourceExhausted, status.Code(err))
		require.Equal(t, before, freeSectorCount(t, d))
		require.Equal(t, "[F] a\n", listing(t, fs, false, "/"))
	})

	t.Run("DirectoryFull", func(t *testing.T) {
		require.NoError(t, fs.Create("/full", 0, true))
		for i := 0; i < filesystem.DirectoryEntryCount; i++ {
			require.NoError(t, fs.Create(fmt.Sprintf("/full/f%d", i), 0, false))
		}
		before := freeSectorCount(t, d)
		testutil.RequireEqualStatus(t, status.Error(codes.ResourceExhausted, "Directory has no free slots for \"overflow\""), fs.Create("/full/overflow", 0, false))
		require.Equal(t, before, freeSectorCount(t, d))
	})

	t.Run("PathTooLong", func(t *testing.T) {
		testutil.RequireEqualStatus(
			t,
			status.Error(codes.InvalidArgument, "Failed to resolve path \""+strings.Repeat("/", 501)+"\": Path is 501 bytes long, which exceeds the maximum of 500 bytes"),
			fs.Create(strings.Repeat("/", 501), 0, false))
	})
}

func TestFileSystemCreateRemoveRoundTrip(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 1024)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
	require.NoError(t, err)
	require.NoError(t, fs.Create("/existing", 10, false))

	for _, sizeBytes := range []int{0, 100, 3712, 10000} {
		freeBefore := freeSectorCount(t, d)
		listingBefore := listing(t, fs, true, "/")

		require.NoError(t, fs.Create("/a", sizeBytes, false))
		require.Less(t, freeSectorCount(t, d), freeBefore)
		require.NoError(t, fs.Remove(false, "/a"))

		require.Equal(t, freeBefore, freeSectorCount(t, d), "size %d", sizeBytes)
		require.Equal(t, listingBefore, listing(t, fs, true, "/"), "size %d", sizeBytes)
	}
}

func TestFileSystemRemove(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 1024)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
	require.NoError(t, err)
	initialFree := freeSectorCount(t, d)

	require.NoError(t, fs.Create("/d", 0, true))
	require.NoError(t, fs.Create("/d/x", 200, false))
	require.NoError(t, fs.Create("/d/y", 5000, false))
	require.NoError(t, fs.Create("/d/sub", 0, true))
	require.NoError(t, fs.Create("/d/sub/z", 1, false))
	require.NoError(t, fs.Create("/keep", 10, false))
	freeWithKeep := initialFree - 2

	t.Run("NotFound", func(t *testing.T) {
		testutil.RequireEqualStatus(t, status.Error(codes.NotFound, "\"/d/missing\" does not exist"), fs.Remove(false, "/d/missing"))
	})

	t.Run("Root", func(t *testing.T) {
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "The root directory cannot be removed"), fs.Remove(true, "/"))
	})

	t.Run("NonRecursiveNonEmpty", func(t *testing.T) {
		before := freeSectorCount(t, d)
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "Directory \"/d\" is not empty"), fs.Remove(false, "/d"))
		require.Equal(t, before, freeSectorCount(t, d))
		require.Equal(t, "[D] d\n    [F] x\n    [F] y\n    [D] sub\n        [F] z\n[F] keep\n", listing(t, fs, true, "/"))
	})

	t.Run("Recursive", func(t *testing.T) {
		require.NoError(t, fs.Remove(true, "/d/"))
		require.Equal(t, freeWithKeep, freeSectorCount(t, d))
		require.Equal(t, "[F] keep\n", listing(t, fs, true, "/"))
		_, _, err := fs.Open("/d/x")
		require.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("NonRecursiveEmpty", func(t *testing.T) {
		require.NoError(t, fs.Create("/empty", 0, true))
		require.NoError(t, fs.Remove(false, "/empty"))
		require.Equal(t, freeWithKeep, freeSectorCount(t, d))
	})

	t.Run("OpenFile", func(t *testing.T) {
		// Files that are opened cannot be removed, as their
		// sectors could be reused while still being accessible.
		require.NoError(t, fs.Create("/busy", 10, false))
		_, id, err := fs.Open("/busy")
		require.NoError(t, err)
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "\"/busy\" is still opened with ID 1"), fs.Remove(false, "/busy"))
		require.NoError(t, fs.Close(id))
		require.NoError(t, fs.Remove(false, "/busy"))

		// The same applies to files inside a directory that is
		// removed recursively.
		require.NoError(t, fs.Create("/dir", 0, true))
		require.NoError(t, fs.Create("/dir/busy", 10, false))
		_, id, err = fs.Open("/dir/busy")
		require.NoError(t, err)
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "\"/dir/busy\" is still opened with ID 1"), fs.Remove(true, "/dir"))
		require.Equal(t, "[D] dir\n    [F] busy\n[F] keep\n", listing(t, fs, true, "/"))
		require.NoError(t, fs.Close(id))
		require.NoError(t, fs.Remove(true, "/dir"))
		require.Equal(t, freeWithKeep, freeSectorCount(t, d))
	})

	t.Run("LongPath", func(t *testing.T) {
		// Recursive removal must not be limited by the length
		// of the paths of the children. Only the path provided
		// by the caller needs to be resolved.
		require.NoError(t, fs.Create("/a", 0, true))
		require.NoError(t, fs.Create("/a/sub", 0, true))
		require.NoError(t, fs.Create("/a/sub/f", 10, false))
		p := "/" + strings.Repeat("./", 248) + "a"
		require.Len(t, p, 498)
		require.NoError(t, fs.Remove(true, p))
		require.Equal(t, "[F] keep\n", listing(t, fs, true, "/"))
		require.Equal(t, freeWithKeep, freeSectorCount(t, d))
	})
}

func TestFileSystemOpen(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 1024)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 3})
	require.NoError(t, err)
	require.NoError(t, fs.Create("/f", 10, false))

	t.Run("NotFound", func(t *testing.T) {
		_, id, err := fs.Open("/missing")
		testutil.RequireEqualStatus(t, status.Error(codes.NotFound, "\"/missing\" does not exist"), err)
		require.Equal(t, filesystem.InvalidOpenFileID, id)
	})

	t.Run("Root", func(t *testing.T) {
		_, id, err := fs.Open("/")
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "The root directory cannot be opened"), err)
		require.Equal(t, filesystem.InvalidOpenFileID, id)
	})

	t.Run("DescriptorTableBound", func(t *testing.T) {
		for expectedID := filesystem.OpenFileID(1); expectedID <= 3; expectedID++ {
			f, id, err := fs.Open("/f")
			require.NoError(t, err)
			require.Equal(t, expectedID, id)
			require.Equal(t, int64(10), f.Length())
		}

		_, id, err := fs.Open("/f")
		testutil.RequireEqualStatus(t, status.Error(codes.ResourceExhausted, "Cannot open more than 3 files at the same time"), err)
		require.Equal(t, filesystem.InvalidOpenFileID, id)

		// Closing a file frees up its slot, which is reused by
		// the next call to Open().
		require.NoError(t, fs.Close(2))
		_, id, err = fs.Open("/f")
		require.NoError(t, err)
		require.Equal(t, filesystem.OpenFileID(2), id)
	})

	t.Run("InvalidIDs", func(t *testing.T) {
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Open file ID 0 is outside the range [1, 3]"), fs.Close(0))
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Open file ID 4 is outside the range [1, 3]"), fs.Close(4))
		require.NoError(t, fs.Close(1))
		testutil.RequireEqualStatus(t, status.Error(codes.NotFound, "Open file ID 1 is not in use"), fs.Close(1))
		_, err := fs.Write(1, []byte("x"))
		testutil.RequireEqualStatus(t, status.Error(codes.NotFound, "Open file ID 1 is not in use"), err)
	})
}

func TestFileSystemReadWrite(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 1024)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
	require.NoError(t, err)
	require.NoError(t, fs.Create("/f", 5000, false))

	contents := bytes.Repeat([]byte("0123456789"), 500)
	_, writeID, err := fs.Open("/f")
	require.NoError(t, err)
	n, err := fs.Write(writeID, contents)
	require.NoError(t, err)
	require.Equal(t, 5000, n)
	_, err = fs.Write(writeID, []byte("overflow"))
	require.Equal(t, io.ErrShortWrite, err)

	// Every descriptor has its own position.
	_, readID, err := fs.Open("/f")
	require.NoError(t, err)
	readBack, err := io.ReadAll(readerFunc(func(p []byte) (int, error) {
		return fs.Read(readID, p)
	}))
	require.NoError(t, err)
	require.Equal(t, contents, readBack)
}

type readerFunc func(p []byte) (int, error)

func (r readerFunc) Read(p []byte) (int, error) {
	return r(p)
}

func TestFileSystemList(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 1024)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
	require.NoError(t, err)
	require.NoError(t, fs.Create("/t0", 0, true))
	require.NoError(t, fs.Create("/t0/f1", 10, false))
	require.NoError(t, fs.Create("/t0/t1", 0, true))
	require.NoError(t, fs.Create("/t0/t1/f2", 10, false))
	require.NoError(t, fs.Create("/f3", 10, false))

	require.Equal(t, "[D] t0\n[F] f3\n", listing(t, fs, false, "/"))
	require.Equal(t, "[D] t0\n    [F] f1\n    [D] t1\n        [F] f2\n[F] f3\n", listing(t, fs, true, "/"))
	require.Equal(t, "[F] f1\n[D] t1\n", listing(t, fs, false, "/t0"))
	require.Equal(t, "[F] f1\n[D] t1\n    [F] f2\n", listing(t, fs, true, "t0/"))
	require.Equal(t, "[F] f2\n", listing(t, fs, false, "/t0/./t1"))

	var output bytes.Buffer
	testutil.RequireEqualStatus(t, status.Error(codes.NotFound, "\"/t0/missing\" does not exist"), fs.List(&output, false, "/t0/missing"))
	testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "\"/f3\" is not a directory"), fs.List(&output, false, "/f3"))
	testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Failed to resolve path \"/t0/..\": Parent directory references are not supported"), fs.List(&output, false, "/t0/.."))
	testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Failed to resolve path \"\": Path is empty"), fs.List(&output, false, ""))
}

func TestFileSystemPrint(t *testing.T) {
	d := disk.NewInMemoryDisk(128, 64)
	fs, err := filesystem.Format(d, filesystem.Options{MaximumOpenFiles: 20})
	require.NoError(t, err)
	require.NoError(t, fs.Create("/hi", 3, false))
	_, id, err := fs.Open("/hi")
	require.NoError(t, err)
	_, err = fs.Write(id, []byte("Hi!"))
	require.NoError(t, err)

	var output bytes.Buffer
	require.NoError(t, fs.Print(&output))

	// The free map and root directory headers, followed by the
	// contents of both files. Sectors 0 to 14 are in use.
	require.True(t, strings.HasPrefix(output.String(),
		"Bit map file header:\n"+
			"FileHeader contents.  File size: 8.  File blocks:\n"+
			"2 \n"+
			"File contents:\n"+
			"\\ff\\7f\\0\\0\\0\\0\\0\\0\n"+
			"Directory file header:\n"+
			"FileHeader contents.  File size: 1280.  File blocks:\n"+
			"3 4 5 6 7 8 9 10 11 12 \n"+
			"File contents:\n"+
			"\\1\\0\\0\\0\\d\\0\\0\\0hi\\0"), output.String())
	require.True(t, strings.HasSuffix(output.String(),
		"Bitmap set:\n"+
			"0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, \n"+
			"Directory contents:\n"+
			"Name: hi, Sector: 13\n"+
			"FileHeader contents.  File size: 3.  File blocks:\n"+
			"14 \n"+
			"File contents:\n"+
			"Hi!\n"+
			"\n"), output.String())
}

func TestFileSystemLogging(t *testing.T) {
	var output bytes.Buffer
	fs, err := filesystem.Format(disk.NewInMemoryDisk(128, 1024), filesystem.Options{
		MaximumOpenFiles: 20,
		Logger:           log.New(&output, "", 0),
	})
	require.NoError(t, err)
	require.NoError(t, fs.Create("/a", 10, false))
	require.Equal(t, "Creating \"/a\" with size 10 (directory: false)\nCreated \"/a\" at sector 13, with 128 bytes of headers\n", output.String())
}
