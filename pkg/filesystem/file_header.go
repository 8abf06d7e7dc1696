package filesystem

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// On-disk layout of a file header. All fields are stored as little
// endian 32-bit integers, in the order listed below. The remainder of
// the sector is filled with direct sector numbers.
const (
	headerByteLengthOffset       = 0
	headerSectorCountOffset      = 4
	headerNextHeaderSectorOffset = 8
	headerDirectSectorsOffset    = 12

	headerFieldSizeBytes = 4
)

// DirectSectorsPerHeader returns the number of data sectors that can
// be referenced by a single file header.
func DirectSectorsPerHeader(sectorSizeBytes int) int {
	return (sectorSizeBytes - headerDirectSectorsOffset) / headerFieldSizeBytes
}

// MaximumBytesPerHeader returns the number of bytes of file data that
// can be referenced by a single file header. Files that are larger
// than this continue in successor headers.
func MaximumBytesPerHeader(sectorSizeBytes int) int {
	return DirectSectorsPerHeader(sectorSizeBytes) * sectorSizeBytes
}

// FileHeader describes where the data of a file is stored on disk. A
// header references a fixed number of data sectors directly. Files
// that do not fit in a single header are described by a chain of
// headers, where every header owns its successor.
//
// A FileHeader only manages the in-memory copy of the header. Changes
// are not persisted until WriteBack() is called.
type FileHeader struct {
	disk             disk.Disk
	byteLength       int
	sectorCount      int
	nextHeaderSector disk.Sector
	directSectors    []disk.Sector
	nextHeader       *FileHeader
}

// NewFileHeader creates an empty file header for a given disk. The
// header must either be filled using Allocate() or FetchFrom().
func NewFileHeader(d disk.Disk) *FileHeader {
	directSectors := make([]disk.Sector, DirectSectorsPerHeader(d.SectorSizeBytes()))
	for i := range directSectors {
		directSectors[i] = disk.NoSector
	}
	return &FileHeader{
		disk:             d,
		nextHeaderSector: disk.NoSector,
		directSectors:    directSectors,
	}
}

// Allocate sectors for a file of a given size, claiming them from a
// SectorAllocator. Data sectors are zero-filled on disk. Additional
// headers are allocated if the file is too large to be described by a
// single header.
//
// Upon success, the number of bytes occupied by the headers of the
// chain is returned. Upon failure, sectors that were already claimed
// are not returned to the allocator. Callers are expected to discard
// the allocator instead of writing it back.
func (h *FileHeader) Allocate(allocator SectorAllocator, sizeBytes int) (int, error) {
	if sizeBytes < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "Negative file size: %d", sizeBytes)
	}
	sectorSizeBytes := h.disk.SectorSizeBytes()
	maximumBytes := MaximumBytesPerHeader(sectorSizeBytes)
	byteLength := min(sizeBytes, maximumBytes)
	sectorCount := (byteLength + sectorSizeBytes - 1) / sectorSizeBytes
	needsSuccessor := sizeBytes > maximumBytes

	requiredSectors := sectorCount
	if needsSuccessor {
		requiredSectors++
	}
	if freeSectors := allocator.CountClear(); freeSectors < requiredSectors {
		return 0, status.Errorf(codes.ResourceExhausted, "File requires %d more sectors, while only %d sectors are free", requiredSectors, freeSectors)
	}

	h.byteLength = byteLength
	h.sectorCount = sectorCount
	zeroes := make([]byte, sectorSizeBytes)
	for i := 0; i < sectorCount; i++ {
		sector := mustFindAndSet(allocator)
		if err := h.disk.WriteSector(sector, zeroes); err != nil {
			return 0, util.StatusWrapf(err, "Failed to clear data sector %d", sector)
		}
		h.directSectors[i] = sector
	}
	if !needsSuccessor {
		return sectorSizeBytes, nil
	}

	h.nextHeaderSector = mustFindAndSet(allocator)
	h.nextHeader = NewFileHeader(h.disk)
	successorBytes, err := h.nextHeader.Allocate(allocator, sizeBytes-maximumBytes)
	if err != nil {
		return 0, err
	}
	return sectorSizeBytes + successorBytes, nil
}

// mustFindAndSet claims a sector that the caller has already verified
// to be available.
func mustFindAndSet(allocator SectorAllocator) disk.Sector {
	sector, err := allocator.FindAndSet()
	if err != nil {
		panic(fmt.Sprintf("Free sector disappeared during allocation: %s", err))
	}
	return sector
}

// Deallocate returns all data sectors of the file to a
// SectorAllocator. Sectors holding successor headers are released as
// well. The sector holding this header is not released, as it is
// owned by the directory entry referencing it.
func (h *FileHeader) Deallocate(allocator SectorAllocator) {
	for _, sector := range h.directSectors[:h.sectorCount] {
		if !allocator.Test(sector) {
			panic(fmt.Sprintf("Data sector %d of file is not marked as being in use", sector))
		}
		allocator.Clear(sector)
	}
	if h.nextHeader != nil {
		if !allocator.Test(h.nextHeaderSector) {
			panic(fmt.Sprintf("Header sector %d of file is not marked as being in use", h.nextHeaderSector))
		}
		allocator.Clear(h.nextHeaderSector)
		h.nextHeader.Deallocate(allocator)
	}
}

// FetchFrom loads the contents of a header chain from disk, starting
// at a given sector.
func (h *FileHeader) FetchFrom(sector disk.Sector) error {
	// A chain can never be longer than the number of sectors on
	// the disk. Longer chains contain a cycle.
	return h.fetchFrom(sector, h.disk.SectorCount())
}

func (h *FileHeader) fetchFrom(sector disk.Sector, remainingHeaders int) error {
	if remainingHeaders <= 0 {
		return status.Errorf(codes.DataLoss, "Header chain at sector %d contains a cycle", sector)
	}
	data := make([]byte, h.disk.SectorSizeBytes())
	if err := h.disk.ReadSector(sector, data); err != nil {
		return util.StatusWrapf(err, "Failed to read header sector %d", sector)
	}
	if err := h.decode(data); err != nil {
		return util.StatusWrapf(err, "Invalid header in sector %d", sector)
	}
	h.nextHeader = nil
	if h.nextHeaderSector == disk.NoSector {
		return nil
	}
	h.nextHeader = NewFileHeader(h.disk)
	return h.nextHeader.fetchFrom(h.nextHeaderSector, remainingHeaders-1)
}

// WriteBack stores the contents of a header chain on disk, starting
// at a given sector. Successor headers are written to the sectors
// that were assigned to them during allocation.
func (h *FileHeader) WriteBack(sector disk.Sector) error {
	if err := h.disk.WriteSector(sector, h.encode()); err != nil {
		return util.StatusWrapf(err, "Failed to write header sector %d", sector)
	}
	if h.nextHeader != nil {
		return h.nextHeader.WriteBack(h.nextHeaderSector)
	}
	return nil
}

func (h *FileHeader) encode() []byte {
	data := make([]byte, h.disk.SectorSizeBytes())
	binary.LittleEndian.PutUint32(data[headerByteLengthOffset:], uint32(h.byteLength))
	binary.LittleEndian.PutUint32(data[headerSectorCountOffset:], uint32(h.sectorCount))
	binary.LittleEndian.PutUint32(data[headerNextHeaderSectorOffset:], uint32(h.nextHeaderSector))
	for i, sector := range h.directSectors {
		binary.LittleEndian.PutUint32(data[headerDirectSectorsOffset+i*headerFieldSizeBytes:], uint32(sector))
	}
	return data
}

func (h *FileHeader) decode(data []byte) error {
	sectorSizeBytes := h.disk.SectorSizeBytes()
	sectorCount := h.disk.SectorCount()
	byteLength := int(int32(binary.LittleEndian.Uint32(data[headerByteLengthOffset:])))
	headerSectorCount := int(int32(binary.LittleEndian.Uint32(data[headerSectorCountOffset:])))
	nextHeaderSector := disk.Sector(int32(binary.LittleEndian.Uint32(data[headerNextHeaderSectorOffset:])))

	if byteLength < 0 || byteLength > MaximumBytesPerHeader(sectorSizeBytes) {
		return status.Errorf(codes.DataLoss, "Byte length %d is out of range", byteLength)
	}
	if expected := (byteLength + sectorSizeBytes - 1) / sectorSizeBytes; headerSectorCount != expected {
		return status.Errorf(codes.DataLoss, "Sector count is %d, while a byte length of %d requires %d sectors", headerSectorCount, byteLength, expected)
	}
	if nextHeaderSector != disk.NoSector {
		if nextHeaderSector < 0 || int(nextHeaderSector) >= sectorCount {
			return status.Errorf(codes.DataLoss, "Successor header sector %d is outside the range [0, %d)", nextHeaderSector, sectorCount)
		}
		if byteLength != MaximumBytesPerHeader(sectorSizeBytes) {
			return status.Error(codes.DataLoss, "Header is not full, but has a successor")
		}
	}

	for i := range h.directSectors {
		h.directSectors[i] = disk.Sector(int32(binary.LittleEndian.Uint32(data[headerDirectSectorsOffset+i*headerFieldSizeBytes:])))
	}
	for i, sector := range h.directSectors[:headerSectorCount] {
		if sector < 0 || int(sector) >= sectorCount {
			return status.Errorf(codes.DataLoss, "Data sector %d at index %d is outside the range [0, %d)", sector, i, sectorCount)
		}
	}
	h.byteLength = byteLength
	h.sectorCount = headerSectorCount
	h.nextHeaderSector = nextHeaderSector
	return nil
}

// ByteToSector returns the sector that holds the byte at a given
// offset within the file. The offset must be smaller than the length
// of the file.
func (h *FileHeader) ByteToSector(offset int) disk.Sector {
	sectorSizeBytes := h.disk.SectorSizeBytes()
	if index := offset / sectorSizeBytes; index < len(h.directSectors) {
		return h.directSectors[index]
	}
	if h.nextHeader == nil {
		return disk.NoSector
	}
	return h.nextHeader.ByteToSector(offset - MaximumBytesPerHeader(sectorSizeBytes))
}

// FileLength returns the length of the file in bytes, summed across
// all headers in the chain.
func (h *FileHeader) FileLength() int {
	if h.nextHeader == nil {
		return h.byteLength
	}
	return h.byteLength + h.nextHeader.FileLength()
}

// DataSectors returns the data sectors referenced by all headers in
// the chain, in file order.
func (h *FileHeader) DataSectors() []disk.Sector {
	var sectors []disk.Sector
	for hdr := h; hdr != nil; hdr = hdr.nextHeader {
		sectors = append(sectors, hdr.directSectors[:hdr.sectorCount]...)
	}
	return sectors
}

// HeaderSectors returns the sectors holding successor headers of the
// chain. The sector holding the first header is not included.
func (h *FileHeader) HeaderSectors() []disk.Sector {
	var sectors []disk.Sector
	for hdr := h; hdr.nextHeader != nil; hdr = hdr.nextHeader {
		sectors = append(sectors, hdr.nextHeaderSector)
	}
	return sectors
}

// Print the sector numbers and contents of every header in the chain.
// Non-printable bytes are written as hexadecimal escapes.
func (h *FileHeader) Print(w io.Writer) error {
	data := make([]byte, h.disk.SectorSizeBytes())
	for hdr := h; hdr != nil; hdr = hdr.nextHeader {
		fmt.Fprintf(w, "FileHeader contents.  File size: %d.  File blocks:\n", hdr.byteLength)
		for _, sector := range hdr.directSectors[:hdr.sectorCount] {
			fmt.Fprintf(w, "%d ", sector)
		}
		fmt.Fprint(w, "\nFile contents:\n")
		remaining := hdr.byteLength
		for _, sector := range hdr.directSectors[:hdr.sectorCount] {
			if err := hdr.disk.ReadSector(sector, data); err != nil {
				return util.StatusWrapf(err, "Failed to read data sector %d", sector)
			}
			for _, c := range data[:min(remaining, len(data))] {
				if c >= ' ' && c <= '~' {
					fmt.Fprintf(w, "%c", c)
				} else {
					fmt.Fprintf(w, "\\%x", c)
				}
			}
			remaining -= len(data)
			fmt.Fprint(w, "\n")
		}
	}
	return nil
}
