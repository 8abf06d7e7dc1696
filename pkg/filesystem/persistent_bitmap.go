package filesystem

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	allBits = ^uint64(0)
)

// FreeMapFileSizeBytes returns the size of the file in which a
// PersistentBitmap for a given number of sectors is stored.
func FreeMapFileSizeBytes(sectorCount int) int {
	return (sectorCount + 63) / 64 * 8
}

// PersistentBitmap is a SectorAllocator that stores information on
// which sectors are in use in a bitmap. The bitmap can be loaded from
// and stored in a file, so that it survives across mounts of the file
// system.
//
// Sectors are allocated by sequentially scanning the bitmap from the
// start, meaning that the lowest numbered free sector is always
// returned.
type PersistentBitmap struct {
	usedBitmap  []uint64 // One bits indicate sectors that are in use.
	sectorCount int
}

var _ SectorAllocator = (*PersistentBitmap)(nil)

// NewPersistentBitmap creates a PersistentBitmap for a disk with a
// given number of sectors. Initially, all sectors are free.
func NewPersistentBitmap(sectorCount int) *PersistentBitmap {
	b := &PersistentBitmap{
		usedBitmap:  make([]uint64, (sectorCount+63)/64),
		sectorCount: sectorCount,
	}
	b.markTrailingBits()
	return b
}

// markTrailingBits marks the bits in the final bitmap word that do not
// correspond to any sector as being in use. This prevents the need for
// explicit bounds checking inside FindAndSet() and CountClear().
func (b *PersistentBitmap) markTrailingBits() {
	if remainder := b.sectorCount % 64; remainder != 0 {
		b.usedBitmap[len(b.usedBitmap)-1] |= allBits << remainder
	}
}

func (b *PersistentBitmap) checkSector(sector disk.Sector) (int, uint64) {
	if sector < 0 || int(sector) >= b.sectorCount {
		panic(fmt.Sprintf("Sector %d is outside the range [0, %d)", sector, b.sectorCount))
	}
	return int(sector) / 64, uint64(1) << (sector % 64)
}

// FindAndSet marks the lowest numbered free sector as being in use.
func (b *PersistentBitmap) FindAndSet() (disk.Sector, error) {
	for i, word := range b.usedBitmap {
		if word != allBits {
			bit := bits.TrailingZeros64(^word)
			b.usedBitmap[i] |= uint64(1) << bit
			return disk.Sector(i*64 + bit), nil
		}
	}
	return disk.NoSector, status.Error(codes.ResourceExhausted, "No free sectors available")
}

// Mark a sector as being in use.
func (b *PersistentBitmap) Mark(sector disk.Sector) {
	index, mask := b.checkSector(sector)
	b.usedBitmap[index] |= mask
}

// Clear a sector that is in use. Clearing a sector that is not in use
// indicates that the bitmap is inconsistent with the structures
// referencing it, which is not recoverable.
func (b *PersistentBitmap) Clear(sector disk.Sector) {
	index, mask := b.checkSector(sector)
	if b.usedBitmap[index]&mask == 0 {
		panic(fmt.Sprintf("Attempted to free sector %d, even though it's not allocated", sector))
	}
	b.usedBitmap[index] &^= mask
}

// Test whether a sector is in use.
func (b *PersistentBitmap) Test(sector disk.Sector) bool {
	index, mask := b.checkSector(sector)
	return b.usedBitmap[index]&mask != 0
}

// CountClear returns the number of sectors that are not in use.
func (b *PersistentBitmap) CountClear() int {
	count := 0
	for _, word := range b.usedBitmap {
		count += bits.OnesCount64(^word)
	}
	return count
}

// FetchFrom loads the contents of the bitmap from a file.
func (b *PersistentBitmap) FetchFrom(f *OpenFile) error {
	data := make([]byte, len(b.usedBitmap)*8)
	if n, err := f.ReadAt(data, 0); n != len(data) {
		if err == nil || err == io.EOF {
			return status.Errorf(codes.DataLoss, "Free map file is %d bytes in size, while %d bytes were expected", n, len(data))
		}
		return util.StatusWrap(err, "Failed to read free map file")
	}
	for i := range b.usedBitmap {
		b.usedBitmap[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	b.markTrailingBits()
	return nil
}

// WriteBack stores the contents of the bitmap in a file.
func (b *PersistentBitmap) WriteBack(f *OpenFile) error {
	data := make([]byte, len(b.usedBitmap)*8)
	for i, word := range b.usedBitmap {
		binary.LittleEndian.PutUint64(data[i*8:], word)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return util.StatusWrap(err, "Failed to write free map file")
	}
	return nil
}

// Print the numbers of all sectors that are in use.
func (b *PersistentBitmap) Print(w io.Writer) {
	fmt.Fprint(w, "Bitmap set:\n")
	for sector := 0; sector < b.sectorCount; sector++ {
		if b.Test(disk.Sector(sector)) {
			fmt.Fprintf(w, "%d, ", sector)
		}
	}
	fmt.Fprint(w, "\n")
}
