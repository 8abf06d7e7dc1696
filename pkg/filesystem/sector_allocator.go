package filesystem

import (
	"github.com/buildbarn/bb-sectorfs/pkg/disk"
)

// SectorAllocator is used by FileHeader to allocate space on the disk
// that is needed to store files and their headers.
//
// Implementations are not thread-safe. All calls against a single
// SectorAllocator must be made by a single operation at a time.
type SectorAllocator interface {
	// Find a sector that is not in use, mark it as being in use and
	// return its number. An error is returned if all sectors are
	// in use.
	FindAndSet() (disk.Sector, error)
	// Mark a sector as being in use, regardless of whether it was
	// in use before. This is used to reserve sectors at well-known
	// locations.
	Mark(sector disk.Sector)
	// Mark a sector as no longer being in use. It is invalid to
	// call this function on a sector that is not in use.
	Clear(sector disk.Sector)
	// Test whether a sector is in use.
	Test(sector disk.Sector) bool
	// Count the number of sectors that are not in use.
	CountClear() int
}
