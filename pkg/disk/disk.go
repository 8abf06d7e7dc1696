package disk

// Sector is the number of a fixed-size block of storage on a Disk.
// Sectors are numbered starting at zero.
type Sector int32

// NoSector is stored in places where a sector number is expected, but
// no sector has been allocated.
const NoSector Sector = -1

// Disk is the lowest layer of the file system. It provides synchronous
// access to storage, with whole sectors being the unit of transfer.
//
// Calls to ReadSector() and WriteSector() return only after all data
// has been transferred. Buffers passed to these functions must be
// exactly SectorSizeBytes() in size.
type Disk interface {
	ReadSector(sector Sector, p []byte) error
	WriteSector(sector Sector, p []byte) error
	Sync() error
	// Close releases the resources backing the disk. No further
	// calls may be made against the Disk afterwards.
	Close() error

	SectorSizeBytes() int
	SectorCount() int
}
