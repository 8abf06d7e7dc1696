package disk

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type inMemoryDisk struct {
	data            []byte
	sectorSizeBytes int
}

// NewInMemoryDisk creates a Disk that stores all data in memory. Its
// contents are lost when the Disk is garbage collected, meaning that
// it is only useful for testing and for scratch file systems. All
// sectors are initially zero.
func NewInMemoryDisk(sectorSizeBytes, sectorCount int) Disk {
	return &inMemoryDisk{
		data:            make([]byte, sectorSizeBytes*sectorCount),
		sectorSizeBytes: sectorSizeBytes,
	}
}

func (d *inMemoryDisk) getSector(sector Sector, p []byte) ([]byte, error) {
	if sector < 0 || int(sector) >= d.SectorCount() {
		return nil, status.Errorf(codes.InvalidArgument, "Sector %d is outside the range [0, %d)", sector, d.SectorCount())
	}
	if len(p) != d.sectorSizeBytes {
		return nil, status.Errorf(codes.InvalidArgument, "Buffer is %d bytes in size, while sectors are %d bytes in size", len(p), d.sectorSizeBytes)
	}
	offset := int(sector) * d.sectorSizeBytes
	return d.data[offset : offset+d.sectorSizeBytes], nil
}

func (d *inMemoryDisk) ReadSector(sector Sector, p []byte) error {
	data, err := d.getSector(sector, p)
	if err != nil {
		return err
	}
	copy(p, data)
	return nil
}

func (d *inMemoryDisk) WriteSector(sector Sector, p []byte) error {
	data, err := d.getSector(sector, p)
	if err != nil {
		return err
	}
	copy(data, p)
	return nil
}

func (d *inMemoryDisk) Sync() error {
	// Memory provides no persistency, so there is nothing to flush.
	return nil
}

func (d *inMemoryDisk) Close() error {
	return nil
}

func (d *inMemoryDisk) SectorSizeBytes() int {
	return d.sectorSizeBytes
}

func (d *inMemoryDisk) SectorCount() int {
	return len(d.data) / d.sectorSizeBytes
}
