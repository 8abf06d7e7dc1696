package disk

import (
	"io"

	"github.com/buildbarn/bb-storage/pkg/blockdevice"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type blockDeviceBackedDisk struct {
	blockDevice     blockdevice.BlockDevice
	sectorSizeBytes int
	sectorCount     int
}

// NewBlockDeviceBackedDisk creates a Disk that stores its sectors on a
// block device. Sector n is stored at byte offset n * sectorSizeBytes.
// The sector size of the Disk is independent of the sector size of the
// block device, as the Disk only makes use of ReadAt() and WriteAt().
func NewBlockDeviceBackedDisk(blockDevice blockdevice.BlockDevice, sectorSizeBytes, sectorCount int) Disk {
	return &blockDeviceBackedDisk{
		blockDevice:     blockDevice,
		sectorSizeBytes: sectorSizeBytes,
		sectorCount:     sectorCount,
	}
}

func (d *blockDeviceBackedDisk) checkSector(sector Sector, p []byte) error {
	if sector < 0 || int(sector) >= d.sectorCount {
		return status.Errorf(codes.InvalidArgument, "Sector %d is outside the range [0, %d)", sector, d.sectorCount)
	}
	if len(p) != d.sectorSizeBytes {
		return status.Errorf(codes.InvalidArgument, "Buffer is %d bytes in size, while sectors are %d bytes in size", len(p), d.sectorSizeBytes)
	}
	return nil
}

// toDeviceOffset converts a sector number to a byte offset on the
// block device.
func (d *blockDeviceBackedDisk) toDeviceOffset(sector Sector) int64 {
	return int64(sector) * int64(d.sectorSizeBytes)
}

func (d *blockDeviceBackedDisk) ReadSector(sector Sector, p []byte) error {
	if err := d.checkSector(sector, p); err != nil {
		return err
	}
	n, err := d.blockDevice.ReadAt(p, d.toDeviceOffset(sector))
	if err != nil && err != io.EOF {
		return err
	}
	if n != len(p) {
		return status.Errorf(codes.Internal, "Read against block device returned %d bytes, while %d bytes were expected", n, len(p))
	}
	return nil
}

func (d *blockDeviceBackedDisk) WriteSector(sector Sector, p []byte) error {
	if err := d.checkSector(sector, p); err != nil {
		return err
	}
	n, err := d.blockDevice.WriteAt(p, d.toDeviceOffset(sector))
	if err != nil {
		return err
	}
	if n != len(p) {
		return status.Errorf(codes.Internal, "Write against block device returned %d bytes, while %d bytes were expected", n, len(p))
	}
	return nil
}

func (d *blockDeviceBackedDisk) Sync() error {
	return d.blockDevice.Sync()
}

func (d *blockDeviceBackedDisk) Close() error {
	return d.blockDevice.Close()
}

func (d *blockDeviceBackedDisk) SectorSizeBytes() int {
	return d.sectorSizeBytes
}

func (d *blockDeviceBackedDisk) SectorCount() int {
	return d.sectorCount
}
