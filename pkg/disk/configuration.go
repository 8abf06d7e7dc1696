package disk

import (
	configuration "github.com/buildbarn/bb-sectorfs/pkg/configuration/bb_sectorfs"
	"github.com/buildbarn/bb-storage/pkg/blockdevice"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// minimumSectorSizeBytes is the smallest sector size for which a file
// header is still capable of referencing at least one data sector.
const minimumSectorSizeBytes = 16

// NewDiskFromConfiguration constructs a Disk based on parameters
// provided in a configuration file. The disk image is created if it
// does not exist yet, and grown if it is too small to hold the
// configured number of sectors. Existing contents of the disk image
// are preserved.
func NewDiskFromConfiguration(diskConfiguration *configuration.DiskConfiguration) (Disk, error) {
	if diskConfiguration == nil {
		return nil, status.Error(codes.InvalidArgument, "No disk configuration provided")
	}
	sectorSizeBytes := diskConfiguration.SectorSizeBytes
	if sectorSizeBytes < minimumSectorSizeBytes || sectorSizeBytes%4 != 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Sector size must be a multiple of 4 bytes and at least %d bytes, while %d bytes was provided", minimumSectorSizeBytes, sectorSizeBytes)
	}
	sectorCount := diskConfiguration.SectorCount
	if sectorCount < 2 {
		return nil, status.Errorf(codes.InvalidArgument, "Disk must contain at least 2 sectors, while %d sectors were provided", sectorCount)
	}

	blockDevice, _, _, err := blockdevice.NewBlockDeviceFromFile(
		diskConfiguration.ImagePath,
		sectorSizeBytes*sectorCount,
		/* zeroInitialize = */ false)
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to open disk image %#v", diskConfiguration.ImagePath)
	}
	return NewMetricsDisk(NewBlockDeviceBackedDisk(blockDevice, sectorSizeBytes, sectorCount)), nil
}
