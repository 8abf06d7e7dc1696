package mock

//go:generate mockgen -package mock -destination blockdevice.go github.com/buildbarn/bb-storage/pkg/blockdevice BlockDevice
//go:generate mockgen -package mock -destination disk.go github.com/buildbarn/bb-sectorfs/pkg/disk Disk
//go:generate mockgen -package mock -destination file_system.go github.com/buildbarn/bb-sectorfs/pkg/filesystem FileSystem
//go:generate mockgen -package mock -destination sector_allocator.go github.com/buildbarn/bb-sectorfs/pkg/filesystem SectorAllocator
