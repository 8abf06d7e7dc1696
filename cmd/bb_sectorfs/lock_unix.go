//go:build darwin || freebsd || linux
// +build darwin freebsd linux

package main

import (
	"io"
	"os"

	"github.com/buildbarn/bb-storage/pkg/util"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// lockDiskImage acquires an exclusive lock on the disk image, so that
// at most one process has the file system mounted at any given time.
// The lock is released by closing the returned io.Closer.
func lockDiskImage(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to open disk image %#v", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, status.Errorf(codes.Unavailable, "Disk image %#v is in use by another process", path)
		}
		return nil, util.StatusWrapfWithCode(err, codes.Internal, "Failed to lock disk image %#v", path)
	}
	return f, nil
}
