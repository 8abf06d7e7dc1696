//go:build !darwin && !freebsd && !linux
// +build !darwin,!freebsd,!linux

package main

import (
	"io"
)

type noopLock struct{}

func (noopLock) Close() error {
	return nil
}

// lockDiskImage is a no-op on platforms without flock(). Callers must
// ensure that the disk image is not used by multiple processes.
func lockDiskImage(path string) (io.Closer, error) {
	return noopLock{}, nil
}
