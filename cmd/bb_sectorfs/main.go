package main

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"os"

	configuration "github.com/buildbarn/bb-sectorfs/pkg/configuration/bb_sectorfs"
	"github.com/buildbarn/bb-sectorfs/pkg/diagnostics"
	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-sectorfs/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/program"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/gorilla/mux"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// bb_sectorfs provides access to a file system that is stored in a
// disk image consisting of fixed size sectors. Every invocation mounts
// the file system, applies a single command, and unmounts it again.
// The "shell" command applies multiple commands read from stdin, while
// the "serve" command keeps the file system mounted and exposes its
// state over HTTP until the process is terminated.

const usage = "Usage: bb_sectorfs bb_sectorfs.jsonnet format|shell|serve|cat|create|ls|mkdir|print|put|rm [arguments]"

func main() {
	program.RunMain(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if len(os.Args) < 3 {
			return status.Error(codes.InvalidArgument, usage)
		}
		applicationConfiguration, err := configuration.GetSectorFSConfiguration(os.Args[1])
		if err != nil {
			return util.StatusWrapf(err, "Failed to read configuration from %s", os.Args[1])
		}
		commandName, arguments := os.Args[2], os.Args[3:]
		switch commandName {
		case "format", "shell", "serve":
			if len(arguments) != 0 {
				return status.Errorf(codes.InvalidArgument, "Command %#v does not take any arguments", commandName)
			}
		default:
			if _, ok := fileSystemCommands[commandName]; !ok {
				return status.Errorf(codes.InvalidArgument, "Unknown command %#v. %s", commandName, usage)
			}
		}

		// Prevent multiple processes from mounting the same disk
		// image, as each of them would cache its own copy of the
		// free sector bitmap.
		diskConfiguration := applicationConfiguration.Disk
		diskLock, err := lockDiskImage(diskConfiguration.ImagePath)
		if err != nil {
			return err
		}
		d, err := disk.NewDiskFromConfiguration(diskConfiguration)
		if err != nil {
			diskLock.Close()
			return util.StatusWrap(err, "Failed to create disk")
		}

		options := filesystem.Options{
			MaximumOpenFiles: applicationConfiguration.MaximumOpenFiles,
			Logger:           log.New(os.Stderr, "", log.LstdFlags),
		}
		var baseFileSystem filesystem.FileSystem
		if commandName == "format" {
			baseFileSystem, err = filesystem.Format(d, options)
		} else {
			baseFileSystem, err = filesystem.Mount(d, options)
		}
		if err != nil {
			d.Close()
			diskLock.Close()
			return err
		}
		fileSystem := filesystem.NewMetricsFileSystem(baseFileSystem, clock.SystemClock)

		switch commandName {
		case "format":
			// Format() already wrote an empty file system.
		case "shell":
			err = runShell(fileSystem, os.Stdin, os.Stdout)
		case "serve":
			return serve(fileSystem, d, diskLock, applicationConfiguration.HTTPListenAddress, siblingsGroup)
		default:
			err = runFileSystemCommand(fileSystem, commandName, arguments, os.Stdout)
		}
		if unmountErr := unmount(fileSystem, d, diskLock); err == nil {
			err = unmountErr
		}
		return err
	})
}

// unmount the file system, flushing all changes to the disk image.
// The disk image is closed and its lock released afterwards.
func unmount(fileSystem filesystem.FileSystem, d disk.Disk, diskLock io.Closer) error {
	unmountErr := fileSystem.Unmount()
	closeErr := d.Close()
	diskLock.Close()
	if unmountErr != nil {
		return util.StatusWrap(unmountErr, "Failed to unmount file system")
	}
	if closeErr != nil {
		return util.StatusWrap(closeErr, "Failed to close disk image")
	}
	return nil
}

// serve the state of the file system over HTTP. The file system is
// unmounted once the program is requested to terminate.
func serve(fileSystem filesystem.FileSystem, d disk.Disk, diskLock io.Closer, listenAddress string, siblingsGroup program.Group) error {
	router := mux.NewRouter()
	diagnostics.NewFileSystemStateService(fileSystem, router)
	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		unmount(fileSystem, d, diskLock)
		return util.StatusWrapf(err, "Failed to listen on %#v", listenAddress)
	}
	server := &http.Server{Handler: router}

	siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if err := server.Serve(listener); err != http.ErrServerClosed {
			return util.StatusWrap(err, "Failed to serve HTTP requests")
		}
		return nil
	})
	siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		<-ctx.Done()
		// Let in-flight requests complete before unmounting.
		if err := server.Shutdown(context.Background()); err != nil {
			log.Print("Failed to shut down HTTP server: ", err)
		}
		return unmount(fileSystem, d, diskLock)
	})
	log.Printf("Serving file system state on %s", listener.Addr())
	return nil
}
