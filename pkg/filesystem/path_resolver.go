package filesystem

import (
	"github.com/buildbarn/bb-sectorfs/pkg/disk"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MaximumPathLength is the maximum length in bytes of a path passed to
// FileSystem.
const MaximumPathLength = 500

// containingDirectoryResolver is an implementation of path.ScopeWalker
// and path.ComponentWalker that walks the directory hierarchy to
// obtain the directory that contains the final component of a path.
//
// Descending into a directory is deferred until the next component is
// observed. This means that paths with trailing slashes resolve to the
// same leaf as their counterparts without.
type containingDirectoryResolver struct {
	disk    disk.Disk
	stack   []openedDirectory
	pending *path.Component
	leaf    *path.Component
}

func (r *containingDirectoryResolver) descend() error {
	if r.pending == nil {
		return nil
	}
	name := *r.pending
	r.pending = nil

	current := r.stack[len(r.stack)-1].directory
	sector := current.Find(name)
	if sector == disk.NoSector {
		return status.Errorf(codes.NotFound, "Directory %#v does not exist", name.String())
	}
	if !current.IsDirectory(name) {
		return status.Errorf(codes.FailedPrecondition, "%#v is not a directory", name.String())
	}
	child, err := openDirectory(r.disk, sector)
	if err != nil {
		return err
	}
	r.stack = append(r.stack, child)
	return nil
}

func (r *containingDirectoryResolver) OnAbsolute() (path.ComponentWalker, error) {
	return r, nil
}

func (r *containingDirectoryResolver) OnRelative() (path.ComponentWalker, error) {
	// There is no notion of a working directory. Relative paths
	// are resolved against the root directory.
	return r, nil
}

func (containingDirectoryResolver) OnDriveLetter(drive rune) (path.ComponentWalker, error) {
	return nil, status.Error(codes.InvalidArgument, "Drive letters are not supported")
}

func (containingDirectoryResolver) OnShare(server, share string) (path.ComponentWalker, error) {
	return nil, status.Error(codes.InvalidArgument, "Network shares are not supported")
}

func (r *containingDirectoryResolver) OnDirectory(name path.Component) (path.GotDirectoryOrSymlink, error) {
	if err := r.descend(); err != nil {
		return nil, err
	}
	r.pending = &name
	return path.GotDirectory{
		Child:        r,
		IsReversible: false,
	}, nil
}

func (r *containingDirectoryResolver) OnTerminal(name path.Component) (*path.GotSymlink, error) {
	if err := r.descend(); err != nil {
		return nil, err
	}
	r.leaf = &name
	return nil, nil
}

func (containingDirectoryResolver) OnUp() (path.ComponentWalker, error) {
	return nil, status.Error(codes.InvalidArgument, "Parent directory references are not supported")
}

// resolveContainingDirectory resolves a slash-delimited path, starting
// at the root directory. It returns the directory containing the final
// component of the path and the name of that component. The name is
// nil if the path refers to the root directory itself.
func resolveContainingDirectory(dsk disk.Disk, root openedDirectory, p string) (openedDirectory, *path.Component, error) {
	if p == "" {
		return openedDirectory{}, nil, status.Error(codes.InvalidArgument, "Path is empty")
	}
	if len(p) > MaximumPathLength {
		return openedDirectory{}, nil, status.Errorf(codes.InvalidArgument, "Path is %d bytes long, which exceeds the maximum of %d bytes", len(p), MaximumPathLength)
	}
	r := containingDirectoryResolver{
		disk:  dsk,
		stack: []openedDirectory{root},
	}
	if err := path.Resolve(path.UNIXFormat.NewParser(p), &r); err != nil {
		return openedDirectory{}, nil, err
	}
	leaf := r.leaf
	if leaf == nil {
		leaf = r.pending
	}
	return r.stack[len(r.stack)-1], leaf, nil
}
