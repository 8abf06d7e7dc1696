package main

import (
	"io"
	"os"
	"sort"

	"github.com/buildbarn/bb-sectorfs/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/spf13/pflag"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fileSystemCommand is a command that operates on a mounted file
// system. These commands can be invoked both from the command line and
// from the interactive shell.
type fileSystemCommand struct {
	usage string
	run   func(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error
}

// fileSystemCommands is populated by init(), as the commands
// themselves look up their usage in it.
var fileSystemCommands map[string]fileSystemCommand

func init() {
	fileSystemCommands = map[string]fileSystemCommand{
		"cat":    {usage: "cat path", run: runCat},
		"create": {usage: "create [--size bytes] path", run: runCreate},
		"ls":     {usage: "ls [-r] [path]", run: runList},
		"mkdir":  {usage: "mkdir path", run: runMkdir},
		"print":  {usage: "print", run: runPrint},
		"put":    {usage: "put host_path path", run: runPut},
		"rm":     {usage: "rm [-r] path", run: runRemove},
	}
}

func fileSystemCommandNames() []string {
	names := make([]string, 0, len(fileSystemCommands))
	for name := range fileSystemCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runFileSystemCommand(fileSystem filesystem.FileSystem, name string, arguments []string, stdout io.Writer) error {
	command, ok := fileSystemCommands[name]
	if !ok {
		return status.Errorf(codes.InvalidArgument, "Unknown command %#v", name)
	}
	return command.run(fileSystem, arguments, stdout)
}

func newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	return flagSet
}

// parseArguments parses the flags of a command, and checks that the
// number of positional arguments lies within [minimum, maximum].
func parseArguments(flagSet *pflag.FlagSet, arguments []string, minimum, maximum int) ([]string, error) {
	usage := fileSystemCommands[flagSet.Name()].usage
	if err := flagSet.Parse(arguments); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s. Usage: %s", err, usage)
	}
	if n := flagSet.NArg(); n < minimum || n > maximum {
		return nil, status.Errorf(codes.InvalidArgument, "Usage: %s", usage)
	}
	return flagSet.Args(), nil
}

func runCat(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error {
	positional, err := parseArguments(newFlagSet("cat"), arguments, 1, 1)
	if err != nil {
		return err
	}
	_, id, err := fileSystem.Open(positional[0])
	if err != nil {
		return err
	}
	defer fileSystem.Close(id)

	buffer := make([]byte, 1024)
	for {
		n, err := fileSystem.Read(id, buffer)
		if _, writeErr := stdout.Write(buffer[:n]); writeErr != nil {
			return util.StatusWrap(writeErr, "Failed to write file contents")
		}
		if err == io.EOF || (err == nil && n == 0) {
			return nil
		} else if err != nil {
			return util.StatusWrapf(err, "Failed to read %#v", positional[0])
		}
	}
}

func runCreate(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error {
	flagSet := newFlagSet("create")
	sizeBytes := flagSet.Int("size", 0, "Size of the file in bytes")
	positional, err := parseArguments(flagSet, arguments, 1, 1)
	if err != nil {
		return err
	}
	return fileSystem.Create(positional[0], *sizeBytes, false)
}

func runList(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error {
	flagSet := newFlagSet("ls")
	recursive := flagSet.BoolP("recursive", "r", false, "List the contents of subdirectories")
	positional, err := parseArguments(flagSet, arguments, 0, 1)
	if err != nil {
		return err
	}
	p := "/"
	if len(positional) > 0 {
		p = positional[0]
	}
	return fileSystem.List(stdout, *recursive, p)
}

func runMkdir(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error {
	positional, err := parseArguments(newFlagSet("mkdir"), arguments, 1, 1)
	if err != nil {
		return err
	}
	return fileSystem.Create(positional[0], 0, true)
}

func runPrint(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error {
	if _, err := parseArguments(newFlagSet("print"), arguments, 0, 0); err != nil {
		return err
	}
	return fileSystem.Print(stdout)
}

// runPut copies a file from the host into the file system. The file
// is created with the size of the host file, as files cannot grow.
func runPut(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error {
	positional, err := parseArguments(newFlagSet("put"), arguments, 2, 2)
	if err != nil {
		return err
	}
	hostPath, p := positional[0], positional[1]
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return util.StatusWrapf(err, "Failed to read host file %#v", hostPath)
	}
	if err := fileSystem.Create(p, len(data), false); err != nil {
		return err
	}
	_, id, err := fileSystem.Open(p)
	if err != nil {
		return err
	}
	n, err := fileSystem.Write(id, data)
	if err != nil {
		fileSystem.Close(id)
		return util.StatusWrapf(err, "Failed to write %#v", p)
	}
	if n != len(data) {
		fileSystem.Close(id)
		return status.Errorf(codes.Internal, "Wrote %d bytes to %#v, while %d bytes were expected", n, p, len(data))
	}
	return fileSystem.Close(id)
}

func runRemove(fileSystem filesystem.FileSystem, arguments []string, stdout io.Writer) error {
	flagSet := newFlagSet("rm")
	recursive := flagSet.BoolP("recursive", "r", false, "Remove directories and their contents")
	positional, err := parseArguments(flagSet, arguments, 1, 1)
	if err != nil {
		return err
	}
	return fileSystem.Remove(*recursive, positional[0])
}
