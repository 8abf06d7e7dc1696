package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/buildbarn/bb-sectorfs/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/kballard/go-shellquote"
)

const shellPrompt = "sectorfs> "

// runShell reads commands from stdin and applies them to the file
// system until "exit" is entered or stdin is closed. Failing commands
// are reported, but do not terminate the shell.
func runShell(fileSystem filesystem.FileSystem, stdin io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, shellPrompt)
		if !scanner.Scan() {
			fmt.Fprint(stdout, "\n")
			if err := scanner.Err(); err != nil {
				return util.StatusWrap(err, "Failed to read command")
			}
			return nil
		}

		words, err := shellquote.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(stdout, "Failed to parse command: %s\n", err)
			continue
		}
		if len(words) == 0 {
			continue
		}
		switch words[0] {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprint(stdout, "Available commands:\n")
			for _, name := range fileSystemCommandNames() {
				fmt.Fprintf(stdout, "  %s\n", fileSystemCommands[name].usage)
			}
			fmt.Fprint(stdout, "  exit\n")
		default:
			if err := runFileSystemCommand(fileSystem, words[0], words[1:], stdout); err != nil {
				fmt.Fprintf(stdout, "%s\n", err)
			}
		}
	}
}
