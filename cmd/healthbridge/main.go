// Command healthbridge exports local health records to a remote endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rshade/healthbridge/internal/cli"
	"github.com/rshade/healthbridge/internal/discovery"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // Set by the linker.

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitNeedsAction = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := cli.NewRootCmd(version)
	root.SetArgs(args)
	root.SilenceUsage = true

	err := root.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

// exitCode maps command errors to process exit codes. Errors the user fixes by
// running another command (scan, grant) get their own code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, discovery.ErrNoActiveSession), errors.Is(err, cli.ErrPermissionsNotGranted):
		return exitNeedsAction
	default:
		return exitError
	}
}
