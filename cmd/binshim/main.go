// Command binshim is a launcher for a tool published as prebuilt release
// archives. It resolves the release target for the host, installs the
// executable into a local cache on first use and then runs it with the
// caller's arguments, standard streams and exit status.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZebulonRouseFrantzich/binshim/internal/binary"
	"github.com/ZebulonRouseFrantzich/binshim/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := execute(ctx, newApp(), os.Args[1:])
	code := exitCode(err, os.Stderr)
	stop()
	os.Exit(code)
}

// exitCode reports err on w and returns the process exit status.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}

	var exitErr *binary.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var platformErr *binary.UnsupportedPlatformError
	if errors.As(err, &platformErr) {
		if werr := platformErr.WriteTable(w); werr != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
		return 1
	}

	var parseErr *config.ParseError
	if errors.As(err, &parseErr) {
		fmt.Fprintf(w, "Error: %s\n", config.FormatError(err, false))
		return 1
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
