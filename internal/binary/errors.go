package binary

import (
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// ErrNotFound is returned when a release file does not exist (HTTP 404).
var ErrNotFound = errors.New("release file not found")

// UnsupportedPlatformError is returned when no platform table entry matches
// the host. OSFamily and Architecture hold the detected values unchanged.
type UnsupportedPlatformError struct {
	Name         string
	OSFamily     string
	Architecture string
	Supported    []SupportedPlatform
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("platform with type %q and architecture %q is not supported by %s",
		e.OSFamily, e.Architecture, e.Name)
}

// WriteTable writes the error message followed by a table of every
// supported platform.
func (e *UnsupportedPlatformError) WriteTable(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s.\nYour system must be one of the following:\n\n", e.Error()); err != nil {
		return err
	}
	return WritePlatformTable(w, e.Supported)
}

// WritePlatformTable renders platforms as a text table.
func WritePlatformTable(w io.Writer, platforms []SupportedPlatform) error {
	table := tablewriter.NewWriter(w)
	table.Header("TYPE", "ARCHITECTURE", "RUST_TARGET", "BINARY_NAME")

	for _, p := range platforms {
		row := []string{string(p.OSFamily), string(p.Architecture), p.ReleaseTarget, p.ExecutableName}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append platform row: %w", err)
		}
	}

	return table.Render()
}

// ExitError carries the exit status of a launched executable that ran in
// a child process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with status %d", e.Code)
}
