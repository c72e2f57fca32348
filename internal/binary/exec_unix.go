//go:build !windows

package binary

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// launch replaces the current process image with path. Standard streams,
// signals and the exit status belong to the new image from here on.
func launch(path string, argv, env []string) error {
	if err := unix.Exec(path, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}
