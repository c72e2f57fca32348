//go:build windows

package binary

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
)

// launch runs path as a child process with inherited standard streams and
// reports a non-zero exit status as *ExitError.
func launch(path string, argv, env []string) error {
	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// The child receives console interrupts directly
	signal.Ignore(os.Interrupt)
	defer signal.Reset(os.Interrupt)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("run %s: %w", path, err)
	}
	return nil
}
