package cmd

import (
	"fmt"

	"github.com/menace-cli/menace/internal/errors"
)

// exitCodeError makes the process exit with code without printing anything
// further. The launch command uses it once the outcome has been reported.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newExitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitCodeError{code: code}
}

func isExitCode(err error) (int, bool) {
	var e *exitCodeError
	if errors.As(err, &e) {
		return e.code, true
	}
	return 0, false
}
