package bench

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrMissingDependency is returned when a required program is not on PATH
var ErrMissingDependency = errors.New("missing required program(s)")

// RequiredPrograms are the tools the pipeline shells out to
var RequiredPrograms = []string{"cargo", "wasm-opt", "wasm-bindgen"}

// LookPathFunc resolves a program name; exec.LookPath in production
type LookPathFunc func(file string) (string, error)

// CheckDeps verifies every program is on PATH and reports all missing ones at once
func CheckDeps(lookPath LookPathFunc, programs []string) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	var missing []string
	for _, name := range programs {
		if _, err := lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}
