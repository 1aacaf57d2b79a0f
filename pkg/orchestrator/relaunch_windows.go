//go:build windows

package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

func relaunch(executable string, args, env []string) (int, error) {
	cmd := exec.Command(executable, args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 1, fmt.Errorf("failed to start %s: %w", executable, err)
	}
	return 0, nil
}
