//go:build !windows

package orchestrator

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func relaunch(executable string, args, env []string) (int, error) {
	argv := append([]string{executable}, args...)
	if err := unix.Exec(executable, argv, env); err != nil {
		return 1, fmt.Errorf("failed to exec %s: %w", executable, err)
	}
	return 0, nil
}
