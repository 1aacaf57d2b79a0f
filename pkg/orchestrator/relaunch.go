package orchestrator

import (
	"os"
	"strings"
)

const (
	// FlagRestarted marks a successor process.
	FlagRestarted = "--restarted"

	// FlagSession carries the session ID to the successor.
	FlagSession = "--session"
)

// RelaunchArgs returns the successor's arguments: args without any previous
// restart or session flags, followed by the restart flag and the session.
func RelaunchArgs(args []string, sessionID string) []string {
	out := make([]string, 0, len(args)+3)
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == FlagRestarted || strings.HasPrefix(a, FlagRestarted+"="):
			continue
		case a == FlagSession:
			i++
			continue
		case strings.HasPrefix(a, FlagSession+"="):
			continue
		}
		out = append(out, a)
	}
	return append(out, FlagRestarted, FlagSession, sessionID)
}

// Relaunch hands the session to a successor running executable with args.
// On Unix the current process image is replaced and Relaunch only returns on
// error. On Windows the successor shares the console and Relaunch returns its
// exit code once it finishes; the caller must exit with it and do nothing else.
func Relaunch(executable string, args []string) (int, error) {
	return relaunch(executable, args, os.Environ())
}
