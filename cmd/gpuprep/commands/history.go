package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openfroyo/gpuprep/pkg/stores"
	"github.com/openfroyo/gpuprep/pkg/ui"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past provisioning sessions",
		Long: `List sessions recorded in the run-history database, newest first.

A session that relaunched itself is one row with two processes.`,
		Example: `  # Last 20 sessions
  gpuprep history

  # Steps and log lines of one session
  gpuprep history show 5f0c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				sessions, err := store.ListSessions(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(sessions)
				}
				if len(sessions) == 0 {
					ui.Stdout().Muted("No sessions recorded.")
					return nil
				}

				t := newTable("SESSION", "STATUS", "PROCESSES", "ERRORS", "STARTED")
				for _, s := range sessions {
					t.Row(s.ID, string(s.Status), strconv.Itoa(s.Processes), strconv.Itoa(s.ErrorCount), humanize.Time(s.StartedAt))
				}
				fmt.Println(t)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions")
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show the steps and log lines of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withHistory(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				session, err := store.GetSession(ctx, id)
				if errors.Is(err, stores.ErrNotFound) {
					return fmt.Errorf("session %s not found", id)
				}
				if err != nil {
					return err
				}
				steps, err := store.ListSteps(ctx, id)
				if err != nil {
					return err
				}
				events, err := store.GetEvents(ctx, &id, nil, -1, 0)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(map[string]interface{}{
						"session": session,
						"steps":   steps,
						"events":  events,
					})
				}

				console := ui.Stdout()
				console.Step("Session %s", session.ID)
				console.Info("status %s, %d process(es), %d error(s), started %s",
					session.Status, session.Processes, session.ErrorCount, humanize.Time(session.StartedAt))

				if len(steps) > 0 {
					t := newTable("PHASE", "STEP", "STATUS", "EXIT", "DURATION")
					for _, s := range steps {
						t.Row(s.Phase, s.Name, s.Status, strconv.Itoa(s.ExitCode),
							(time.Duration(s.DurationMS) * time.Millisecond).String())
					}
					fmt.Println(t)
				}

				for _, e := range events {
					if e.Level == stores.EventLevelError {
						console.Error("%s", e.Message)
					} else {
						console.Muted("%s", e.Message)
					}
				}
				return nil
			})
		},
	}
}

// withHistory opens the configured history database for fn. A database that
// does not exist yet means nothing was recorded.
func withHistory(ctx context.Context, fn func(context.Context, *stores.SQLiteStore) error) error {
	settings, err := loadSettingsOnly()
	if err != nil {
		return err
	}
	if settings.HistoryDB == "" {
		return fmt.Errorf("run history is disabled in the settings")
	}

	path := inWorkDir(settings, settings.HistoryDB)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		ui.Stdout().Muted("No sessions recorded.")
		return nil
	}

	store, err := stores.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
