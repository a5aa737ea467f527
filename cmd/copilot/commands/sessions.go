package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/collectiq/copilot/internal/printer"
	"github.com/collectiq/copilot/pkg/statehub"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session and remove its hub state",
	Long: `End a conversation session: remove its committed snapshot and every
document it generated from the hub.

The command does not prompt for confirmation and executes immediately. A
subsequent send to the same session ID starts from a fresh state at
version 0.

Examples:
  copilot sessions end 9f0e1c2a-...`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsEnd,
}

func init() {
	sessionsCmd.AddCommand(sessionsEndCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsEnd(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	hub, err := connectHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Close()

	if _, err := hub.LoadSnapshot(cmd.Context(), sessionID); err != nil {
		if statehub.IsNotFound(err) {
			return printer.Error(
				"session not found",
				fmt.Sprintf("Session %s has no committed state.", sessionID),
				[]string{"List a session's documents to check for leftovers:\n  copilot artifacts list --session <id>"},
			)
		}
		return fmt.Errorf("failed to load session state: %w", err)
	}

	records, err := hub.ListArtifacts(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to list session artifacts: %w", err)
	}

	printer.Step("Removing session %s...\n", sessionID)
	if err := hub.DeleteSession(cmd.Context(), sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	printer.Success("session %s ended (%d document(s) removed)\n", sessionID, len(records))
	return nil
}
