package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/internal/printer"
	"github.com/collectiq/copilot/pkg/statehub"
)

var (
	stateSessionID    string
	stateOutputFormat string
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show a session's last committed state",
	Long: `Show a session's last committed calculator state: inputs, modes,
derived metrics, and the version to pass as --client-version on a
subsequent send.`,
	RunE: runState,
}

func init() {
	stateCmd.Flags().StringVarP(&stateSessionID, "session", "s", "", "Session UUID (required)")
	stateCmd.Flags().StringVarP(&stateOutputFormat, "output", "o", "default", "Output format (default or json)")
	stateCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	hub, err := connectHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Close()

	snap, err := hub.LoadSnapshot(cmd.Context(), stateSessionID)
	if err != nil {
		if statehub.IsNotFound(err) {
			return printer.Error(
				"no committed state",
				fmt.Sprintf("Session %s has no committed state yet.", stateSessionID),
				[]string{"Send it a request first:\n  copilot send \"...\" --session <id>"},
			)
		}
		return fmt.Errorf("failed to load state: %w", err)
	}

	if stateOutputFormat == "json" {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}

	printer.Info("Session %s at version %d\n\n", snap.SessionID, snap.Version)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, name := range sortedNames(snap.Modes) {
		fmt.Fprintf(w, "%s\t%s\n", model.Label(name), snap.Modes[name])
	}
	for _, name := range sortedNames(snap.Inputs) {
		fmt.Fprintf(w, "%s\t%.2f\n", model.Label(name), snap.Inputs[name])
	}
	fmt.Fprintln(w, "\t")
	for _, name := range sortedNames(snap.Derived) {
		fmt.Fprintf(w, "%s\t%.2f\n", model.Label(name), snap.Derived[name])
	}
	return w.Flush()
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
