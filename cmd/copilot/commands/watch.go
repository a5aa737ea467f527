package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/collectiq/copilot/internal/printer"
	"github.com/collectiq/copilot/pkg/statehub"
)

var (
	watchSessionID    string
	watchOutputFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream a session's live state and proactive alerts",
	Long: `Stream a session's out-of-band sync channel: every committed state
snapshot and every proactive threshold alert, as they happen.

Output Formats:
  default - Human-readable output with colors
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch a session
  copilot watch --session 9f0e...

  # Export the event stream
  copilot watch --session 9f0e... --output=json > events.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchSessionID, "session", "s", "", "Session UUID to watch (required)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchOutputFormat != "default" && watchOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	hub, err := connectHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Close()

	ctx := cmd.Context()
	sub, err := hub.SubscribeSync(ctx, watchSessionID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session: %w", err)
	}
	defer sub.Close()

	if watchOutputFormat == "default" {
		printer.Info("Watching session %s (Ctrl+C to stop)\n", watchSessionID)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Errors():
			printer.Warning("skipped malformed event: %v\n", err)
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if watchOutputFormat == "json" {
				line, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Fprintln(os.Stdout, string(line))
				continue
			}
			printSyncEvent(event)
		}
	}
}

func printSyncEvent(event *statehub.SyncEvent) {
	stamp := time.Now().Format("15:04:05")

	switch event.Type {
	case statehub.SyncEventSnapshot:
		s := event.Snapshot
		printer.Info("[%s] state v%d  profit=%.0f  roi=%.1f%%  utilization=%.1f%%\n",
			stamp, s.Version,
			s.Derived["profit"], s.Derived["roi"], s.Derived["peakUtilization"])
	case statehub.SyncEventAlert:
		a := event.Alert
		printer.Alert("[%s] v%d %s\n", stamp, a.Version, a.Message)
	}
}
