package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/collectiq/copilot/internal/printer"
	"github.com/collectiq/copilot/pkg/statehub"
)

var (
	sendSessionID string
	sendVersion   int64
	sendTimeout   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <utterance>",
	Short: "Send a natural-language request to the engine",
	Long: `Send one natural-language request to the engine and wait for the
response. The narrative is printed as prose; any field changes the engine
committed are listed separately with the new state version.

Examples:
  # Ask a question
  copilot send "why is my ROI negative?" --session 9f0e...

  # Change the live numbers, guarding against a stale view of version 4
  copilot send "increase agent count to 50" --session 9f0e... --client-version 4`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendSessionID, "session", "s", "", "Session UUID (generated if omitted)")
	sendCmd.Flags().Int64Var(&sendVersion, "client-version", -1, "State version this request is based on (-1 to skip the staleness check)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "How long to wait for the response")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	hub, err := connectHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Close()

	sessionID := sendSessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
		printer.Info("Session: %s\n", sessionID)
	}

	req := &statehub.ChatRequest{
		RequestID:     uuid.New().String(),
		SessionID:     sessionID,
		Utterance:     args[0],
		ClientVersion: sendVersion,
	}

	ctx := cmd.Context()

	// Subscribe before publishing - Pub/Sub has no replay
	sub, err := hub.SubscribeResponse(ctx, req.RequestID)
	if err != nil {
		return fmt.Errorf("failed to subscribe for response: %w", err)
	}
	defer sub.Close()

	if err := hub.PublishRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case resp := <-sub.Events():
		printResponse(resp)
		return nil
	case err := <-sub.Errors():
		return fmt.Errorf("malformed response: %w", err)
	case <-time.After(sendTimeout):
		return printer.Error(
			"no response from engine",
			fmt.Sprintf("Waited %v for request %s.", sendTimeout, req.RequestID),
			[]string{"Check that copilotd is running against the same instance"},
		)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printResponse(resp *statehub.ChatResponse) {
	printer.Println(resp.Narrative)

	if len(resp.Delta) > 0 || len(resp.ModeDelta) > 0 {
		var lines []string
		for field, value := range resp.Delta {
			lines = append(lines, fmt.Sprintf("  %s = %g", field, value))
		}
		for field, value := range resp.ModeDelta {
			lines = append(lines, fmt.Sprintf("  %s = %s", field, value))
		}
		sort.Strings(lines)
		printer.Step("applied changes (version %d):\n%s\n", resp.Version, strings.Join(lines, "\n"))
	}

	if resp.ArtifactID != "" {
		printer.Success("document ready: copilot artifacts get %s\n", resp.ArtifactID)
	}
}
