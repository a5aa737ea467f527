package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/collectiq/copilot/internal/printer"
	"github.com/collectiq/copilot/pkg/statehub"
)

var artifactsSessionID string

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List and fetch generated documents",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a session's documents, newest first",
	RunE:  runArtifactsList,
}

var artifactsGetCmd = &cobra.Command{
	Use:   "get <artifact-id>",
	Short: "Print a document's payload to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactsGet,
}

func init() {
	artifactsListCmd.Flags().StringVarP(&artifactsSessionID, "session", "s", "", "Session UUID (required)")
	artifactsListCmd.MarkFlagRequired("session")
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsGetCmd)
	rootCmd.AddCommand(artifactsCmd)
}

func runArtifactsList(cmd *cobra.Command, args []string) error {
	hub, err := connectHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Close()

	records, err := hub.ListArtifacts(cmd.Context(), artifactsSessionID)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	if len(records) == 0 {
		printer.Info("No documents for session %s\n", artifactsSessionID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSIZE\tDELIVERED\tCREATED")
	for _, rec := range records {
		created := time.UnixMilli(rec.CreatedAtMs).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n",
			rec.ID, rec.Kind, rec.SizeBytes, rec.Delivered, created)
	}
	return w.Flush()
}

func runArtifactsGet(cmd *cobra.Command, args []string) error {
	hub, err := connectHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Close()

	payload, err := hub.GetArtifactPayload(cmd.Context(), args[0])
	if err != nil {
		if statehub.IsNotFound(err) {
			return printer.Error(
				"document not found",
				fmt.Sprintf("No document with ID %s - it may have expired or been evicted.", args[0]),
				[]string{"List a session's live documents:\n  copilot artifacts list --session <id>"},
			)
		}
		return fmt.Errorf("failed to fetch document: %w", err)
	}

	_, err = os.Stdout.Write(payload)
	return err
}
