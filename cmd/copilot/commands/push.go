package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/internal/printer"
	"github.com/collectiq/copilot/pkg/statehub"
)

var pushSessionID string

var pushCmd = &cobra.Command{
	Use:   "push field=value [field=value ...]",
	Short: "Push calculator state directly, without a chat request",
	Long: `Push field values straight into a session's state, the way the
calculator UI does when the user drags a slider. The engine applies the
values through the same serialized path as chat turns, so proactive alerts
fire on pushed state too.

Numeric fields take numbers; activeBucket and strategyMode take their
categorical values.

Examples:
  copilot push agentCount=25 --session 9f0e...
  copilot push strategyMode=augmentation recoveryRate=14 --session 9f0e...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVarP(&pushSessionID, "session", "s", "", "Session UUID (required)")
	pushCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	update := &statehub.StateUpdate{
		SessionID: pushSessionID,
		Inputs:    make(map[string]float64),
		Modes:     make(map[string]string),
	}

	for _, arg := range args {
		field, raw, found := strings.Cut(arg, "=")
		if !found {
			return printer.Error(
				"invalid assignment",
				fmt.Sprintf("%q is not of the form field=value.", arg),
				[]string{"Example: copilot push agentCount=25 --session <id>"},
			)
		}

		switch {
		case model.IsNumericInput(field):
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return printer.Error(
					"invalid value",
					fmt.Sprintf("%s takes a number, got %q.", field, raw),
					nil,
				)
			}
			update.Inputs[field] = value
		case model.IsMode(field):
			if !model.ValidMode(field, raw) {
				return printer.Error(
					"invalid value",
					fmt.Sprintf("%q is not a valid setting for %s.", raw, field),
					nil,
				)
			}
			update.Modes[field] = raw
		default:
			return printer.Error(
				"unknown field",
				fmt.Sprintf("%q is not a calculator field.", field),
				[]string{"Numeric fields: agentCount, monthlyRent, avgAgentSalary, commissionRate, accountsAssigned, avgAccountBalance, recoveryRate, accountsPerAgent"},
			)
		}
	}

	hub, err := connectHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Close()

	if err := hub.PublishStateUpdate(cmd.Context(), update); err != nil {
		return fmt.Errorf("failed to publish state update: %w", err)
	}

	printer.Success("pushed %d value(s) to session %s\n", len(args), pushSessionID)
	return nil
}
