package commands

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/collectiq/copilot/internal/printer"
	"github.com/collectiq/copilot/pkg/statehub"
)

var (
	version string
	commit  string
	date    string

	redisURL     string
	instanceName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Copilot - conversational collections ROI engine CLI",
	Long: `Copilot is the command-line client for the collections ROI
conversation engine. It sends natural-language requests to a running
copilotd, streams live state snapshots and proactive alerts, pushes
calculator state, and fetches generated documents.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	defaultRedis := os.Getenv("REDIS_URL")
	if defaultRedis == "" {
		defaultRedis = "redis://localhost:6379"
	}
	defaultInstance := os.Getenv("COPILOT_INSTANCE_NAME")
	if defaultInstance == "" {
		defaultInstance = "default"
	}

	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", defaultRedis, "Redis URL of the copilotd instance")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "name", "n", defaultInstance, "Target instance name")
}

// connectHub opens a hub client against the configured instance.
func connectHub(cmd *cobra.Command) (*statehub.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", redisURL, err),
			[]string{"Pass a URL like redis://localhost:6379 via --redis or REDIS_URL"},
		)
	}

	hub, err := statehub.NewClient(redisOpts, instanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create hub client: %w", err)
	}

	if err := hub.Ping(cmd.Context()); err != nil {
		hub.Close()
		return nil, printer.Error(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			[]string{"Check that copilotd and its Redis are running"},
		)
	}

	return hub, nil
}
