package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for relaymap
var rootCmd = &cobra.Command{
	Use:   "relaymap",
	Short: "relaymap resolves which Nostr relays to use for you and the people you follow",
	Long: `relaymap probes your configured Nostr relays, fetches the relay lists (NIP-65)
of everyone you follow and keeps a map of reachable relays per followed author.`,
	Example: `
  relaymap start --config /path/to/config.yaml
  relaymap resolve --pubkey <hex>
  relaymap probe wss://relay.damus.io wss://nos.lol
  relaymap connect wss://relay.damus.io`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return applyFlagOverrides(cmd, cfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// applyFlagOverrides copies explicitly set flags onto c and reinitializes
// the logger when logging settings changed.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	loggingChanged := false

	if flags.Changed("log-level") {
		c.Logging.Level, _ = flags.GetString("log-level")
		loggingChanged = true
	}
	if flags.Changed("log-format") {
		c.Logging.Format, _ = flags.GetString("log-format")
		loggingChanged = true
	}
	if flags.Changed("log-file") {
		c.Logging.FilePath, _ = flags.GetString("log-file")
		loggingChanged = true
	}
	if flags.Changed("metrics-port") {
		c.Metrics.Port, _ = flags.GetInt("metrics-port")
	}
	if flags.Changed("pubkey") {
		c.Identity.PubKey, _ = flags.GetString("pubkey")
	}

	if err := c.Validate(); err != nil {
		return err
	}
	if loggingChanged {
		return config.InitializeLogger(c.Logging)
	}
	return nil
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Path to the log file")
	rootCmd.PersistentFlags().String("log-format", "console", "Log output format (console or json)")
	rootCmd.PersistentFlags().Int("metrics-port", 8181, "Port for the metrics and API server")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of relaymap",
		Long:  "Print the version number of relaymap along with build information",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")

	rootCmd.AddCommand(versionCmd, startCmd, resolveCmd, probeCmd, connectCmd)
}
