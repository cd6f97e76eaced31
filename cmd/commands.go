package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shugur-Network/relaymap/internal/application"
	"github.com/Shugur-Network/relaymap/internal/connector"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"github.com/Shugur-Network/relaymap/internal/nips"
	"github.com/Shugur-Network/relaymap/internal/probe"
	"github.com/Shugur-Network/relaymap/internal/relayurl"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// shutdownDone is closed once the started node has shut down.
var shutdownDone = make(chan struct{})

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the resolution loop and serve the snapshot API",
	Long:  "Resolve relays every refresh interval and serve /health, /metrics and /api on the metrics port",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if absPath, err := filepath.Abs(cfgFile); err == nil {
				cfgFile = absPath
			}
		}
		logger.Info("Using config file", zap.String("config_file", cfgFile))

		ctx := cmd.Context()
		metrics.RegisterMetrics()

		logger.Info("Starting relaymap...")
		app, err := application.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize relaymap: %w", err)
		}

		go func() {
			defer close(shutdownDone)
			<-ctx.Done()
			logger.Info("Shutdown signal received, initiating graceful shutdown...")
			if err := app.Shutdown(); err != nil {
				logger.Error("Shutdown finished with errors", zap.Error(err))
			}
		}()

		if err := app.Start(ctx); err != nil {
			return fmt.Errorf("failed to start relaymap: %w", err)
		}
		logger.Info("relaymap started",
			zap.Duration("refresh_interval", cfg.General.RefreshInterval),
			zap.Int("configured_relays", len(cfg.Relays)),
		)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run one resolution cycle and print the snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		builder := application.NewNodeBuilder(ctx, cfg)
		builder.BuildProbes()
		builder.BuildQuerier()
		builder.BuildConnector()
		node, err := builder.Build()
		if err != nil {
			return err
		}
		defer func() { _ = node.Shutdown() }()

		followsFile, _ := cmd.Flags().GetString("follows-file")
		if followsFile != "" {
			followList, err := readFollowList(followsFile)
			if err != nil {
				return err
			}
			snap, err := node.ResolveWith(ctx, followList)
			if err != nil {
				return err
			}
			return printJSON(snap.View())
		}

		snap, err := node.Resolve(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap.View())
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <url>...",
	Short: "Probe relay URLs once and print which are reachable",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if timeout <= 0 {
			timeout = cfg.Probe.UserTimeout
		}

		valid, invalid := relayurl.NormalizeAll(args)
		for _, raw := range invalid {
			fmt.Printf("%-40s invalid\n", raw)
		}

		runner := probe.NewRunnerFromConfig(cfg.Probe)
		for _, result := range runner.ProbeEach(cmd.Context(), valid, timeout) {
			status := "unreachable"
			if result.Reachable {
				status = "reachable"
			}
			fmt.Printf("%-40s %s\n", result.URL, status)
		}
		return nil
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect <url>",
	Short: "Open a relay session with one retry and report the outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connector.New(cfg.Connector).Connect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Printf("connected to %s\n", conn.URL())
		return nil
	},
}

func readFollowList(path string) (*nostr.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read follow list: %w", err)
	}
	var evt nostr.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("parse follow list: %w", err)
	}
	if !nips.IsFollowListEvent(&evt) {
		return nil, fmt.Errorf("%s does not hold a kind %d event", path, nips.KindFollowList)
	}
	return &evt, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	resolveCmd.Flags().String("pubkey", "", "Hex public key whose follow list is resolved (overrides identity.pubkey)")
	resolveCmd.Flags().String("follows-file", "", "Path to a kind 3 event in JSON to use instead of fetching one")
	probeCmd.Flags().Duration("timeout", 0, "Batch deadline (defaults to probe.user_timeout)")
}
