package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/catalog"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/gateway"
	"github.com/nextlevelbuilder/hedgewatch/internal/ui"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

func watchCmd() *cobra.Command {
	var (
		gatewayURL string
		token      string
		start      string
		agents     []string
		follow     bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the session of a running gateway",
		Long: `Connect to a gateway started with "hedgewatch serve" and print its
snapshots as they arrive.

Examples:
  hedgewatch watch                 # follow the active run until it ends
  hedgewatch watch --start BTC     # ask the gateway to start a run, then follow it
  hedgewatch watch --follow        # keep watching run after run`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if gatewayURL == "" {
				gatewayURL = "http://" + gatewayAddr(cfg)
			}
			if token == "" {
				token = cfg.GatewaySnapshot().Token
			}
			if err := runWatch(gatewayURL, token, start, agents, follow, jsonOut); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "gateway URL (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "gateway token (default: gateway.token)")
	cmd.Flags().StringVar(&start, "start", "", "start a run for this symbol first")
	cmd.Flags().StringSliceVarP(&agents, "agent", "a", nil, "agents for --start (default: gateway defaults)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep watching after the run ends")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print only the final snapshot as JSON")
	return cmd
}

func runWatch(gatewayURL, token, start string, agents []string, follow, jsonOut bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err := gateway.DialFeed(ctx, gatewayURL, token)
	if err != nil {
		return err
	}
	defer feed.Close()

	if start != "" {
		symbol := config.NormalizeSymbol(start)
		if symbol == "" {
			return fmt.Errorf("invalid symbol %q", start)
		}
		if err := feed.Request(protocol.MethodAnalysisStart, protocol.StartParams{Symbol: symbol, Agents: agents}); err != nil {
			return err
		}
	}

	var last analysis.Snapshot
	if jsonOut {
		for snap := range feed.Snapshots(ctx, follow) {
			last = snap
		}
		if err := ui.PrintJSON(os.Stdout, last); err != nil {
			return err
		}
	} else {
		last = ui.PrintPlain(os.Stdout, feed.Snapshots(ctx, follow), catalog.Default().DisplayName)
	}

	if err := feed.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if last.State == analysis.StateFailed {
		return errors.New(last.Error)
	}
	return nil
}
