package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/catalog"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/credentials"
	"github.com/nextlevelbuilder/hedgewatch/internal/replay"
	"github.com/nextlevelbuilder/hedgewatch/internal/tracing"
	"github.com/nextlevelbuilder/hedgewatch/internal/ui"
)

type analyzeOptions struct {
	symbol  string
	agents  []string
	model   string
	token   string
	plain   bool
	json    bool
	timeout time.Duration
	record  string
}

func analyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [symbol]",
		Short: "Run an analysis and watch agent progress live",
		Long: `Request an analysis from the hedge-fund service and render each agent's
progress as the stream arrives. Without a symbol, prompts for one.

Examples:
  hedgewatch analyze BTC
  hedgewatch analyze ETH -a technical_analyst -a sentiment_analyst
  hedgewatch analyze SOL --plain
  hedgewatch analyze BTC --json > result.json
  hedgewatch analyze BTC --record btc.sse       # save the raw stream for replay`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 1 {
				opts.symbol = args[0]
			}
			if err := runAnalyze(opts); err != nil {
				fail(err)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.symbol, "symbol", "s", "", "symbol to analyze, e.g. BTC")
	cmd.Flags().StringSliceVarP(&opts.agents, "agent", "a", nil, "agent to run (repeatable; default from config)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model name (default from config)")
	cmd.Flags().StringVar(&opts.token, "token", "", "service bearer token (default: env, config, keyring)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print one line per change instead of the live view")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print only the final snapshot as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 = no limit)")
	cmd.Flags().StringVar(&opts.record, "record", "", "also write the raw event stream to this file")

	return cmd
}

func runAnalyze(opts analyzeOptions) error {
	cfg := loadConfig()
	cat := catalog.Default()
	interactive := isInteractive() && !opts.json

	req, err := buildAnalyzeRequest(cfg, cat, opts, interactive)
	if err != nil {
		return &inputError{err: err}
	}
	if unknown := cat.Unknown(req.Agents); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: agents not in the catalog: %s\n", strings.Join(unknown, ", "))
	}

	svc := cfg.ServiceSnapshot()
	token, source, err := credentials.Lookup{
		Flag:    opts.token,
		Env:     os.Getenv("HEDGEWATCH_TOKEN"),
		Config:  svc.Token,
		Account: svc.BaseURL,
		Store:   credentials.Keyring{},
	}.Resolve()
	if err != nil {
		slog.Warn("credentials.keyring_unavailable", "error", err)
	}
	slog.Debug("credentials.resolved", "source", string(source), "found", token != "")

	var opener analysis.Opener = analysis.NewClient(analysis.ClientConfig{
		BaseURL:      svc.BaseURL,
		RunPath:      svc.RunPath,
		TickerSuffix: svc.TickerSuffix,
		Crypto:       svc.Crypto,
		Token:        token,
		Headers:      svc.Headers,
	})
	if opts.record != "" {
		opener = replay.Recorder{Opener: opener, Path: opts.record}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	shutdownOTel := initOTelExporter(ctx, cfg)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownOTel(flushCtx)
	}()

	session := analysis.NewSession(opener, req, analysis.WithRecorder(tracing.NewRecorder(nil)))

	var snap analysis.Snapshot
	switch {
	case opts.json:
		snap, err = session.Run(ctx)
		if perr := ui.PrintJSON(os.Stdout, snap); perr != nil {
			slog.Warn("analyze.print_failed", "error", perr)
		}
	case opts.plain || !interactive:
		snap = ui.PrintPlain(os.Stdout, session.Stream(ctx), cat.DisplayName)
		err = session.Err()
	default:
		restore := redirectLogs(cfg)
		snap, err = ui.Run(ctx, session, ui.RunOptions{
			Env:    ui.Env{SignedIn: token != "", Operator: operatorName()},
			Header: ui.Header{Symbol: req.Symbol, Analyst: analystLabel(cat, req.Agents), Model: req.Model},
			Names:  cat.DisplayName,
		})
		restore()
	}

	if snap.State != analysis.StateFailed {
		return nil
	}
	if err == nil {
		err = errors.New(snap.Error)
	}
	slog.Warn("analyze.failed", "run_id", snap.RunID, "error", err)
	return err
}

// buildAnalyzeRequest fills the request from flags, prompts, and config
// defaults, in that order.
func buildAnalyzeRequest(cfg *config.Config, cat *catalog.Catalog, opts analyzeOptions, interactive bool) (analysis.Request, error) {
	defaults := cfg.AnalysisSnapshot()
	symbol, agents, model := opts.symbol, opts.agents, opts.model

	if symbol == "" {
		if !interactive {
			return analysis.Request{}, fmt.Errorf("a symbol is required (hedgewatch analyze BTC)")
		}
		var err error
		if symbol, err = promptSymbol(cat); err != nil {
			return analysis.Request{}, err
		}
		if len(agents) == 0 {
			if agents, err = promptAgents(cat, defaults.Agents); err != nil {
				return analysis.Request{}, err
			}
		}
	}

	normalized := config.NormalizeSymbol(symbol)
	if normalized == "" {
		return analysis.Request{}, fmt.Errorf("invalid symbol %q", symbol)
	}
	if len(agents) == 0 {
		agents = defaults.Agents
	}
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, config.NormalizeAgentID(a))
	}
	if model == "" {
		model = defaults.Model
	}

	req := analysis.Request{Symbol: normalized, Agents: ids, Model: model}
	return req, req.Validate()
}

// analystLabel joins the display names of the selected agents.
func analystLabel(cat *catalog.Catalog, ids []string) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = cat.DisplayName(id)
	}
	return strings.Join(names, ", ")
}
