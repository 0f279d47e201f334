package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/bus"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/credentials"
	"github.com/nextlevelbuilder/hedgewatch/internal/cron"
	"github.com/nextlevelbuilder/hedgewatch/internal/gateway"
	"github.com/nextlevelbuilder/hedgewatch/internal/tracing"
)

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay gateway for other rendering clients",
		Long: `Serve one analysis session at a time to other clients:

  POST   /v1/analysis          start a run
  DELETE /v1/analysis          cancel the active run
  GET    /v1/analysis          latest snapshot
  GET    /v1/analysis/events   server-sent events feed
  GET    /v1/runs/{id}         final snapshot of a recent run
  GET    /ws                   WebSocket feed
  GET    /health

The config file is watched; token, rate limits, and request defaults are
applied without a restart.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runServe(host, port); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func runServe(host string, port int) error {
	cfgPath := resolveConfigPath()
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := initOTelExporter(ctx, cfg)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownOTel(flushCtx)
	}()

	svc := cfg.ServiceSnapshot()
	token, _, err := credentials.Lookup{
		Env:     os.Getenv("HEDGEWATCH_TOKEN"),
		Config:  svc.Token,
		Account: svc.BaseURL,
		Store:   credentials.Keyring{},
	}.Resolve()
	if err != nil {
		slog.Warn("credentials.keyring_unavailable", "error", err)
	}
	client := analysis.NewClient(analysis.ClientConfig{
		BaseURL:      svc.BaseURL,
		RunPath:      svc.RunPath,
		TickerSuffix: svc.TickerSuffix,
		Crypto:       svc.Crypto,
		Token:        token,
		Headers:      svc.Headers,
	})

	a := cfg.AnalysisSnapshot()
	gw := cfg.GatewaySnapshot()
	runner, err := gateway.NewRunner(gateway.RunnerConfig{
		Opener:     client,
		Bus:        bus.New(),
		Recorder:   tracing.NewRecorder(nil),
		Agents:     a.Agents,
		Model:      a.Model,
		RecentRuns: gw.RecentRuns,
	})
	if err != nil {
		return err
	}
	server := gateway.NewServer(runner, gateway.ServerConfig{
		Token:     gw.Token,
		RateLimit: gw.RateLimit,
		Burst:     gw.Burst,
		Version:   Version,
	})
	defer server.Close()

	if host == "" {
		host = gw.Host
	}
	if port == 0 {
		port = gw.Port
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	handler := server.Handler()

	schedules := cron.NewService(runner.RunJob)
	if err := schedules.SetJobs(gw.Schedules); err != nil {
		return err
	}
	server.SetSchedules(schedules)

	watcher, err := config.NewWatcher(cfgPath, cfg)
	if err != nil {
		slog.Warn("config.watch_unavailable", "path", cfgPath, "error", err)
	} else {
		watcher.OnChange(func(next *config.Config) {
			cfg.ReplaceFrom(next)
			server.ApplyConfig(cfg)
			if err := schedules.SetJobs(cfg.GatewaySnapshot().Schedules); err != nil {
				slog.Warn("cron.reload_rejected", "error", err)
			}
		})
	}

	eg, gctx := errgroup.WithContext(ctx)

	// Request contexts derive from gctx so SSE and WebSocket feeds end on shutdown.
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	eg.Go(func() error {
		slog.Info("gateway.listening", "addr", addr, "upstream", svc.BaseURL, "auth", gw.Token != "")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})

	if watcher != nil {
		eg.Go(func() error {
			if err := watcher.Start(); err != nil {
				slog.Warn("config.watch_unavailable", "path", cfgPath, "error", err)
				return nil
			}
			<-gctx.Done()
			watcher.Stop()
			return nil
		})
	}

	eg.Go(func() error {
		schedules.Start()
		<-gctx.Done()
		schedules.Stop()
		return nil
	})

	eg.Go(func() error {
		stopTailnet := initTailscale(gctx, cfg, handler)
		<-gctx.Done()
		if stopTailnet != nil {
			stopTailnet()
		}
		return nil
	})

	eg.Go(func() error {
		<-gctx.Done()
		slog.Info("gateway.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			slog.Warn("gateway.runner_shutdown", "error", err)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = eg.Wait()
	slog.Info("gateway.stopped")
	return err
}
