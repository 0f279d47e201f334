package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/replay"
)

func replayCmd() *cobra.Command {
	var (
		addr     string
		path     string
		minChunk int
		maxChunk int
		delay    time.Duration
		seed     uint64
	)

	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "Serve a recorded event stream as a fake analysis service",
		Long: `Serve a file recorded with "hedgewatch analyze --record" on the run
endpoint, split into randomly sized writes. Point service.baseUrl at it to
develop without the real service.

Example:
  hedgewatch replay btc.sse --delay 50ms &
  HEDGEWATCH_BASE_URL=http://127.0.0.1:8000 hedgewatch analyze BTC`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			handler := replay.NewHandler(data, replay.Options{
				MinChunk: minChunk,
				MaxChunk: maxChunk,
				Delay:    delay,
				Seed:     seed,
			})
			if err := serveReplay(addr, path, handler); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&path, "path", config.DefaultRunPath, "run endpoint path")
	cmd.Flags().IntVar(&minChunk, "min-chunk", 1, "smallest write in bytes")
	cmd.Flags().IntVar(&maxChunk, "max-chunk", 64, "largest write in bytes")
	cmd.Flags().DurationVar(&delay, "delay", 20*time.Millisecond, "pause between writes")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "chunking seed (0 = random)")
	return cmd
}

func serveReplay(addr, path string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("POST "+path, handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("replay.listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
