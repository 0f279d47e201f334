//go:build tsnet

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/hedgewatch/internal/config"
)

const tsnetBuild = true

// initTailscale serves handler on the tailnet alongside the local listener.
// Only compiled with -tags tsnet. The returned func stops the listener.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	tc := cfg.Tailscale
	if tc.Hostname == "" {
		slog.Debug("tsnet.disabled", "hint", "set HEDGEWATCH_TSNET_HOSTNAME to enable")
		return nil
	}

	srv := &tsnet.Server{
		Hostname:  tc.Hostname,
		AuthKey:   tc.AuthKey,
		Ephemeral: tc.Ephemeral,
	}
	if tc.StateDir != "" {
		srv.Dir = config.ExpandHome(tc.StateDir)
	}

	var (
		ln   net.Listener
		err  error
		port = ":80"
	)
	if tc.EnableTLS {
		port = ":443"
		ln, err = srv.ListenTLS("tcp", port)
	} else {
		ln, err = srv.Listen("tcp", port)
	}
	if err != nil {
		slog.Warn("tsnet.listen_failed", "error", err)
		srv.Close()
		return nil
	}
	slog.Info("tsnet.listening", "hostname", tc.Hostname, "port", port, "tls", tc.EnableTLS)

	httpSrv := &http.Server{Handler: handler}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("tsnet.serve_failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	return func() {
		httpSrv.Close()
		ln.Close()
		srv.Close()
		slog.Info("tsnet.stopped")
	}
}
