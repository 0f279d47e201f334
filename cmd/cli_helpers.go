package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
)

// gatewayAddr returns the dialable host:port of the configured gateway.
func gatewayAddr(cfg *config.Config) string {
	g := cfg.GatewaySnapshot()
	host := g.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, fmt.Sprint(g.Port))
}

// isReachable reports whether a TCP connection to addr succeeds.
func isReachable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// isInteractive reports whether stdin and stdout are both terminals.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// operatorName labels the session in the view header.
func operatorName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "operator"
}

// inputError marks a problem with what the operator typed, reported
// as-is instead of as an analysis failure.
type inputError struct{ err error }

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

// failMessage is the line fail prints for err.
func failMessage(err error) string {
	var ie *inputError
	switch {
	case errors.Is(err, huh.ErrUserAborted):
		return "Cancelled."
	case errors.As(err, &ie):
		return "Error: " + ie.err.Error()
	default:
		return analysis.Describe(err)
	}
}

// fail prints the operator-facing description of err and exits.
func fail(err error) {
	fmt.Fprintln(os.Stderr, failMessage(err))
	os.Exit(1)
}
