package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hedgewatch/internal/catalog"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/credentials"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials, and connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("hedgewatch doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Printf("  Build:    otel=%t tsnet=%t\n", otelBuild, tsnetBuild)
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	svc := cfg.ServiceSnapshot()
	a := cfg.AnalysisSnapshot()

	// Service
	fmt.Println()
	fmt.Println("  Analysis service:")
	fmt.Printf("    %-12s %s%s\n", "Endpoint:", svc.BaseURL, svc.RunPath)
	fmt.Printf("    %-12s %s\n", "Reachable:", reachability(serviceAddr(svc.BaseURL)))
	fmt.Printf("    %-12s %v\n", "Agents:", a.Agents)
	fmt.Printf("    %-12s %s\n", "Model:", a.Model)
	if unknown := catalog.Default().Unknown(a.Agents); len(unknown) > 0 {
		fmt.Printf("    %-12s %v\n", "Unknown:", unknown)
	}

	// Credentials
	fmt.Println()
	fmt.Println("  Credentials:")
	token, source, err := credentials.Lookup{
		Env:     os.Getenv("HEDGEWATCH_TOKEN"),
		Config:  svc.Token,
		Account: svc.BaseURL,
		Store:   credentials.Keyring{},
	}.Resolve()
	switch {
	case err != nil:
		fmt.Printf("    %-12s unavailable (%s)\n", "Keyring:", err)
	case token == "":
		fmt.Printf("    %-12s (not configured)\n", "Token:")
	default:
		fmt.Printf("    %-12s %s (from %s)\n", "Token:", maskSecret(token), source)
	}
	if _, err := (credentials.Keyring{}).Get(svc.BaseURL); err != nil && !errors.Is(err, credentials.ErrNotFound) {
		fmt.Printf("    %-12s %s\n", "Keyring:", err)
	}

	// Gateway
	fmt.Println()
	g := cfg.GatewaySnapshot()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-12s %s\n", "Address:", gatewayAddr(cfg))
	fmt.Printf("    %-12s %s\n", "Running:", reachability(gatewayAddr(cfg)))
	fmt.Printf("    %-12s %t\n", "Auth:", g.Token != "")
	if cfg.Tailscale.Hostname != "" {
		fmt.Printf("    %-12s %s\n", "Tailnet:", cfg.Tailscale.Hostname)
	}
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s (%s)\n", "OTLP:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

// serviceAddr returns host:port for a base URL, with the scheme's default port.
func serviceAddr(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func reachability(addr string) string {
	switch {
	case addr == "":
		return "invalid address"
	case isReachable(addr):
		return "yes"
	default:
		return "NO"
	}
}
