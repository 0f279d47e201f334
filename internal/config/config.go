package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/hedgewatch/internal/cron"
)

// Defaults matching the upstream hedge fund service.
const (
	DefaultBaseURL      = "http://127.0.0.1:8000"
	DefaultRunPath      = "/hedge-fund/run"
	DefaultTickerSuffix = "-USDT"
	DefaultModel        = "deepseek-reasoner"
	DefaultGatewayHost  = "127.0.0.1"
	DefaultGatewayPort  = 18790
)

// Config is the root hedgewatch configuration.
type Config struct {
	Service   ServiceConfig   `json:"service"`
	Analysis  AnalysisConfig  `json:"analysis"`
	Gateway   GatewayConfig   `json:"gateway"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Tailscale TailscaleConfig `json:"tailscale"`
	Log       LogConfig       `json:"log"`

	mu sync.RWMutex
}

// ServiceConfig describes the upstream analysis service.
type ServiceConfig struct {
	BaseURL      string            `json:"baseUrl"`
	RunPath      string            `json:"runPath,omitempty"`
	TickerSuffix string            `json:"tickerSuffix"`
	Crypto       bool              `json:"crypto"`
	Token        string            `json:"token,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// AnalysisConfig holds request defaults.
type AnalysisConfig struct {
	Agents []string `json:"agents"`
	Model  string   `json:"model"`
}

// GatewayConfig configures the relay served by "hedgewatch serve".
type GatewayConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Token      string `json:"token,omitempty"`
	RateLimit  int    `json:"rateLimitRpm"` // run starts per minute per client, 0 = unlimited
	Burst      int    `json:"rateLimitBurst,omitempty"`
	RecentRuns int    `json:"recentRuns"` // finished snapshots kept for /v1/runs/{id}

	// Schedules start analyses periodically while the gateway runs.
	Schedules []cron.Job `json:"schedules,omitempty"`
}

// TelemetryConfig configures OTLP export (only used by builds with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// TailscaleConfig configures the optional tailnet listener (-tags tsnet).
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`
	StateDir  string `json:"stateDir,omitempty"`
	AuthKey   string `json:"authKey,omitempty"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
	EnableTLS bool   `json:"enableTls,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `json:"format,omitempty"` // "text" (default) or "json"
	Level  string `json:"level,omitempty"`  // "debug", "info", "warn", "error"
	File   string `json:"file,omitempty"`   // TUI mode log file
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:      DefaultBaseURL,
			RunPath:      DefaultRunPath,
			TickerSuffix: DefaultTickerSuffix,
			Crypto:       true,
		},
		Analysis: AnalysisConfig{
			Agents: []string{DefaultAgentID},
			Model:  DefaultModel,
		},
		Gateway: GatewayConfig{
			Host:       DefaultGatewayHost,
			Port:       DefaultGatewayPort,
			RateLimit:  20,
			Burst:      5,
			RecentRuns: 32,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
			File:   "~/.hedgewatch/hedgewatch.log",
		},
	}
}

// DefaultPath returns $HEDGEWATCH_CONFIG or ~/.hedgewatch/config.json.
func DefaultPath() string {
	if p := os.Getenv("HEDGEWATCH_CONFIG"); p != "" {
		return p
	}
	return ExpandHome("~/.hedgewatch/config.json")
}

// Load reads a JSON5 config file on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON, creating parent directories.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// ApplyEnvOverrides overlays HEDGEWATCH_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("HEDGEWATCH_BASE_URL", &c.Service.BaseURL)
	envStr("HEDGEWATCH_TOKEN", &c.Service.Token)
	envStr("HEDGEWATCH_MODEL", &c.Analysis.Model)
	envStr("HEDGEWATCH_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("HEDGEWATCH_GATEWAY_HOST", &c.Gateway.Host)
	envStr("HEDGEWATCH_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("HEDGEWATCH_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("HEDGEWATCH_LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv("HEDGEWATCH_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("HEDGEWATCH_AGENTS"); v != "" {
		var agents []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				agents = append(agents, NormalizeAgentID(a))
			}
		}
		if len(agents) > 0 {
			c.Analysis.Agents = agents
		}
	}
	if v := os.Getenv("HEDGEWATCH_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Validate reports configuration values the client cannot work with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service.baseUrl %q is not an absolute URL", c.Service.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("service.baseUrl scheme must be http or https, got %q", u.Scheme)
	}
	if len(c.Analysis.Agents) == 0 {
		return fmt.Errorf("analysis.agents must list at least one agent")
	}
	if strings.TrimSpace(c.Analysis.Model) == "" {
		return fmt.Errorf("analysis.model is required")
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("gateway.rateLimitRpm must not be negative")
	}
	for _, job := range c.Gateway.Schedules {
		if err := cron.Validate(job); err != nil {
			return fmt.Errorf("gateway.schedules: %w", err)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	return nil
}

// Hash returns a short content hash, used to detect effective changes on reload.
func (c *Config) Hash() string {
	c.mu.RLock()
	data, _ := json.Marshal(c)
	c.mu.RUnlock()
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// ReplaceFrom copies all sections of src into c under c's lock.
func (c *Config) ReplaceFrom(src *Config) {
	src.mu.RLock()
	service, analysis, gateway := src.Service, src.Analysis, src.Gateway
	telemetry, tailscale, logCfg := src.Telemetry, src.Tailscale, src.Log
	src.mu.RUnlock()

	c.mu.Lock()
	c.Service, c.Analysis, c.Gateway = service, analysis, gateway
	c.Telemetry, c.Tailscale, c.Log = telemetry, tailscale, logCfg
	c.mu.Unlock()
}

// ServiceSnapshot returns a copy of the service section.
func (c *Config) ServiceSnapshot() ServiceConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.Service
	if s.Headers != nil {
		h := make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			h[k] = v
		}
		s.Headers = h
	}
	return s
}

// AnalysisSnapshot returns a copy of the analysis defaults.
func (c *Config) AnalysisSnapshot() AnalysisConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a := c.Analysis
	a.Agents = append([]string(nil), a.Agents...)
	return a
}

// GatewaySnapshot returns a copy of the gateway section.
func (c *Config) GatewaySnapshot() GatewayConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.Gateway
	g.Schedules = append([]cron.Job(nil), g.Schedules...)
	return g
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
