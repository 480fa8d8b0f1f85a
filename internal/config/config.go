package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	defaultOutputDir = "/tmp/glowcard"

	// EnvConfigFile points at an explicit config file
	EnvConfigFile = "GLOWCARD_CONFIG"
)

// AppConfig holds application configuration
type AppConfig struct {
	OutputDir string        `koanf:"output_dir"`
	Stream    StreamConfig  `koanf:"stream"`
	Palette   PaletteConfig `koanf:"palette"`
	Proxy     ProxyConfig   `koanf:"proxy"`
	Overlay   OverlayConfig `koanf:"overlay"`
	Tuna      TunaConfig    `koanf:"tuna"`
	Mpris     MprisConfig   `koanf:"mpris"`
	Card      CardConfig    `koanf:"card"`

	// Path is the config file that was loaded, empty when none was found
	Path string `koanf:"-"`
}

// StreamConfig configures the status-stream connection
type StreamConfig struct {
	Enabled          bool   `koanf:"enabled"`
	URL              string `koanf:"url"`
	ConnectTimeoutMs int    `koanf:"connect_timeout_ms"`
	RetryDelayMs     int    `koanf:"retry_delay_ms"`
}

// PaletteConfig configures cover sampling
type PaletteConfig struct {
	ProxyBase string `koanf:"proxy_base"`
	TimeoutMs int    `koanf:"timeout_ms"`
}

// ProxyConfig configures the local palette proxy
type ProxyConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// OverlayConfig configures the overlay HTTP server
type OverlayConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// TunaConfig configures the Tuna poller
type TunaConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	PollMs  int    `koanf:"poll_ms"`
}

// MprisConfig configures the D-Bus monitor
type MprisConfig struct {
	Enabled bool `koanf:"enabled"`
}

// CardConfig configures the card layout and CSS file output
type CardConfig struct {
	RowWidthPx  float64 `koanf:"row_width_px"`
	CharWidthPx float64 `koanf:"char_width_px"`
	GapPx       float64 `koanf:"gap_px"`
	WriteCSS    bool    `koanf:"write_css"`
}

// Default returns the configuration used when nothing overrides it
func Default() *AppConfig {
	return &AppConfig{
		OutputDir: defaultOutputDir,
		Stream: StreamConfig{
			Enabled:          true,
			URL:              "ws://localhost:6534",
			ConnectTimeoutMs: 5000,
			RetryDelayMs:     500,
		},
		Palette: PaletteConfig{
			ProxyBase: "http://127.0.0.1:65432/palette?url=",
			TimeoutMs: 10000,
		},
		Proxy: ProxyConfig{
			Enabled: true,
			Addr:    "127.0.0.1:65432",
		},
		Overlay: OverlayConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:6535",
			AllowedOrigins: []string{"*"},
		},
		Tuna: TunaConfig{
			Enabled: true,
			URL:     "http://127.0.0.1:1608/",
			PollMs:  600,
		},
		Card: CardConfig{
			RowWidthPx:  260,
			CharWidthPx: 9,
			GapPx:       32,
		},
	}
}

// NewAppConfig loads defaults, then the first config file found, then
// GLOWCARD_* environment overrides
func NewAppConfig(logger *zap.Logger) (*AppConfig, error) {
	cfg, err := Load(configPaths())
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	logger.Info("Configuration loaded",
		zap.String("file", cfg.Path),
		zap.String("outputDir", cfg.OutputDir),
		zap.Bool("stream", cfg.Stream.Enabled),
		zap.Bool("tuna", cfg.Tuna.Enabled),
		zap.Bool("mpris", cfg.Mpris.Enabled))

	return cfg, nil
}

// Load reads the first existing file of paths over the defaults
func Load(paths []string) (*AppConfig, error) {
	cfg := Default()
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		cfg.Path = path
		break
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.OutputDir = expandPath(cfg.OutputDir)
	return cfg, nil
}

// configPaths lists candidate config files, most specific first
func configPaths() []string {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return []string{expandPath(path)}
	}

	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "glowcard", "config.toml"))
	}
	return append(paths, "glowcard.toml")
}

// applyEnv overrides file values with environment variables
func applyEnv(cfg *AppConfig) {
	setString(&cfg.OutputDir, "GLOWCARD_OUTPUT_DIR")
	cfg.OutputDir = expandPath(cfg.OutputDir)

	setBool(&cfg.Stream.Enabled, "GLOWCARD_STREAM_ENABLED")
	setString(&cfg.Stream.URL, "GLOWCARD_STREAM_URL")
	setString(&cfg.Palette.ProxyBase, "GLOWCARD_PALETTE_PROXY_BASE")
	setBool(&cfg.Proxy.Enabled, "GLOWCARD_PROXY_ENABLED")
	setString(&cfg.Proxy.Addr, "GLOWCARD_PROXY_ADDR")
	setBool(&cfg.Overlay.Enabled, "GLOWCARD_OVERLAY_ENABLED")
	setString(&cfg.Overlay.Addr, "GLOWCARD_OVERLAY_ADDR")
	setBool(&cfg.Tuna.Enabled, "GLOWCARD_TUNA_ENABLED")
	setString(&cfg.Tuna.URL, "GLOWCARD_TUNA_URL")
	setInt(&cfg.Tuna.PollMs, "GLOWCARD_TUNA_POLL_MS")
	setBool(&cfg.Mpris.Enabled, "GLOWCARD_MPRIS_ENABLED")
	setBool(&cfg.Card.WriteCSS, "GLOWCARD_WRITE_CSS")

	if v := os.Getenv("GLOWCARD_OVERLAY_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Overlay.AllowedOrigins = origins
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = b
	}
}

func setInt(dst *int, key string) {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = n
	}
}

// Expand path if it contains ~ or environment variables
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetOutputDir returns the directory for generated theme files
func (c *AppConfig) GetOutputDir() string {
	return c.OutputDir
}

// ConnectTimeout returns the stream connect timeout
func (c *AppConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.Stream.ConnectTimeoutMs) * time.Millisecond
}

// RetryDelay returns the pause between stream reconnects
func (c *AppConfig) RetryDelay() time.Duration {
	return time.Duration(c.Stream.RetryDelayMs) * time.Millisecond
}

// PaletteTimeout bounds one palette sample
func (c *AppConfig) PaletteTimeout() time.Duration {
	return time.Duration(c.Palette.TimeoutMs) * time.Millisecond
}

// TunaInterval returns the Tuna poll interval
func (c *AppConfig) TunaInterval() time.Duration {
	return time.Duration(c.Tuna.PollMs) * time.Millisecond
}
