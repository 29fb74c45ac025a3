// Package config resolves client settings from flags, environment variables and an
// optional .env file. Precedence: flag > environment > built-in default.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config is the resolved client configuration.
type Config struct {
	ServerURL      string
	Username       string
	AssetBase      string
	WorldImage     string
	WorldWidth     float64
	WorldHeight    float64
	WindowWidth    int
	WindowHeight   int
	ReconnectDelay time.Duration
	DecodeWorkers  int

	LogLevel  string
	LogFormat string
	LogFile   string

	MetricsAddr string
	TraceFile   string
	DumpTrace   string
}

// Environment variable names.
const (
	EnvServerURL      = "MMO_SERVER_URL"
	EnvUsername       = "MMO_USERNAME"
	EnvAssetBase      = "MMO_ASSET_BASE"
	EnvWorldImage     = "MMO_WORLD_IMAGE"
	EnvReconnectDelay = "MMO_RECONNECT_DELAY"
	EnvLogLevel       = "MMO_LOG_LEVEL"
	EnvLogFormat      = "MMO_LOG_FORMAT"
	EnvLogFile        = "MMO_LOG_FILE"
	EnvMetricsAddr    = "MMO_METRICS_ADDR"
	EnvTraceFile      = "MMO_TRACE_FILE"
)

const (
	DefaultServerURL      = "ws://localhost:8080/ws"
	DefaultWorldImage     = "world.png"
	DefaultReconnectDelay = 3 * time.Second
	defaultWorldSize      = 2000
	defaultWindowWidth    = 1024
	defaultWindowHeight   = 768
)

// LoadDotEnv loads variables from the given files (".env" when none) without overriding
// variables already set. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Parse builds a Config from args (without the program name) and the lookup function
// (usually os.LookupEnv).
func Parse(args []string, lookup func(string) (string, bool)) (*Config, error) {
	env := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	delayDefault := DefaultReconnectDelay
	if v := env(EnvReconnectDelay, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvReconnectDelay, err)
		}
		delayDefault = d
	}

	cfg := &Config{}
	fsFlags := flag.NewFlagSet("mmo-client", flag.ContinueOnError)
	fsFlags.StringVar(&cfg.ServerURL, "server", env(EnvServerURL, DefaultServerURL), "websocket server URL")
	fsFlags.StringVar(&cfg.Username, "username", env(EnvUsername, ""), "name to join with (random guest name when empty)")
	fsFlags.StringVar(&cfg.AssetBase, "asset-base", env(EnvAssetBase, ""), "http(s) base URL or directory for images (derived from -server when empty)")
	fsFlags.StringVar(&cfg.WorldImage, "world-image", env(EnvWorldImage, DefaultWorldImage), "background world image, resolved against -asset-base")
	fsFlags.Float64Var(&cfg.WorldWidth, "world-width", defaultWorldSize, "world width used until the background image is loaded")
	fsFlags.Float64Var(&cfg.WorldHeight, "world-height", defaultWorldSize, "world height used until the background image is loaded")
	fsFlags.IntVar(&cfg.WindowWidth, "width", defaultWindowWidth, "initial window width")
	fsFlags.IntVar(&cfg.WindowHeight, "height", defaultWindowHeight, "initial window height")
	fsFlags.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", delayDefault, "wait before reconnecting after the socket closes")
	fsFlags.IntVar(&cfg.DecodeWorkers, "decode-workers", 4, "concurrent avatar image decoders")
	fsFlags.StringVar(&cfg.LogLevel, "log", env(EnvLogLevel, "info"), "log level (debug, info, warn, error)")
	fsFlags.StringVar(&cfg.LogFormat, "log-format", env(EnvLogFormat, "text"), "log format (text, json)")
	fsFlags.StringVar(&cfg.LogFile, "log-file", env(EnvLogFile, ""), "rolling log file (stdout only when empty)")
	fsFlags.StringVar(&cfg.MetricsAddr, "metrics", env(EnvMetricsAddr, ""), "prometheus metrics address, e.g. :9090")
	fsFlags.StringVar(&cfg.TraceFile, "trace", env(EnvTraceFile, ""), "record inbound frames to this file")
	fsFlags.StringVar(&cfg.DumpTrace, "dump-trace", "", "print a recorded trace as JSON lines and exit")
	if err := fsFlags.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Username == "" {
		cfg.Username = "guest-" + uuid.New().String()[:4]
	}
	if cfg.AssetBase == "" {
		base, err := AssetBaseFromServer(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		cfg.AssetBase = base
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromOS parses os.Args after loading .env.
func FromOS() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return Parse(os.Args[1:], os.LookupEnv)
}

// AssetBaseFromServer derives the http origin serving images from the websocket URL:
// ws://host:8080/ws -> http://host:8080/.
func AssetBaseFromServer(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("server url %q: scheme must be ws or wss", server)
	}
	u.Path = "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server url %q: scheme must be ws or wss", c.ServerURL)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.WorldWidth <= 0 || c.WorldHeight <= 0 {
		return fmt.Errorf("world size must be positive, got %sx%s",
			strconv.FormatFloat(c.WorldWidth, 'f', -1, 64), strconv.FormatFloat(c.WorldHeight, 'f', -1, 64))
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", c.WindowWidth, c.WindowHeight)
	}
	if c.DecodeWorkers <= 0 {
		c.DecodeWorkers = 1
	}
	return nil
}
