package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env variable names (documented for reference)
const (
	envVersion     = "APP_VERSION"
	envLogLevel    = "LOG_LEVEL"
	envHTTPURL     = "ONEBOT_HTTP_URL"
	envWSURL       = "ONEBOT_WS_URL"
	envAccessToken = "ONEBOT_ACCESS_TOKEN"
	envRateLimit   = "ONEBOT_RATE_LIMIT" // actions per second, 0 disables the limiter
	envConfigPath  = "PLUGIN_CONFIG_PATH"
	envDataDir     = "PLUGIN_DATA_DIR"
	envDBPath      = "DB_PATH" // empty disables the history journal
	envMetricsAddr = "METRICS_ADDR"
)

// Config aggregates the process-level settings: where the OneBot
// implementation lives and where the plugin keeps its files. The plugin's own
// behaviour (blacklist, VIP limit, proactive likes) is not configured here; it
// lives in the JSON file at ConfigPath and is owned by the state store.
//
// Values come from the environment, optionally pre-populated from a .env
// file. Variables already present in the environment win over the file.
//
// Example:
//
//	ONEBOT_HTTP_URL=http://127.0.0.1:3000 LOG_LEVEL=debug go run ./cmd/autolike-bot run
type Config struct {
	Version     string // app semantic version or git SHA
	LogLevel    string // debug, info, warn, error, fatal (zap levels)
	HTTPURL     string // OneBot HTTP API base URL
	WSURL       string // OneBot forward WebSocket URL for events
	AccessToken string // OneBot access token, sent as Bearer
	RateLimit   int    // remote actions per second
	ConfigPath  string // plugin configuration JSON
	DataDir     string // plugin data directory (vip_likes.json and friends)
	DBPath      string // sqlite history journal, "" disables it
	MetricsAddr string // listen address for Prometheus endpoint, "" disables it
}

var (
	defaultVersion     = "dev"
	defaultLogLevel    = "info"
	defaultHTTPURL     = "http://127.0.0.1:3000"
	defaultWSURL       = "ws://127.0.0.1:3001"
	defaultRateLimit   = 5
	defaultConfigPath  = "data/config.json"
	defaultDataDir     = "data"
	defaultDBPath      = "data/history.db"
	defaultMetricsAddr = ":9090"
)

// Load reads the optional env file, then environment variables, applies
// defaults, validates the result and returns a ready-to-use Config instance.
// A missing env file is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config

	cfg.Version = getEnv(envVersion, defaultVersion)
	cfg.LogLevel = getEnv(envLogLevel, defaultLogLevel)
	cfg.HTTPURL = getEnv(envHTTPURL, defaultHTTPURL)
	cfg.WSURL = getEnv(envWSURL, defaultWSURL)
	cfg.AccessToken = os.Getenv(envAccessToken)
	cfg.ConfigPath = getEnv(envConfigPath, defaultConfigPath)
	cfg.DataDir = getEnv(envDataDir, defaultDataDir)
	cfg.DBPath = lookupEnv(envDBPath, defaultDBPath)
	cfg.MetricsAddr = lookupEnv(envMetricsAddr, defaultMetricsAddr)

	cfg.RateLimit = defaultRateLimit
	if s := os.Getenv(envRateLimit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envRateLimit, err)
		}
		cfg.RateLimit = n
	}

	// Validation
	if cfg.RateLimit < 0 {
		return Config{}, fmt.Errorf("%s must be >= 0", envRateLimit)
	}
	if err := checkURL(envHTTPURL, cfg.HTTPURL, "http", "https"); err != nil {
		return Config{}, err
	}
	if err := checkURL(envWSURL, cfg.WSURL, "ws", "wss"); err != nil {
		return Config{}, err
	}
	if cfg.ConfigPath == "" || cfg.DataDir == "" {
		return Config{}, fmt.Errorf("%s and %s must not be empty", envConfigPath, envDataDir)
	}
	return cfg, nil
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: want %v URL, got %q", name, schemes, raw)
}

// getEnv returns the value of the environment variable if set, otherwise def.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// lookupEnv is like getEnv but keeps an explicitly empty value, which is how
// optional components are switched off.
func lookupEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
