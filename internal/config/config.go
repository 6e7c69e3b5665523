package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "LIVESCORE_"

type Config struct {
	// Backend REST + push endpoints
	BackendBaseURL string `koanf:"backend_base_url"`
	BackendWSURL   string `koanf:"backend_ws_url"`
	AuthToken      string `koanf:"auth_token"`

	// Push channel
	ReconnectDelay       time.Duration `koanf:"reconnect_delay"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"` // 0 = unlimited
	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval"`

	// Snapshot fetcher
	RequestTimeout time.Duration `koanf:"request_timeout"`
	ReadRateLimit  float64       `koanf:"read_rate_limit"`  // requests/sec
	WriteRateLimit float64       `koanf:"write_rate_limit"` // requests/sec

	// Reconciler
	PollInterval time.Duration `koanf:"poll_interval"`
	AutoSelect   bool          `koanf:"auto_select"`
	MatchID      int64         `koanf:"match_id"` // preselected match, 0 = none

	// Sport -> scoring model overrides
	SportsTablePath string `koanf:"sports_table_path"`

	// Raw push frame archive, empty path disables it
	ArchivePath     string `koanf:"archive_path"`
	ArchiveMaxBytes int64  `koanf:"archive_max_bytes"`

	// Completion notifications
	DiscordWebhookURL string `koanf:"discord_webhook_url"`

	// Operator HTTP surface
	OperatorAddr string `koanf:"operator_addr"`

	// Telemetry
	LogLevel string `koanf:"log_level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		BackendBaseURL: "http://localhost:8080/api",
		BackendWSURL:   "ws://localhost:8081/ws/websocket",

		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    10 * time.Second,

		RequestTimeout: 10 * time.Second,
		ReadRateLimit:  20,
		WriteRateLimit: 10,

		PollInterval: 30 * time.Second,
		AutoSelect:   true,

		ArchiveMaxBytes: 256 << 20,

		OperatorAddr: "127.0.0.1:8790",

		LogLevel: "info",
	}
}

// Load layers defaults, an optional YAML file and env vars (low -> high):
//  1. Default()
//  2. YAML file named by LIVESCORE_CONFIG
//  3. LIVESCORE_* env vars (a .env file in the working directory is loaded first)
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := *Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.BackendBaseURL == "" {
		errs = append(errs, errors.New("backend_base_url must not be empty"))
	}
	if c.BackendWSURL == "" {
		errs = append(errs, errors.New("backend_ws_url must not be empty"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("reconnect_delay must be positive"))
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("max_reconnect_attempts must be >= 0"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.ReadRateLimit <= 0 || c.WriteRateLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
