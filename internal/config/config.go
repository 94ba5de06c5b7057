// Package config loads aridos configuration from defaults, an optional YAML
// file and ARIDOS_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use "__",
// e.g. ARIDOS_DATABASE__URL sets database.url.
const EnvPrefix = "ARIDOS_"

// Config holds the configuration of both binaries.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	JWT           JWTConfig           `koanf:"jwt"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Agent         AgentConfig         `koanf:"agent"`
}

// ServerConfig configures the HTTP listeners of the server.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// RedisConfig configures the token store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// JWTConfig configures access tokens.
type JWTConfig struct {
	Secret   string        `koanf:"secret"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig lists browser origins allowed to call the APIs.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// NotificationsConfig configures the agent's notification fan-out.
type NotificationsConfig struct {
	Site       string           `koanf:"site"`
	FeedSize   int              `koanf:"feed_size"`
	Worker     WorkerConfig     `koanf:"worker"`
	Mattermost MattermostConfig `koanf:"mattermost"`
	Telegram   TelegramConfig   `koanf:"telegram"`
	Email      EmailConfig      `koanf:"email"`
}

// WorkerConfig configures asynchronous delivery.
type WorkerConfig struct {
	QueueSize         int           `koanf:"queue_size"`
	NumWorkers        int           `koanf:"num_workers"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	SendTimeout       time.Duration `koanf:"send_timeout"`
}

// MattermostConfig configures the Mattermost webhook route.
type MattermostConfig struct {
	Enabled     bool   `koanf:"enabled"`
	WebhookURL  string `koanf:"webhook_url"`
	Channel     string `koanf:"channel"`
	Username    string `koanf:"username"`
	IconURL     string `koanf:"icon_url"`
	MinSeverity string `koanf:"min_severity"`
}

// TelegramConfig configures the Telegram bot route.
type TelegramConfig struct {
	Enabled     bool    `koanf:"enabled"`
	BotToken    string  `koanf:"bot_token"`
	ChatID      string  `koanf:"chat_id"`
	RateLimit   float64 `koanf:"rate_limit"`
	MinSeverity string  `koanf:"min_severity"`
}

// EmailConfig configures the SMTP route.
type EmailConfig struct {
	Enabled      bool     `koanf:"enabled"`
	SMTPHost     string   `koanf:"smtp_host"`
	SMTPPort     int      `koanf:"smtp_port"`
	SMTPUser     string   `koanf:"smtp_user"`
	SMTPPassword string   `koanf:"smtp_password"`
	FromAddress  string   `koanf:"from_address"`
	Recipients   []string `koanf:"recipients"`
	TLSMode      string   `koanf:"tls_mode"`
	MinSeverity  string   `koanf:"min_severity"`
}

// AgentConfig configures the terminal agent.
type AgentConfig struct {
	Listen         string        `koanf:"listen"`
	MetricsListen  string        `koanf:"metrics_listen"`
	BackendURL     string        `koanf:"backend_url"`
	TokenFile      string        `koanf:"token_file"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	SignInTimeout  time.Duration `koanf:"sign_in_timeout"`
	SyncPolicy     string        `koanf:"sync_policy"`
	Probe          ProbeConfig   `koanf:"probe"`
}

// ProbeConfig configures backend reachability probing.
type ProbeConfig struct {
	Path             string        `koanf:"path"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold int           `koanf:"failure_threshold"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  60 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		JWT: JWTConfig{
			TokenTTL: 12 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Notifications: NotificationsConfig{
			Site:     "Áridos Valdez",
			FeedSize: 100,
			Worker: WorkerConfig{
				QueueSize:         100,
				NumWorkers:        2,
				MaxAttempts:       3,
				InitialBackoff:    time.Second,
				MaxBackoff:        5 * time.Minute,
				BackoffMultiplier: 2.0,
				SendTimeout:       10 * time.Second,
			},
			Mattermost: MattermostConfig{MinSeverity: "warning"},
			Telegram:   TelegramConfig{RateLimit: 1, MinSeverity: "warning"},
			Email:      EmailConfig{SMTPPort: 587, TLSMode: "auto", MinSeverity: "error"},
		},
		Agent: AgentConfig{
			Listen:         "127.0.0.1:8081",
			MetricsListen:  "127.0.0.1:9091",
			BackendURL:     "http://localhost:8080",
			TokenFile:      "aridos-session.json",
			RequestTimeout: 10 * time.Second,
			SignInTimeout:  15 * time.Second,
			SyncPolicy:     "clear_on_success",
			Probe: ProbeConfig{
				Path:             "/healthz",
				Interval:         5 * time.Second,
				Timeout:          3 * time.Second,
				FailureThreshold: 2,
			},
		},
	}
}

// Load reads configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// envKey maps ARIDOS_AGENT__BACKEND_URL to agent.backend_url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// ValidateServer checks what the server needs to start.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("jwt.secret must be at least 32 characters"))
	}
	errs = append(errs, c.Log.validate())
	return errors.Join(errs...)
}

// ValidateAgent checks what the agent needs to start.
func (c *Config) ValidateAgent() error {
	var errs []error
	if c.Agent.BackendURL == "" {
		errs = append(errs, errors.New("agent.backend_url is required"))
	}
	if c.Agent.Listen == "" {
		errs = append(errs, errors.New("agent.listen is required"))
	}
	switch c.Agent.SyncPolicy {
	case "", "clear_on_success", "clear_always":
	default:
		errs = append(errs, fmt.Errorf("agent.sync_policy %q must be clear_on_success or clear_always", c.Agent.SyncPolicy))
	}
	if c.Notifications.Mattermost.Enabled && c.Notifications.Mattermost.WebhookURL == "" {
		errs = append(errs, errors.New("notifications.mattermost.webhook_url is required when enabled"))
	}
	errs = append(errs, c.Log.validate())
	return errors.Join(errs...)
}

func (l LogConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", l.Format)
	}
	return nil
}
