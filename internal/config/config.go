package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
)

// Config holds the main configuration for the application.
//
// It is built once at startup and passed by pointer to every component that
// needs it.
type Config struct {
	Server     Server         `mapstructure:"server"`
	Auth       Auth           `mapstructure:"auth"`
	Log        Log            `mapstructure:"log"`
	Store      Store          `mapstructure:"store"`
	Database   Database       `mapstructure:"database" validate:"-"` // checked only for the postgres driver
	Redis      Redis          `mapstructure:"redis"`
	Email      Email          `mapstructure:"email"`
	Telegram   Telegram       `mapstructure:"telegram"`
	FCM        FCM            `mapstructure:"fcm"`
	Dispatcher Dispatcher     `mapstructure:"dispatcher"`
	Scheduler  Scheduler      `mapstructure:"scheduler"`
	Retry      retry.Strategy `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string   `mapstructure:"http_port" validate:"required"` // address to listen on, e.g. ":8080"
	AllowOrigins []string `mapstructure:"allow_origins"`                 // CORS origins, "*" allows any
}

// Auth holds the shared secret that gates the dispatch endpoint.
type Auth struct {
	Secret string `mapstructure:"secret" validate:"required"`
}

// Log holds logger settings.
type Log struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`
}

// Store selects the reminder store implementation and describes its schema.
type Store struct {
	Driver              string   `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	DueColumn           string   `mapstructure:"due_column"`            // explicit due column, wins over probing
	ProbeDueColumn      bool     `mapstructure:"probe_due_column"`      // enable the probing shim when DueColumn is empty
	DueColumnCandidates []string `mapstructure:"due_column_candidates"` // probed in order
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host" validate:"required"`
	Port    string `mapstructure:"port" validate:"required"`
	User    string `mapstructure:"user" validate:"required"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name" validate:"required"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Redis holds Redis connection parameters. An empty address disables the
// status cache and the run lock.
type Redis struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	Database  int           `mapstructure:"database"`
	StatusTTL time.Duration `mapstructure:"status_ttl" validate:"gte=0"` // lifetime of cached statuses, 0 keeps them forever
}

// Email holds the email channel configuration.
type Email struct {
	Enabled   bool          `mapstructure:"enabled"`
	Transport string        `mapstructure:"transport" validate:"omitempty,oneof=api smtp"`
	APIURL    string        `mapstructure:"api_url"`
	APIKey    string        `mapstructure:"api_key" validate:"required_if=Enabled true Transport api"`
	From      string        `mapstructure:"from"`
	Timeout   time.Duration `mapstructure:"timeout"`
	SMTPHost  string        `mapstructure:"smtp_host" validate:"required_if=Enabled true Transport smtp"`
	SMTPPort  int           `mapstructure:"smtp_port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// Telegram holds configuration for the chat-message channel.
type Telegram struct {
	Enabled bool          `mapstructure:"enabled"`
	Token   string        `mapstructure:"token" validate:"required_if=Enabled true"`
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FCM holds configuration for the push channel.
type FCM struct {
	Enabled   bool          `mapstructure:"enabled"`
	ServerKey string        `mapstructure:"server_key" validate:"required_if=Enabled true"`
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Dispatcher holds the reminder dispatch policy.
type Dispatcher struct {
	DefaultChannel  string        `mapstructure:"default_channel" validate:"required,oneof=email chat push"`
	Concurrency     int           `mapstructure:"concurrency" validate:"gte=0"`  // 0 means unbounded
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" validate:"gt=0"`
	ErrorPreview    int           `mapstructure:"error_preview" validate:"gte=0"`
	RetryFailed     bool          `mapstructure:"retry_failed"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"gte=0"` // 0 means unlimited
	Timezone        string        `mapstructure:"timezone"`                      // zone due times are shown in
	RunLock         RunLock       `mapstructure:"run_lock"`
}

// RunLock configures the optional claim step for overlapping runs.
type RunLock struct {
	Enabled bool          `mapstructure:"enabled"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Scheduler configures the in-process periodic trigger. Zero interval disables it.
type Scheduler struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

var envBindings = map[string]string{
	"auth.secret": "DISPATCH_SECRET",

	"log.level": "LOG_LEVEL",

	"store.driver":     "STORE_DRIVER",
	"store.due_column": "DUE_COLUMN",

	"database.master.host": "DB_HOST",
	"database.master.port": "DB_PORT",
	"database.master.user": "DB_USER",
	"database.master.pass": "DB_PASSWORD",
	"database.master.name": "DB_NAME",

	"redis.address":  "REDIS_ADDRESS",
	"redis.password": "REDIS_PASSWORD",
	"redis.database": "REDIS_DATABASE",

	"email.api_key":   "EMAIL_API_KEY",
	"email.from":      "EMAIL_FROM",
	"email.smtp_host": "SMTP_HOST",
	"email.smtp_port": "SMTP_PORT",
	"email.username":  "SMTP_USER",
	"email.password":  "SMTP_PASS",

	"telegram.token": "TELEGRAM_TOKEN",

	"fcm.server_key": "FCM_SERVER_KEY",

	"server.http_port":     "HTTP_PORT",
	"server.allow_origins": "ALLOW_ORIGINS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.due_column_candidates", []string{"due_at", "remind_at", "scheduled_at", "send_at", "due_time"})

	v.SetDefault("database.master.port", "5432")
	v.SetDefault("database.master.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("email.transport", "api")
	v.SetDefault("email.api_url", "https://api.resend.com/emails")
	v.SetDefault("email.from", "Reminders <onboarding@example.com>")
	v.SetDefault("email.timeout", 30*time.Second)
	v.SetDefault("email.smtp_port", 587)

	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 30*time.Second)

	v.SetDefault("fcm.url", "https://fcm.googleapis.com/fcm/send")
	v.SetDefault("fcm.timeout", 30*time.Second)

	v.SetDefault("redis.status_ttl", 24*time.Hour)

	v.SetDefault("dispatcher.default_channel", "email")
	v.SetDefault("dispatcher.delivery_timeout", 30*time.Second)
	v.SetDefault("dispatcher.error_preview", 3)
	v.SetDefault("dispatcher.retry_failed", true)
	v.SetDefault("dispatcher.timezone", "UTC")
	v.SetDefault("dispatcher.run_lock.key", "reminders:dispatch:lock")
	v.SetDefault("dispatcher.run_lock.ttl", 5*time.Minute)

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 100*time.Millisecond)
	v.SetDefault("retry.backoff", 2)
}

// Load reads the configuration from ./config/config.yml (if present) and the
// environment, then validates it.
//
// Any missing required setting is reported as errs.ErrConfiguration.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", errs.ErrConfiguration, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("%w: bind env %s: %v", errs.ErrConfiguration, env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", errs.ErrConfiguration, err)
	}

	// ALLOW_ORIGINS arrives as one comma-separated string.
	origins := make([]string, 0, len(cfg.Server.AllowOrigins))
	for _, o := range cfg.Server.AllowOrigins {
		origins = append(origins, splitList(o)...)
	}
	cfg.Server.AllowOrigins = origins

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required settings, including those required only by the
// selected store driver and the enabled channels.
func (c *Config) Validate() error {
	val := validator.New()

	if err := val.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}

	if c.Store.Driver == "postgres" {
		if err := val.Struct(c.Database.Master); err != nil {
			return fmt.Errorf("%w: database: %v", errs.ErrConfiguration, err)
		}
	}

	if !c.channelEnabled(c.Dispatcher.DefaultChannel) {
		return fmt.Errorf("%w: default channel %q is not enabled", errs.ErrConfiguration, c.Dispatcher.DefaultChannel)
	}

	if _, err := time.LoadLocation(c.Dispatcher.Timezone); err != nil {
		return fmt.Errorf("%w: dispatcher.timezone: %v", errs.ErrConfiguration, err)
	}

	if c.Dispatcher.RunLock.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("%w: run lock requires redis.address", errs.ErrConfiguration)
	}

	if c.Dispatcher.RunLock.Enabled && c.Dispatcher.RunLock.TTL < c.Dispatcher.DeliveryTimeout {
		return fmt.Errorf("%w: dispatcher.run_lock.ttl %s is shorter than dispatcher.delivery_timeout %s",
			errs.ErrConfiguration, c.Dispatcher.RunLock.TTL, c.Dispatcher.DeliveryTimeout)
	}

	return nil
}

func (c *Config) channelEnabled(name string) bool {
	switch name {
	case "email":
		return c.Email.Enabled
	case "chat":
		return c.Telegram.Enabled
	case "push":
		return c.FCM.Enabled
	default:
		return false
	}
}

// Must loads and validates the configuration.
//
// It terminates the process if the configuration cannot be loaded, so the
// service never serves requests half-configured.
func Must() *Config {
	cfg, err := Load()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to load config")
	}

	return cfg
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
