// Package config loads the server configuration from YAML, environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PTCG_LOGGING_LEVEL.
const EnvPrefix = "PTCG"

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig configures the listeners.
type ServerConfig struct {
	GRPC       GRPCConfig      `mapstructure:"grpc"`
	WebSocket  WebSocketConfig `mapstructure:"websocket"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	MaxMatches int             `mapstructure:"max_matches" validate:"gte=0"`
}

// GRPCConfig configures the gRPC listener.
type GRPCConfig struct {
	Address              string        `mapstructure:"address" validate:"required,hostname_port"`
	MaxConcurrentStreams int           `mapstructure:"max_concurrent_streams" validate:"gt=0"`
	KeepaliveTime        time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout     time.Duration `mapstructure:"keepalive_timeout"`
}

// WebSocketConfig configures the live match feed.
type WebSocketConfig struct {
	Address        string        `mapstructure:"address" validate:"required,hostname_port"`
	Path           string        `mapstructure:"path" validate:"required,startswith=/"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size" validate:"gt=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// DatabaseConfig selects and configures the plan and match store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=memory postgres sqlite"`
	URL             string        `mapstructure:"url" validate:"required_if=Driver postgres"`
	Path            string        `mapstructure:"path" validate:"required_if=Driver sqlite"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=0"`
	MinConns        int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// EngineConfig configures the rules engine.
type EngineConfig struct {
	CatalogPath  string `mapstructure:"catalog_path"`
	RulebookPath string `mapstructure:"rulebook_path"`
	ReplayDir    string `mapstructure:"replay_dir"`
	PlanVersion  int    `mapstructure:"plan_version" validate:"gte=1"`
	Mulligans    bool   `mapstructure:"mulligans"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc.address", "0.0.0.0:17171")
	v.SetDefault("server.grpc.max_concurrent_streams", 1000)
	v.SetDefault("server.grpc.keepalive_time", 2*time.Minute)
	v.SetDefault("server.grpc.keepalive_timeout", 20*time.Second)
	v.SetDefault("server.websocket.address", "0.0.0.0:17172")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.max_message_size", 64*1024)
	v.SetDefault("server.metrics.enabled", true)
	v.SetDefault("server.metrics.address", "0.0.0.0:9090")
	v.SetDefault("server.max_matches", 0)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.path", "data/referee.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("engine.catalog_path", "data/cards.yaml")
	v.SetDefault("engine.rulebook_path", "")
	v.SetDefault("engine.replay_dir", "replays")
	v.SetDefault("engine.plan_version", 1)
	v.SetDefault("engine.mulligans", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "ptcg-referee")
}

// New returns a viper instance with defaults and environment binding. path
// may be empty, in which case only defaults and the environment apply.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads the configuration file at path and validates the result. A
// missing file is an error; use an empty path to run on defaults.
func Load(path string) (*Config, error) {
	cfg, _, err := Open(path)
	return cfg, err
}

// Open is Load that also returns the viper instance, for Watch.
func Open(path string) (*Config, *viper.Viper, error) {
	v := New(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// Watch reloads the file behind v whenever it changes and hands the new
// configuration to fn. Invalid edits are reported through onError and
// otherwise ignored.
func Watch(v *viper.Viper, fn func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}
