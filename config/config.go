package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Lobby    LobbyConfig    `mapstructure:"lobby"`
	Game     GameConfig     `mapstructure:"game"`
	Events   EventsConfig   `mapstructure:"events"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address" validate:"required"`
	RPCAddress        string        `mapstructure:"rpc_address" validate:"required"`
	MetricsAddress    string        `mapstructure:"metrics_address"`
	HealthAddress     string        `mapstructure:"health_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gt=0"`
}

type LobbyConfig struct {
	MaxLobbies int `mapstructure:"max_lobbies" validate:"gte=1"`
	CodeLength int `mapstructure:"code_length" validate:"gte=4,lte=21"`
}

type GameConfig struct {
	// IdleTimeout ends an idle match in favour of the last connected player.
	// Zero disables the forfeit.
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ScoreThreshold int           `mapstructure:"score_threshold" validate:"gte=1"`
}

type EventsConfig struct {
	PoolSize int `mapstructure:"pool_size" validate:"gte=1"`
}

type ChatConfig struct {
	History int `mapstructure:"history" validate:"gte=0"`
}

type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Driver   string         `mapstructure:"driver" validate:"oneof=gorm sql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// LoadConfig reads config.yaml from path, overlays CODEX_* environment variables
// and validates the result. A missing config file is not an error: defaults apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("codex")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file or env override exists.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9100")
	v.SetDefault("server.health_address", ":8082")
	v.SetDefault("server.heartbeat_interval", 5*time.Second)

	v.SetDefault("lobby.max_lobbies", 256)
	v.SetDefault("lobby.code_length", 6)

	v.SetDefault("game.idle_timeout", 0)
	v.SetDefault("game.score_threshold", 20)

	v.SetDefault("events.pool_size", 256)
	v.SetDefault("chat.history", 100)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "codex")
	v.SetDefault("database.postgres.dbname", "codex")

	v.SetDefault("log.level", "info")
}
