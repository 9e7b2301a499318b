package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"chypto_bot/internal/bot"
	"chypto_bot/internal/dedup"
	"chypto_bot/internal/repository"
	"chypto_bot/internal/repository/mongo"
	"chypto_bot/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"

	modeWebhook = "webhook"
	modePolling = "polling"

	driverPostgres = "postgres"
	driverMongo    = "mongo"
	driverMemory   = "memory"
)

type Config struct {
	Database repository.Config    `mapstructure:"database"`
	Mongo    mongo.Config         `mapstructure:"mongo"`
	Store    StoreConfig          `mapstructure:"store"`
	Redis    RedisConfig          `mapstructure:"redis"`
	Server   ServerConfig         `mapstructure:"server"`
	Telegram TelegramConfig       `mapstructure:"telegram"`
	Rewards  service.LedgerConfig `mapstructure:"rewards"`
	Links    bot.Links            `mapstructure:"links"`

	LogLevel string `mapstructure:"logLevel"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	dedup.RedisConfig `mapstructure:",squash"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type TelegramConfig struct {
	BotToken      string        `mapstructure:"botToken"`
	BotUsername   string        `mapstructure:"botUsername"`
	Mode          string        `mapstructure:"mode"`
	WebhookURL    string        `mapstructure:"webhookURL"`
	WebhookSecret string        `mapstructure:"webhookSecret"`
	UpdateTimeout time.Duration `mapstructure:"updateTimeout"`
	Debug         bool          `mapstructure:"debug"`
}

func LoadConfig() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(configPath)
	v.SetConfigType(configFormat)

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("telegram.botToken", "")
	v.SetDefault("telegram.botUsername", "")
	v.SetDefault("telegram.mode", modePolling)
	v.SetDefault("telegram.webhookURL", "")
	v.SetDefault("telegram.webhookSecret", "")
	v.SetDefault("telegram.updateTimeout", bot.DefaultUpdateTimeout)
	v.SetDefault("telegram.debug", false)

	v.SetDefault("rewards.referee", service.DefaultRefereeReward)
	v.SetDefault("rewards.referrer", service.DefaultReferrerReward)

	v.SetDefault("links.followURL", "")
	v.SetDefault("links.channelURL", "")

	v.SetDefault("store.driver", driverPostgres)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "chypto")
	v.SetDefault("database.sslMode", "disable")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.database", "chypto")
	v.SetDefault("mongo.collection", "users")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", dedup.DefaultTTL)
	v.SetDefault("redis.prefix", "")
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return errors.New("telegram.botToken is required")
	}

	switch c.Telegram.Mode {
	case modePolling:
	case modeWebhook:
		if c.Telegram.WebhookURL == "" {
			return errors.New("telegram.webhookURL is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown telegram.mode %q", c.Telegram.Mode)
	}

	if c.Telegram.UpdateTimeout <= 0 {
		return errors.New("telegram.updateTimeout must be positive")
	}

	switch c.Store.Driver {
	case driverPostgres, driverMongo, driverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	if c.Rewards.RefereeReward <= 0 || c.Rewards.ReferrerReward <= 0 {
		return errors.New("rewards.referee and rewards.referrer must be positive")
	}

	return nil
}
