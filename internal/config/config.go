package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries the service-level settings. Values come from an optional
// config.yaml in the working directory, overridable via AUCTION_* env vars.
type Config struct {
	Env                    string        `mapstructure:"env"`
	Port                   string        `mapstructure:"port"`
	DatabasePath           string        `mapstructure:"database_path"`
	JWTSecret              string        `mapstructure:"jwt_secret"`
	RefundInterval         time.Duration `mapstructure:"refund_interval"`
	FeedStalenessTolerance time.Duration `mapstructure:"feed_staleness_tolerance"`
}

// Load reads and parses the configuration.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "auction.db")
	v.SetDefault("jwt_secret", "auction-secret-key")
	v.SetDefault("refund_interval", 30*time.Second)
	v.SetDefault("feed_staleness_tolerance", time.Hour)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("auction")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
