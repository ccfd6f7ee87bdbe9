package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Feed     Feed     `mapstructure:"feed"`
	Trading  Trading  `mapstructure:"trading"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Feed holds the configuration for the exchange-rate API and the local
// rate cache built on top of it.
type Feed struct {
	ApiURL         string  `mapstructure:"api_url"`
	ApiKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	PollInterval   int     `mapstructure:"poll_interval"`   // seconds between refreshes
	StalenessLimit int     `mapstructure:"staleness_limit"` // seconds before a rate counts as stale
}

// Server holds the configuration for the status API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the configuration for the trigger evaluation loop.
type Trading struct {
	Pairs        []string `mapstructure:"pairs"` // e.g. "EUR/USD"
	TickInterval int      `mapstructure:"tick_interval"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("feed.rate_limit", 5) // requests per second
	viper.SetDefault("feed.rate_limit_burst", 2)
	viper.SetDefault("feed.poll_interval", 60)
	viper.SetDefault("feed.staleness_limit", 300)
	viper.SetDefault("trading.tick_interval", 1)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
