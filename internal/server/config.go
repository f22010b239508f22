package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/driftwatch.db")

	// Plugin defaults
	v.SetDefault("plugins.source.interval", "100ms")
	v.SetDefault("plugins.source.baseline", 50.0)
	v.SetDefault("plugins.source.seasonal_amplitude", 10.0)
	v.SetDefault("plugins.source.seasonal_period", 50.0)
	v.SetDefault("plugins.source.noise_stddev", 2.0)
	v.SetDefault("plugins.source.spike_probability", 0.05)
	v.SetDefault("plugins.source.spike_mean", 30.0)
	v.SetDefault("plugins.source.spike_stddev", 10.0)
	v.SetDefault("plugins.source.seed", 0)
	v.SetDefault("plugins.source.buffer", 64)
	v.SetDefault("plugins.pipeline.smoothing_factor", 0.3)
	v.SetDefault("plugins.pipeline.threshold", 3.0)
	v.SetDefault("plugins.pipeline.history_capacity", 200)
	v.SetDefault("plugins.pipeline.batch_size", 10)
	v.SetDefault("plugins.pipeline.anomaly_retention", "720h")
	v.SetDefault("plugins.pipeline.maintenance_interval", "1h")
	v.SetDefault("plugins.alert.webhook_url", "")
	v.SetDefault("plugins.alert.min_severity", "warning")
	v.SetDefault("plugins.alert.timeout", "10s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("driftwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/driftwatch")
	}

	// Environment variable support: DW_SERVER_PORT=9090
	v.SetEnvPrefix("DW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
