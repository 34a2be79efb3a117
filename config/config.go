package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ClickHouse holds the connection settings for the analytical store.
type ClickHouse struct {
	Host     string `env:"CLICKHOUSE_HOST"`
	Port     int    `env:"CLICKHOUSE_NATIVE_PORT" envDefault:"9000"`
	Database string `env:"CLICKHOUSE_DB_NAME"`
	Username string `env:"CLICKHOUSE_USERNAME"`
	Password string `env:"CLICKHOUSE_PASSWORD"`
}

func (c ClickHouse) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Config is the full environment-driven configuration for the API and the
// batch loader.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	GinMode     string `env:"GIN_MODE"`
	DatabaseURL string `env:"DATABASE_URL"`
	FEOrigin    string `env:"FE_ORIGIN"`
	Verbose     bool   `env:"VERBOSE"`

	// EventDataDir is the root directory of the raw per-date event logs.
	EventDataDir string `env:"EVENT_DATA_DIR" envDefault:"event_data"`
	// ArtifactPath, when set, is where the extractor writes the combined
	// canonical record file for inspection.
	ArtifactPath string `env:"EVENT_ARTIFACT_PATH"`

	ClickHouse ClickHouse
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return cfg, nil
}

// ValidateClickHouse checks the settings the store cannot run without.
func (c Config) ValidateClickHouse() error {
	if c.ClickHouse.Host == "" || c.ClickHouse.Database == "" {
		return errors.New("CLICKHOUSE_HOST and CLICKHOUSE_DB_NAME environment variables are required")
	}
	return nil
}
