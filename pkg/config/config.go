package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the bountyd service configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// LedgerConfig contains settings for the in-process bounty ledger
type LedgerConfig struct {
	// AuthorizedResolver is the single identity allowed to resolve
	// bounties. Fixed for the lifetime of the process.
	AuthorizedResolver string        `mapstructure:"authorized_resolver"`
	FeedPollInterval   time.Duration `mapstructure:"feed_poll_interval"`
}

// EthereumConfig contains settings for the optional on-chain event source.
// When RPCURL is empty the indexer consumes the in-process ledger feed.
type EthereumConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ChainID         int64         `mapstructure:"chain_id"`
	LedgerContract  string        `mapstructure:"ledger_contract"`
	StartBlock      int64         `mapstructure:"start_block"`
	PollingInterval time.Duration `mapstructure:"polling_interval"`
}

// IndexerConfig contains event consumption settings
type IndexerConfig struct {
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	ReadinessInterval time.Duration `mapstructure:"readiness_interval"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "bounty_index")

	// Ledger defaults
	viper.SetDefault("ledger.feed_poll_interval", "100ms")

	// Ethereum defaults
	viper.SetDefault("ethereum.start_block", 0)
	viper.SetDefault("ethereum.polling_interval", "15s")

	// Indexer defaults
	viper.SetDefault("indexer.retry_initial_delay", "100ms")
	viper.SetDefault("indexer.retry_max_delay", "30s")
	viper.SetDefault("indexer.readiness_interval", "5s")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ledger.AuthorizedResolver == "" {
		return fmt.Errorf("ledger.authorized_resolver is required")
	}
	if config.Ethereum.RPCURL != "" && config.Ethereum.LedgerContract == "" {
		return fmt.Errorf("ethereum.ledger_contract is required when ethereum.rpc_url is set")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
