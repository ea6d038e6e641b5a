// Package config provides the configuration for a dbpool connection pool.
// It defines a single PoolConfig structure covering the database target,
// the pool credential, the sizing and timeout parameters handed to the
// driver and the statistics collection switches.
//
// Example usage:
//
//	cfg := config.NewPoolConfig()
//	cfg.Database.Type = "postgres"
//	cfg.Database.URL = "postgres://db.internal:5432/orders"
//	cfg.Database.Username = "scott"
//	cfg.Database.Password = "${DB_PASSWORD}"
//	cfg.MaximumPoolSize = 16
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// Defaults and limits for pool tuning parameters.
const (
	DefaultDriver             = "channel"
	DefaultMaximumPoolSize    = 8
	DefaultMinimumPoolSize    = 4
	DefaultIdleTimeout        = 60 * time.Second
	DefaultCheckoutTimeout    = 30 * time.Second
	DefaultCleanupInterval    = 20 * time.Second
	DefaultSnapshotInterval   = 10 * time.Millisecond
	DefaultSnapshotSize       = 1000
	MaximumPoolSizeUpperBound = 1000
)

// PoolConfig is the complete configuration of one pool.
type PoolConfig struct {
	// Name identifies the pool in logs and metrics
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Driver selects the registered pool driver (default "channel")
	Driver string `yaml:"driver" json:"driver" mapstructure:"driver"`

	// Database describes the target and the pool credential
	Database DatabaseConfig `yaml:"database" json:"database" mapstructure:"database"`

	// MaximumPoolSize caps the number of physical connections (1-1000)
	MaximumPoolSize int `yaml:"maximum_pool_size" json:"maximum_pool_size" mapstructure:"maximum_pool_size"`
	// MinimumPoolSize is the number of connections kept open when idle (0-max)
	MinimumPoolSize int `yaml:"minimum_pool_size" json:"minimum_pool_size" mapstructure:"minimum_pool_size"`
	// IdleTimeout closes pooled connections idle for longer than this
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	// CheckoutTimeout bounds how long a checkout waits for a free connection
	CheckoutTimeout time.Duration `yaml:"checkout_timeout" json:"checkout_timeout" mapstructure:"checkout_timeout"`
	// CleanupInterval is how often idle connections are evicted
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" mapstructure:"cleanup_interval"`
	// ValidateOnCheckout validates every connection before handing it out
	ValidateOnCheckout bool `yaml:"validate_on_checkout" json:"validate_on_checkout" mapstructure:"validate_on_checkout"`

	// Statistics controls the statistics counter
	Statistics StatisticsConfig `yaml:"statistics" json:"statistics" mapstructure:"statistics"`
}

// DatabaseConfig is the database target and the pool credential.
type DatabaseConfig struct {
	// Type selects the registered connection factory (postgres, mysql, snowflake)
	Type string `yaml:"type" json:"type" mapstructure:"type"`
	// URL is the connection string without credentials
	URL string `yaml:"url" json:"url" mapstructure:"url"`
	// Username is the pool user
	Username string `yaml:"username" json:"username" mapstructure:"username"`
	// Password is the pool user's password (use ${VAR} substitution)
	Password string `yaml:"password" json:"-" mapstructure:"password"`
}

// StatisticsConfig controls check-out time and snapshot collection.
type StatisticsConfig struct {
	// CollectCheckOutTimes records the duration of every checkout
	CollectCheckOutTimes bool `yaml:"collect_check_out_times" json:"collect_check_out_times" mapstructure:"collect_check_out_times"`
	// CollectSnapshots samples pool occupancy in the background
	CollectSnapshots bool `yaml:"collect_snapshots" json:"collect_snapshots" mapstructure:"collect_snapshots"`
	// SnapshotInterval is the sampling period
	SnapshotInterval time.Duration `yaml:"snapshot_interval" json:"snapshot_interval" mapstructure:"snapshot_interval"`
	// SnapshotSize is the number of samples retained
	SnapshotSize int `yaml:"snapshot_size" json:"snapshot_size" mapstructure:"snapshot_size"`
}

// NewPoolConfig returns a PoolConfig with the default tuning parameters.
func NewPoolConfig() *PoolConfig {
	return &PoolConfig{
		Driver:          DefaultDriver,
		MaximumPoolSize: DefaultMaximumPoolSize,
		MinimumPoolSize: DefaultMinimumPoolSize,
		IdleTimeout:     DefaultIdleTimeout,
		CheckoutTimeout: DefaultCheckoutTimeout,
		CleanupInterval: DefaultCleanupInterval,
		Statistics: StatisticsConfig{
			SnapshotInterval: DefaultSnapshotInterval,
			SnapshotSize:     DefaultSnapshotSize,
		},
	}
}

// ApplyDefaults fills zero values left by a partial config file.
func (c *PoolConfig) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.MaximumPoolSize == 0 {
		c.MaximumPoolSize = DefaultMaximumPoolSize
		if c.MinimumPoolSize > c.MaximumPoolSize {
			c.MaximumPoolSize = c.MinimumPoolSize
		}
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.CheckoutTimeout == 0 {
		c.CheckoutTimeout = DefaultCheckoutTimeout
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.Statistics.SnapshotInterval == 0 {
		c.Statistics.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.Statistics.SnapshotSize == 0 {
		c.Statistics.SnapshotSize = DefaultSnapshotSize
	}
}

// Validate checks every tuning parameter and returns a config error naming
// the first one out of range.
func (c *PoolConfig) Validate() error {
	if err := ValidatePoolSize(c.MinimumPoolSize, c.MaximumPoolSize); err != nil {
		return err
	}
	if err := ValidatePositive("idle_timeout", c.IdleTimeout); err != nil {
		return err
	}
	if err := ValidatePositive("checkout_timeout", c.CheckoutTimeout); err != nil {
		return err
	}
	if err := ValidatePositive("cleanup_interval", c.CleanupInterval); err != nil {
		return err
	}
	if err := ValidatePositive("snapshot_interval", c.Statistics.SnapshotInterval); err != nil {
		return err
	}
	if c.Statistics.SnapshotSize < 1 {
		return poolerrors.New(poolerrors.ErrorTypeConfig, "snapshot_size must be at least 1").
			WithDetail("snapshot_size", c.Statistics.SnapshotSize)
	}
	return nil
}

// ValidatePoolSize checks 1 <= maximum <= 1000 and 0 <= minimum <= maximum.
func ValidatePoolSize(minimum, maximum int) error {
	if maximum < 1 || maximum > MaximumPoolSizeUpperBound {
		return poolerrors.Newf(poolerrors.ErrorTypeConfig,
			"maximum pool size must be between 1 and %d", MaximumPoolSizeUpperBound).
			WithDetail("maximum_pool_size", maximum)
	}
	if minimum < 0 {
		return poolerrors.New(poolerrors.ErrorTypeConfig, "minimum pool size must not be negative").
			WithDetail("minimum_pool_size", minimum)
	}
	if maximum < minimum {
		return poolerrors.New(poolerrors.ErrorTypeConfig, "maximum pool size must not be less than minimum pool size").
			WithDetail("minimum_pool_size", minimum).
			WithDetail("maximum_pool_size", maximum)
	}
	return nil
}

// ValidatePositive returns a config error when d is not positive.
func ValidatePositive(name string, d time.Duration) error {
	if d <= 0 {
		return poolerrors.Newf(poolerrors.ErrorTypeConfig, "%s must be positive", name).
			WithDetail(name, d)
	}
	return nil
}
