/*
Package config loads service configuration.

SOURCES (later wins):
  1. Defaults below
  2. config.yaml (optional)
  3. .env file, then environment variables prefixed BILLING_
     (billing.water.boundary -> BILLING_BILLING_WATER_BOUNDARY)
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/generic"
)

type Config struct {
	Server struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`

	Billing struct {
		BillPrefix   string `mapstructure:"bill_prefix"`
		CutoffDay    int    `mapstructure:"cutoff_day"`
		StatementDay int    `mapstructure:"statement_day"`
		DueDay       int    `mapstructure:"due_day"`
		Water        struct {
			Boundary        string `mapstructure:"boundary"`
			ZeroConsumption string `mapstructure:"zero_consumption"`
		} `mapstructure:"water"`
	} `mapstructure:"billing"`

	Scheduler struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"scheduler"`

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
}

// Load reads configuration from path (may be empty or missing) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("database.path", "billing.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("billing.bill_prefix", "SOA")
	v.SetDefault("billing.cutoff_day", 26)
	v.SetDefault("billing.statement_day", 27)
	v.SetDefault("billing.due_day", 6)
	v.SetDefault("billing.water.boundary", string(billing.BoundaryInclusive))
	v.SetDefault("billing.water.zero_consumption", string(billing.ZeroNoCharge))
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
}

// Validate rejects cycle days outside 1..28 and unknown tier strategies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return generic.NewValidationError("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if err := c.Cycle().Validate(); err != nil {
		return err
	}
	if _, err := c.TierStrategy(); err != nil {
		return err
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return generic.NewValidationError("scheduler.interval", "must be positive")
	}
	return nil
}

// Cycle returns the configured billing cycle.
func (c *Config) Cycle() generic.BillingCycle {
	return generic.BillingCycle{
		CutoffDay:    c.Billing.CutoffDay,
		StatementDay: c.Billing.StatementDay,
		DueDay:       c.Billing.DueDay,
	}
}

// TierStrategy returns the configured water tier semantics.
func (c *Config) TierStrategy() (billing.TierStrategy, error) {
	return billing.ParseTierStrategy(c.Billing.Water.Boundary, c.Billing.Water.ZeroConsumption)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
