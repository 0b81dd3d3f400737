package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// #region config

// Config holds process-level settings for the engine binaries.
type Config struct {
	DBPath           string        `env:"ENGINE_DB"                 envDefault:"assessment.db"`
	CatalogPath      string        `env:"ENGINE_CATALOG"            envDefault:"catalog.yml"`
	GRPCAddr         string        `env:"ENGINE_GRPC_ADDR"          envDefault:":50061"`
	FlowCode         string        `env:"ENGINE_FLOW_CODE"          envDefault:"onboarding_v1"`
	ResubmitPolicy   string        `env:"ENGINE_RESUBMIT_POLICY"    envDefault:"append"`
	SerializeSubject bool          `env:"ENGINE_SERIALIZE_SUBJECTS" envDefault:"false"`
	BoostComponent   string        `env:"ENGINE_BOOST_COMPONENT"    envDefault:"KAI"`
	BoostPolicy      string        `env:"ENGINE_BOOST_POLICY"       envDefault:"once"`
	StoreRetry       time.Duration `env:"ENGINE_STORE_RETRY"        envDefault:"2s"`
}

// DefaultConfig returns the values used when no environment overrides are set.
func DefaultConfig() Config {
	return Config{
		DBPath:         "assessment.db",
		CatalogPath:    "catalog.yml",
		GRPCAddr:       ":50061",
		FlowCode:       "onboarding_v1",
		ResubmitPolicy: "append",
		BoostComponent: "KAI",
		BoostPolicy:    "once",
		StoreRetry:     2 * time.Second,
	}
}

// #endregion config

// #region load

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.ResubmitPolicy {
	case "append", "ignore":
	default:
		return fmt.Errorf("ENGINE_RESUBMIT_POLICY: unknown policy %q (want append or ignore)", c.ResubmitPolicy)
	}
	switch c.BoostPolicy {
	case "once", "every":
	default:
		return fmt.Errorf("ENGINE_BOOST_POLICY: unknown policy %q (want once or every)", c.BoostPolicy)
	}
	if c.FlowCode == "" {
		return fmt.Errorf("ENGINE_FLOW_CODE must not be empty")
	}
	if c.StoreRetry < 0 {
		return fmt.Errorf("ENGINE_STORE_RETRY must not be negative")
	}
	return nil
}

// #endregion load
