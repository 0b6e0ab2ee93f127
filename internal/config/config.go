// Package config loads service configuration from a file and SIGIL_
// environment variables, with working defaults for a single-instance
// deployment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// RedisURL selects the distributed backends. Empty runs everything on
	// the in-process adapters.
	RedisURL string `mapstructure:"redis_url"`

	Issuer       string        `mapstructure:"issuer"`
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	AccessTTL    time.Duration `mapstructure:"access_ttl"`
	RefreshTTL   time.Duration `mapstructure:"refresh_ttl"`
	StepUpTTL    time.Duration `mapstructure:"step_up_ttl"`

	// SigningScheme is hs256 or es256. hs256 needs Secret; es256 needs
	// KeyFile pointing at a PEM-encoded EC private key.
	SigningScheme string `mapstructure:"signing_scheme"`
	SigningSecret string `mapstructure:"signing_secret"`
	SigningKey    string `mapstructure:"signing_key"`

	DPoPRequired  bool          `mapstructure:"dpop_required"`
	DPoPFreshness time.Duration `mapstructure:"dpop_freshness"`

	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutWindow    time.Duration `mapstructure:"lockout_window"`
	LockoutCooldown  time.Duration `mapstructure:"lockout_cooldown"`

	RiskStepUpThreshold int    `mapstructure:"risk_step_up_threshold"`
	RiskDenyThreshold   int    `mapstructure:"risk_deny_threshold"`
	BindingPolicy       string `mapstructure:"binding_policy"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":9000")
	v.SetDefault("redis_url", "")
	v.SetDefault("issuer", "sigil")
	v.SetDefault("challenge_ttl", 5*time.Minute)
	v.SetDefault("access_ttl", 15*time.Minute)
	v.SetDefault("refresh_ttl", 120*time.Hour)
	v.SetDefault("step_up_ttl", 5*time.Minute)
	v.SetDefault("signing_scheme", "hs256")
	v.SetDefault("signing_secret", "")
	v.SetDefault("signing_key", "")
	v.SetDefault("dpop_required", false)
	v.SetDefault("dpop_freshness", time.Minute)
	v.SetDefault("lockout_threshold", 5)
	v.SetDefault("lockout_window", 5*time.Minute)
	v.SetDefault("lockout_cooldown", 15*time.Minute)
	v.SetDefault("risk_step_up_threshold", 50)
	v.SetDefault("risk_deny_threshold", 85)
	v.SetDefault("binding_policy", "score")
	v.SetDefault("sweep_interval", time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
}

// Load reads configuration from the optional file at path (YAML) with
// SIGIL_-prefixed environment variables taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.SigningScheme {
	case "hs256":
		if len(c.SigningSecret) < 32 {
			return fmt.Errorf("signing_secret must be at least 32 bytes for hs256")
		}
	case "es256":
		if c.SigningKey == "" {
			return fmt.Errorf("signing_key is required for es256")
		}
	default:
		return fmt.Errorf("unknown signing_scheme %q", c.SigningScheme)
	}

	switch c.BindingPolicy {
	case "hard", "score", "off":
	default:
		return fmt.Errorf("unknown binding_policy %q", c.BindingPolicy)
	}
	return nil
}
