package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	defaultAddr       = ":8080"
	defaultTokenTTL   = 24 * time.Hour
	defaultIssuer     = "civreg"
	defaultBcryptCost = 12
	defaultRateBurst  = 20
	defaultRatePerSec = 10
)

// Duration accepts "24h" style strings in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config carries everything the process needs at startup. The token secret
// and TTL are injected into the token issuer at construction; nothing reads
// them from ambient globals afterwards.
type Config struct {
	Addr        string   `yaml:"addr"`
	PGDSN       string   `yaml:"pg_dsn"`
	TokenSecret string   `yaml:"token_secret"`
	TokenTTL    Duration `yaml:"token_ttl"`
	Issuer      string   `yaml:"issuer"`
	BcryptCost  int      `yaml:"bcrypt_cost"`
	RateBurst   int      `yaml:"rate_burst"`
	RatePerSec  int      `yaml:"rate_per_sec"`
	CORSOrigin  string   `yaml:"cors_origin"`

	// SecureCookie marks the session cookie Secure; leave false only for
	// plain-HTTP development setups.
	SecureCookie bool `yaml:"secure_cookie"`
}

// Load reads the optional YAML file at path, then applies CIVREG_* env
// overrides and defaults. A missing file is not an error; a missing token
// secret is.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return Config{}, errors.New("token secret is not configured (set CIVREG_TOKEN_SECRET)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := getenv("CIVREG_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("CIVREG_PG_DSN"); v != "" {
		cfg.PGDSN = v
	}
	if v := getenv("CIVREG_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := getenv("CIVREG_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TokenTTL = Duration(d)
		}
	}
	if v := getenv("CIVREG_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := getenv("CIVREG_BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BcryptCost = n
		}
	}
	if v := getenv("CIVREG_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateBurst = n
		}
	}
	if v := getenv("CIVREG_RATE_PER_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RatePerSec = n
		}
	}
	if v := getenv("CIVREG_CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}
	if v := getenv("CIVREG_SECURE_COOKIE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SecureCookie = b
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = Duration(defaultTokenTTL)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = defaultBcryptCost
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
