package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"gradebook.dev/internal/auth"
)

const envPrefix = "GRADEBOOK_"

// Config is the runtime configuration of the API process.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	PGDSN    string `yaml:"pg_dsn"`
	RedisURL string `yaml:"redis_url"`

	TokenSecret string        `yaml:"token_secret"`
	TokenIssuer string        `yaml:"token_issuer"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	BcryptCost  int           `yaml:"bcrypt_cost"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	LoginRateBurst  int     `yaml:"login_rate_burst"`
	LoginRatePerSec float64 `yaml:"login_rate_per_sec"`
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is honoured.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Defaults returns the configuration used when nothing is set. It has no token
// secret and therefore does not validate on its own.
func Defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		TokenIssuer:     auth.DefaultIssuer,
		TokenTTL:        auth.DefaultTokenTTL,
		BcryptCost:      auth.DefaultBcryptCost,
		LogLevel:        "info",
		LogFormat:       "json",
		LoginRateBurst:  10,
		LoginRatePerSec: 1,
	}
}

// Load applies defaults, then the YAML file named by GRADEBOOK_CONFIG, then
// environment overrides, and validates the result.
func Load() (Config, error) {
	cfg := Defaults()
	if path := getenv(envPrefix+"CONFIG", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and leaves the defaults alone.
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getenv(envPrefix+"HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenv(envPrefix+"GRPC_ADDR", c.GRPCAddr)
	c.PGDSN = getenv(envPrefix+"PG_DSN", c.PGDSN)
	c.RedisURL = getenv(envPrefix+"REDIS_URL", c.RedisURL)
	c.TokenIssuer = getenv(envPrefix+"TOKEN_ISSUER", c.TokenIssuer)
	c.LogLevel = getenv(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv(envPrefix+"LOG_FORMAT", c.LogFormat)
	if val := getenv(envPrefix+"TRUSTED_PROXIES", ""); val != "" {
		c.TrustedProxies = strings.Split(val, ",")
	}

	secret, err := getenvKey(envPrefix+"TOKEN_SECRET", c.TokenSecret)
	if err != nil {
		return err
	}
	c.TokenSecret = secret

	if c.TokenTTL, err = getenvDuration(envPrefix+"TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}
	if c.BcryptCost, err = getenvInt(envPrefix+"BCRYPT_COST", c.BcryptCost); err != nil {
		return err
	}
	if c.LoginRateBurst, err = getenvInt(envPrefix+"LOGIN_RATE_BURST", c.LoginRateBurst); err != nil {
		return err
	}
	if c.LoginRatePerSec, err = getenvFloat(envPrefix+"LOGIN_RATE_PER_SEC", c.LoginRatePerSec); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the auth core cannot run with.
func (c Config) Validate() error {
	if len(c.TokenSecret) < auth.MinSecretBytes {
		return fmt.Errorf("token secret must be at least %d bytes", auth.MinSecretBytes)
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address is required")
	}
	if c.LoginRateBurst <= 0 || c.LoginRatePerSec <= 0 {
		return errors.New("login rate limit must be positive")
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	if val := os.Getenv(key); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return parsed, nil
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		seconds, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return fallback, nil
}

func getenvInt(key string, fallback int) (int, error) {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}

func getenvFloat(key string, fallback float64) (float64, error) {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}

// getenvKey reads a secret from key, or from the file named by key_FILE.
func getenvKey(key, fallback string) (string, error) {
	if val := os.Getenv(key); val != "" {
		return val, nil
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%s_FILE: %w", key, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return fallback, nil
}
