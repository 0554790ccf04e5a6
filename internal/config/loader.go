package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "demoplatform.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "DEMO_PORT")
	setString(&cfg.Server.CORSOrigin, "DEMO_CORS_ORIGIN")
	setString(&cfg.Server.BaseDomain, "DEMO_BASE_DOMAIN")
	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.Session.Lifetime, "DEMO_SESSION_LIFETIME")
	setBool(&cfg.Injector.Enabled, "DEMO_INJECTOR_ENABLED")
	setInt(&cfg.Injector.Probability, "DEMO_INJECTOR_PROBABILITY")
	setDuration(&cfg.Auth.TokenTTL, "DEMO_AUTH_TOKEN_TTL")
	setString(&cfg.Auth.TOTPIssuer, "DEMO_AUTH_TOTP_ISSUER")
	setString(&cfg.Collaborator.URL, "DEMO_COLLABORATOR_URL")
	setString(&cfg.Collaborator.AdminEmail, "DEMO_COLLABORATOR_EMAIL")
	setString(&cfg.Collaborator.AdminPassword, "DEMO_COLLABORATOR_PASSWORD")
	setString(&cfg.Jira.URL, "DEMO_JIRA_URL")
	setString(&cfg.Jira.Email, "DEMO_JIRA_EMAIL")
	setString(&cfg.Jira.APIToken, "DEMO_JIRA_API_TOKEN")
	setInt(&cfg.Cleanup.Parallelism, "DEMO_CLEANUP_PARALLELISM")
	setDuration(&cfg.Cleanup.Interval, "DEMO_CLEANUP_INTERVAL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "DEMO_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "DEMO_CACHE_TTL")
	setString(&cfg.Logging.Level, "DEMO_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DEMO_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DEMO_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "DEMO_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DEMO_BREAKER_TIMEOUT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Session.Lifetime <= 0 {
		return errors.New("session.lifetime must be positive")
	}
	if cfg.Injector.Probability < 0 || cfg.Injector.Probability > 100 {
		return errors.New("injector.probability must be between 0 and 100")
	}
	if cfg.Cleanup.Parallelism < 1 {
		return errors.New("cleanup.parallelism must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
