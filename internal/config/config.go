// Package config provides hierarchical configuration loading for the demo
// platform. Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the demo-platform service.
type Config struct {
	Server       Server       `yaml:"server"`
	NATS         NATS         `yaml:"nats"`
	Session      Session      `yaml:"session"`
	Injector     Injector     `yaml:"injector"`
	Auth         Auth         `yaml:"auth"`
	Collaborator Collaborator `yaml:"collaborator"`
	Jira         Jira         `yaml:"jira"`
	Cleanup      Cleanup      `yaml:"cleanup"`
	Cache        Cache        `yaml:"cache"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	BaseDomain string `yaml:"base_domain"` // e.g. demo.example.com
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL string `yaml:"url"`
}

// Session holds demo session lifecycle configuration.
type Session struct {
	Lifetime time.Duration `yaml:"lifetime"`
}

// Injector holds the default bug-injection settings applied when no
// configuration has been stored yet.
type Injector struct {
	Enabled     bool `yaml:"enabled"`
	Probability int  `yaml:"probability"` // percent, 0-100
}

// Auth holds admin authentication configuration.
type Auth struct {
	TokenTTL   time.Duration `yaml:"token_ttl"`
	TOTPIssuer string        `yaml:"totp_issuer"`
}

// Collaborator holds the external bug-tracking product's admin API
// configuration.
type Collaborator struct {
	URL           string `yaml:"url"`
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// Jira holds the optional Jira Cloud integration configuration.
type Jira struct {
	URL      string `yaml:"url"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

// Cleanup holds orphan-cleanup configuration.
type Cleanup struct {
	Parallelism int           `yaml:"parallelism"`
	Interval    time.Duration `yaml:"interval"` // 0 disables the background sweep
}

// Cache holds tiered cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	TTL         time.Duration `yaml:"ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for collaborator calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
			BaseDomain: "localhost",
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Session: Session{
			Lifetime: 2 * time.Hour,
		},
		Injector: Injector{
			Enabled:     true,
			Probability: 30,
		},
		Auth: Auth{
			TokenTTL:   12 * time.Hour,
			TOTPIssuer: "Demo Platform",
		},
		Cleanup: Cleanup{
			Parallelism: 4,
			Interval:    0,
		},
		Cache: Cache{
			L1MaxSizeMB: 32,
			TTL:         time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "demo-platform",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}
