// Package config loads gateway configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds all environment-based configuration for the gateway.
type Config struct {
	// Addr is the listen address.
	Addr string `env:"ADDR" envDefault:":3000"`

	// AppName is shown in the startup banner.
	AppName string `env:"APP_NAME" envDefault:"Order Gateway"`

	// Environment controls log format and route logging ("DEV" or "PROD").
	Environment string `env:"ENV" envDefault:"DEV"`

	// CRM identity provider settings.
	CRMClientID     string `env:"CRM_CLIENT_ID"`
	CRMClientSecret string `env:"CRM_CLIENT_SECRET"`
	CRMTokenURL     string `env:"CRM_TOKEN_URL"`
	CRMInstanceURL  string `env:"CRM_INSTANCE_URL"`
	CRMAPIVersion   string `env:"CRM_API_VERSION" envDefault:"v58.0"`

	// TenantField is the custom user field holding the home-store
	// assignment; a user without it cannot log in.
	TenantField string `env:"CRM_TENANT_FIELD" envDefault:"HomeStoreId__c"`

	// SessionSecret signs the session cookie (via HKDF key derivation).
	SessionSecret string `env:"SESSION_SECRET"`

	// SessionMaxAge bounds the session lifetime independently of token
	// expiry.
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"12h"`

	// Optional TLS serving for local development.
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`
}

// Load reads configuration from the environment, after loading a .env
// file if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] parsing environment")
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "[config.Load] validating")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"CRM_CLIENT_ID":     c.CRMClientID,
		"CRM_CLIENT_SECRET": c.CRMClientSecret,
		"CRM_TOKEN_URL":     c.CRMTokenURL,
		"CRM_INSTANCE_URL":  c.CRMInstanceURL,
		"SESSION_SECRET":    c.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return errors.Errorf("missing required environment variable: %s", name)
		}
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// IsDev reports whether the gateway runs in development mode.
func (c *Config) IsDev() bool {
	return c.Environment == "DEV"
}

// TLSEnabled reports whether TLS serving is configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
