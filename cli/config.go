package cli

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config is the assembled service configuration. Values come from flags
// and environment variables on DaemonCommand; defaults fill the rest.
type Config struct {
	GMSProtocol  string `default:"http" validate:"oneof=http https"`
	GMSHost      string `default:"localhost" validate:"required"`
	GMSPort      int    `default:"8080" validate:"gt=0,lte=65535"`
	ClientID     string `default:"__datahub_system"`
	ClientSecret string

	RefreshInterval   time.Duration `default:"1m" validate:"gt=0"`
	EvaluationTimeout time.Duration `default:"5m" validate:"gt=0"`
	Workers           int           `default:"10" validate:"gt=0"`
	QueueSize         int           `default:"100" validate:"gt=0"`
	DryRun            bool

	EnableWeb   bool
	WebAddr     string `default:":8081"`
	EnablePprof bool
	PprofAddr   string `default:"127.0.0.1:8080"`
}

var validate = validator.New()

// NewConfig fills defaults and validates the result.
func NewConfig(mutate func(*Config)) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ServerURL renders the catalog base URL.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("%s://%s:%d", c.GMSProtocol, c.GMSHost, c.GMSPort)
}
