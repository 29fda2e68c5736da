package config

import (
	"fmt"
	"os"
	"time"
)

// EncodersConfig holds the two remote embedding backends.
type EncodersConfig struct {
	Text  EncoderConfig `mapstructure:"text"`  // short-vector text backend
	Joint EncoderConfig `mapstructure:"joint"` // joint image/text backend
}

// EncoderConfig defines one remote embedding backend.
type EncoderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	BaseURLEnv string        `mapstructure:"base_url_env"` // env var holding the base URL
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ResolveEnvVars loads BaseURL from BaseURLEnv when the env var is set.
// The environment wins over the file so deployments can repoint backends.
func (c *EncoderConfig) ResolveEnvVars() {
	if c.BaseURLEnv == "" {
		return
	}
	if val := os.Getenv(c.BaseURLEnv); val != "" {
		c.BaseURL = val
	}
}

// Validate checks that the backend configuration has all required fields.
func (c *EncoderConfig) Validate(name string) error {
	if c.BaseURL == "" {
		return fmt.Errorf("encoder %q: base_url is required", name)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("encoder %q: dimensions must be positive", name)
	}
	return nil
}

// Validate checks both backends.
func (c *EncodersConfig) Validate() error {
	if err := c.Text.Validate("text"); err != nil {
		return err
	}
	return c.Joint.Validate("joint")
}
