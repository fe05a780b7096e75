package config

import (
	"fmt"
	"time"
)

// TriggerAuthConfig holds the shared secret used to sign and verify trigger tokens.
type TriggerAuthConfig struct {
	Secret string
	TTL    time.Duration
}

// TriggerAuth returns the trigger token configuration, or nil when no
// trigger secret is configured and the trigger is open.
func (c *Config) TriggerAuth() (*TriggerAuthConfig, error) {
	if c.TriggerSecret == "" {
		return nil, nil
	}
	auth := &TriggerAuthConfig{
		Secret: c.TriggerSecret,
		TTL:    c.TriggerTokenTTL.Std(),
	}
	if err := auth.normalize(); err != nil {
		return nil, err
	}
	return auth, nil
}

// normalize validates the configuration.
func (a *TriggerAuthConfig) normalize() error {
	if len(a.Secret) < 16 {
		return fmt.Errorf("TRIGGER_SECRET must be at least 16 characters")
	}
	if a.TTL == 0 {
		a.TTL = 24 * time.Hour
	}
	if a.TTL < time.Minute {
		return fmt.Errorf("TRIGGER_TOKEN_TTL must be at least 1 minute, got: %s", a.TTL)
	}
	return nil
}
