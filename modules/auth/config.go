package auth

import (
	"fmt"
	"time"

	"github.com/Deepreo/kronos/errors"
)

const (
	DefaultTokenExpiration = 15 * time.Minute
	DefaultIssuer          = "kronos"
	minSecretLength        = 32
)

// Config configures operator authentication for the admin API.
type Config struct {
	Enabled         bool     `mapstructure:"enabled" json:"enabled"`
	SecretKey       string   `mapstructure:"secret_key" json:"secret_key"`
	TokenExpiration string   `mapstructure:"token_expiration" json:"token_expiration"`
	Issuer          string   `mapstructure:"issuer" json:"issuer"`
	RequiredRoles   []string `mapstructure:"required_roles" json:"required_roles"`
}

func DefaultConfig() Config {
	return Config{
		TokenExpiration: DefaultTokenExpiration.String(),
		Issuer:          DefaultIssuer,
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SecretKey == "" {
		return errors.ValidationError(errors.New("JWT secret key cannot be empty"))
	}
	if len(c.SecretKey) < minSecretLength {
		return errors.ValidationError(fmt.Errorf("JWT secret key must be at least %d characters", minSecretLength))
	}
	if _, err := c.expiration(); err != nil {
		return err
	}
	return nil
}

func (c Config) expiration() (time.Duration, error) {
	if c.TokenExpiration == "" {
		return DefaultTokenExpiration, nil
	}
	d, err := time.ParseDuration(c.TokenExpiration)
	if err != nil {
		return 0, errors.ValidationError(fmt.Errorf("invalid token_expiration: %s", c.TokenExpiration))
	}
	if d <= 0 {
		return 0, errors.ValidationError(errors.New("token expiration must be positive"))
	}
	return d, nil
}
