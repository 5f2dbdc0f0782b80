// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from the process environment.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvFrom loads configuration from vars instead of the process
// environment. Unset keys fall back to envDefault tags.
func ParseEnvFrom(target any, vars map[string]string) error {
	if vars == nil {
		vars = map[string]string{}
	}
	if err := env.ParseWithOptions(target, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
