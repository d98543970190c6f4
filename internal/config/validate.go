package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks Config for startup-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case "chromem", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be chromem or postgres, got %q", c.Store.Backend))
	}

	if c.Store.Backend == "postgres" {
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required for the postgres backend")
		}
		// The memories table is migrated with a vector(1536) column.
		if c.Embedding.Dimensions != PostgresVectorDimensions {
			errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSIONS must be %d for the postgres backend, got %d", PostgresVectorDimensions, c.Embedding.Dimensions))
		}
	}

	switch c.LLM.Provider {
	case "claude":
		if c.LLM.APIKey == "" {
			errs = append(errs, "ANTHROPIC_API_KEY is required for the claude provider")
		}
	case "mock", "":
	default:
		errs = append(errs, fmt.Sprintf("LLM_PROVIDER must be claude or mock, got %q", c.LLM.Provider))
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			errs = append(errs, "OPENAI_API_KEY is required for the openai provider")
		}
	case "mock", "":
	default:
		errs = append(errs, fmt.Sprintf("EMBEDDING_PROVIDER must be openai or mock, got %q", c.Embedding.Provider))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSIONS must be positive, got %d", c.Embedding.Dimensions))
	}

	switch c.Save.Mode {
	case "sync", "async":
	default:
		errs = append(errs, fmt.Sprintf("SAVE_MODE must be sync or async, got %q", c.Save.Mode))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
