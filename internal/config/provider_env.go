package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider against OS environment variables.
// It is used in local development, where secrets come from the shell or a
// .env file rather than SSM Parameter Store.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch resolves each key via os.LookupEnv. Keys not present in
// the environment are silently omitted from the result. The context is
// accepted for interface compatibility only.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
