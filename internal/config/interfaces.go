package config

import "context"

// SecretProvider abstracts secret retrieval so that startup configuration can
// be resolved from AWS SSM Parameter Store in deployed environments and from
// plain environment variables in local development and tests.
type SecretProvider interface {
	// GetParametersBatch resolves the given keys (SSM parameter paths or
	// equivalent identifiers) and returns a map of key -> plaintext value
	// for every key that was found.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
