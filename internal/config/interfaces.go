package config

import "context"

// SecretProvider resolves secret references to plaintext. SSMProvider is used
// outside local; EnvVarProvider reads the environment directly.
type SecretProvider interface {
	// GetParametersBatch returns key -> value for every key it could resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
