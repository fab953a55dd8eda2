// Package secrets resolves schedule key identifiers to the secret values handed out to callers.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrKeyNotConfigured is returned when no value is configured for a key identifier.
	ErrKeyNotConfigured = errors.New("key not configured")
	// ErrInvalidConfig is returned when a provider cannot be constructed from its settings.
	ErrInvalidConfig = errors.New("invalid secrets provider configuration")
)

// Provider looks up the secret value of a key identifier such as "KEY_3".
type Provider interface {
	// GetSecret returns ErrKeyNotConfigured if the value is missing or empty.
	GetSecret(ctx context.Context, keyID string) (string, error)
	// Name returns the provider's identifier ("env", "aws").
	Name() string
}

// ProviderType selects a Provider implementation.
type ProviderType string

const (
	ProviderTypeEnv ProviderType = "env"
	ProviderTypeAWS ProviderType = "aws"
)

// Options configures NewProvider.
type Options struct {
	Type      ProviderType
	KeyPrefix string
	AWSRegion string
	AWSSecret string
}

// NewProvider builds the provider named by opts.Type, defaulting to environment variables.
func NewProvider(ctx context.Context, opts Options, log zerolog.Logger) (Provider, error) {
	switch opts.Type {
	case "", ProviderTypeEnv:
		log.Info().Str("prefix", opts.KeyPrefix).Msg("using environment secrets provider")
		return NewEnvProvider(opts.KeyPrefix), nil
	case ProviderTypeAWS:
		if opts.AWSRegion == "" || opts.AWSSecret == "" {
			return nil, fmt.Errorf("%w: aws provider requires region and secret name", ErrInvalidConfig)
		}
		return NewAWSProvider(ctx, opts.AWSRegion, opts.AWSSecret, log)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, opts.Type)
	}
}

// EnvProvider reads secrets from environment variables named <prefix>_<index>,
// so KEY_3 with prefix OPENAIKEY maps to OPENAIKEY_3.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider creates a provider over the process environment.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// EnvName returns the environment variable consulted for keyID.
func (p *EnvProvider) EnvName(keyID string) string {
	return p.prefix + strings.TrimPrefix(keyID, "KEY")
}

func (p *EnvProvider) GetSecret(_ context.Context, keyID string) (string, error) {
	v, ok := p.lookup(p.EnvName(keyID))
	if !ok || v == "" {
		return "", ErrKeyNotConfigured
	}
	return v, nil
}

func (p *EnvProvider) Name() string { return string(ProviderTypeEnv) }
