package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
)

type secretValueGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads key values from a single AWS Secrets Manager secret holding a JSON object
// keyed by key identifier, e.g. {"KEY_0": "sk-...", "KEY_1": "sk-..."}.
// The secret is fetched once and cached for the life of the process.
type AWSProvider struct {
	client     secretValueGetter
	secretName string
	log        zerolog.Logger

	mu     sync.RWMutex
	cache  map[string]string
	loaded bool
}

// NewAWSProvider creates a provider using the default AWS credential chain.
func NewAWSProvider(ctx context.Context, region, secretName string, log zerolog.Logger) (*AWSProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Info().Str("secret", secretName).Str("region", region).Msg("using AWS Secrets Manager provider")
	return newAWSProvider(secretsmanager.NewFromConfig(cfg), secretName, log), nil
}

func newAWSProvider(client secretValueGetter, secretName string, log zerolog.Logger) *AWSProvider {
	return &AWSProvider{
		client:     client,
		secretName: secretName,
		log:        log,
		cache:      make(map[string]string),
	}
}

func (p *AWSProvider) GetSecret(ctx context.Context, keyID string) (string, error) {
	if err := p.load(ctx); err != nil {
		return "", err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if v := p.cache[keyID]; v != "" {
		return v, nil
	}
	return "", ErrKeyNotConfigured
}

func (p *AWSProvider) Name() string { return string(ProviderTypeAWS) }

func (p *AWSProvider) load(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretName),
	})
	if err != nil {
		return fmt.Errorf("failed to get secret %s: %w", p.secretName, err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", p.secretName)
	}

	values := make(map[string]string)
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return fmt.Errorf("secret %s is not a JSON object of strings: %w", p.secretName, err)
	}

	p.cache = values
	p.loaded = true
	p.log.Debug().Int("keys", len(values)).Msg("loaded key values from AWS Secrets Manager")
	return nil
}
