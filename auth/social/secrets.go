package social

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goware/cachestore"
	"github.com/goware/cachestore/cachestorectl"
)

// SecretProvider resolves an OAuth client secret for a provider tag. An empty
// secret is valid for providers doing pure PKCE without a confidential
// client.
type SecretProvider interface {
	GetClientSecret(ctx context.Context, provider string) (string, error)
}

type SecretProviderFunc func(ctx context.Context, provider string) (string, error)

func (f SecretProviderFunc) GetClientSecret(ctx context.Context, provider string) (string, error) {
	return f(ctx, provider)
}

// StaticSecrets serves secrets from memory, for local mode and tests.
type StaticSecrets map[string]string

func (s StaticSecrets) GetClientSecret(_ context.Context, provider string) (string, error) {
	return s[provider], nil
}

// SecretsManagerProvider fetches client secrets from AWS Secrets Manager under
// "oauth/<provider>" unless the provider config names a specific secret id.
type SecretsManagerProvider struct {
	client    *secretsmanager.Client
	secretIDs map[string]string
}

func NewSecretsManagerProvider(client *secretsmanager.Client, secretIDs map[string]string) *SecretsManagerProvider {
	return &SecretsManagerProvider{
		client:    client,
		secretIDs: secretIDs,
	}
}

func (p *SecretsManagerProvider) GetClientSecret(ctx context.Context, provider string) (string, error) {
	secretID := p.secretIDs[provider]
	if secretID == "" {
		secretID = "oauth/" + encodeValueForSecretName(provider)
	}

	secret, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret: %w", err)
	}
	if secret.SecretString == nil {
		return "", fmt.Errorf("secret is nil")
	}
	return *secret.SecretString, nil
}

// CachedSecrets fronts a SecretProvider with an in-memory TTL cache so the
// token exchange path does not hit Secrets Manager on every login.
type CachedSecrets struct {
	provider SecretProvider
	store    cachestore.Store[string]
	ttl      time.Duration
}

func NewCachedSecrets(cacheBackend cachestore.Backend, provider SecretProvider) (*CachedSecrets, error) {
	store, err := cachestorectl.Open[string](cacheBackend)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	return &CachedSecrets{
		provider: provider,
		store:    store,
		ttl:      1 * time.Hour,
	}, nil
}

func (c *CachedSecrets) GetClientSecret(ctx context.Context, provider string) (string, error) {
	getter := func(ctx context.Context, _ string) (string, error) {
		return c.provider.GetClientSecret(ctx, provider)
	}
	secret, err := c.store.GetOrSetWithLockEx(ctx, "oauth-secret/"+provider, getter, c.ttl)
	if err != nil {
		return "", fmt.Errorf("get secret: %w", err)
	}
	return secret, nil
}

func encodeValueForSecretName(value string) string {
	value = strings.TrimPrefix(value, "https://")
	value = strings.TrimPrefix(value, "http://")

	var result strings.Builder
	for _, char := range value {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '.' {
			result.WriteRune(char)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}
