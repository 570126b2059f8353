// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

// SecretSource returns the key/value pairs stored under a secret id
type SecretSource interface {
	GetSecret(ctx context.Context, secretID string) (map[string]string, error)
}

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads JSON secrets from AWS Secrets Manager and caches
// them for a TTL
type AWSSecretsManager struct {
	client secretsAPI
	ttl    time.Duration
	logger *logger.Logger

	mu    sync.RWMutex
	cache map[string]secretCacheEntry
	now   func() time.Time
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// NewAWSSecretsManager loads the default AWS credential chain
func NewAWSSecretsManager(ctx context.Context, region string, ttl time.Duration) (*AWSSecretsManager, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), ttl), nil
}

func newAWSSecretsManager(client secretsAPI, ttl time.Duration) *AWSSecretsManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: client,
		ttl:    ttl,
		logger: logger.New("secrets"),
		cache:  make(map[string]secretCacheEntry),
		now:    time.Now,
	}
}

// GetSecret returns the secret's JSON object. A secret that is not a JSON
// object is returned under the key "value".
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretID string) (map[string]string, error) {
	s.mu.RLock()
	entry, ok := s.cache[secretID]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretID), err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretID))
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		values = map[string]string{"value": *out.SecretString}
	}

	s.mu.Lock()
	s.cache[secretID] = secretCacheEntry{value: values, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Info("", "", "Loaded secret", map[string]interface{}{
		"secret": maskARN(secretID),
		"keys":   len(values),
	})
	return values, nil
}

// Invalidate drops a cached secret
func (s *AWSSecretsManager) Invalidate(secretID string) {
	s.mu.Lock()
	delete(s.cache, secretID)
	s.mu.Unlock()
}

// ApplySecrets overrides credential settings with the values stored under
// c.SecretsARN. Keys absent from the secret leave the setting untouched.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) error {
	if c.SecretsARN == "" || src == nil {
		return nil
	}
	values, err := src.GetSecret(ctx, c.SecretsARN)
	if err != nil {
		return err
	}

	targets := map[string]*string{
		"database_url":        &c.DatabaseURL,
		"redis_url":           &c.RedisURL,
		"backend_api_key":     &c.BackendAPIKey,
		"credential_hash_key": &c.CredentialHashKey,
		"jwt_secret_key":      &c.JWTSecret,
	}
	for key, dst := range targets {
		if v, ok := values[key]; ok && v != "" {
			*dst = v
		}
	}
	return nil
}

// maskARN keeps only the last 8 characters of a secret id for logging
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}
