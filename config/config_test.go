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
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CREDENTIAL_HASH_KEY", "k")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GUEST_LIMIT", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, ":8000", cfg.Addr())
	assert.False(t, cfg.Persistent())
	assert.Equal(t, 3, cfg.GuestLimit)
	assert.Equal(t, 24*time.Hour, cfg.GuestWindow)
	assert.Equal(t, int64(100), cfg.StartingAllocation)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.HandlerTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CREDENTIAL_HASH_KEY", "k")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/mcp")
	t.Setenv("ENABLE_KYC_TOOLS", "true")
	t.Setenv("GUEST_WINDOW", "1h")
	t.Setenv("HANDLER_TIMEOUT", "30")
	t.Setenv("ALLOWED_ORIGINS", "https://claude.ai, https://portal.outris.com ,")
	t.Setenv("TRUST_PROXY", "yes-please")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Persistent())
	assert.True(t, cfg.EnableKYCTools)
	assert.Equal(t, time.Hour, cfg.GuestWindow)
	assert.Equal(t, 30*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, []string{"https://claude.ai", "https://portal.outris.com"}, cfg.AllowedOrigins)
	assert.False(t, cfg.TrustProxy, "unparseable bool falls back to default")
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 0, BackendURL: "", GuestLimit: -1, HandlerTimeout: time.Second}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDENTIAL_HASH_KEY")
	assert.Contains(t, err.Error(), "BACKEND_URL")
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "GUEST_LIMIT")
}

func TestValidate_SweepGraceMustOutlastHandlerTimeout(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port: 8000, BackendURL: "http://backend", CredentialHashKey: "k",
			HandlerTimeout: 90 * time.Second, SweepGrace: 5 * time.Minute,
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name    string
		grace   time.Duration
		wantErr bool
	}{
		{"below timeout", 60 * time.Second, true},
		{"equal to timeout", 90 * time.Second, true},
		{"inside margin", 90*time.Second + SweepGraceMargin - time.Second, true},
		{"exactly margin", 90*time.Second + SweepGraceMargin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			cfg.SweepGrace = tt.grace
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "SWEEP_GRACE")
				return
			}
			assert.NoError(t, err)
		})
	}
}

type fakeSecretsAPI struct {
	value *string
	err   error
	calls int
}

func (f *fakeSecretsAPI) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestAWSSecretsManager_CachesUntilTTL(t *testing.T) {
	api := &fakeSecretsAPI{value: aws.String(`{"jwt_secret_key":"s3cret"}`)}
	sm := newAWSSecretsManager(api, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	ctx := context.Background()
	v, err := sm.GetSecret(ctx, "arn:aws:secretsmanager:ap-south-1:1:secret:mcp")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v["jwt_secret_key"])

	_, err = sm.GetSecret(ctx, "arn:aws:secretsmanager:ap-south-1:1:secret:mcp")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)

	now = now.Add(2 * time.Minute)
	_, err = sm.GetSecret(ctx, "arn:aws:secretsmanager:ap-south-1:1:secret:mcp")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls)
}

func TestAWSSecretsManager_PlainString(t *testing.T) {
	sm := newAWSSecretsManager(&fakeSecretsAPI{value: aws.String("raw-key")}, 0)
	v, err := sm.GetSecret(context.Background(), "id")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"value": "raw-key"}, v)
}

func TestAWSSecretsManager_Errors(t *testing.T) {
	sm := newAWSSecretsManager(&fakeSecretsAPI{err: errors.New("access denied")}, 0)
	_, err := sm.GetSecret(context.Background(), "arn:aws:secretsmanager:ap-south-1:1:secret:mcp")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "ap-south-1", "secret ids are masked")

	sm = newAWSSecretsManager(&fakeSecretsAPI{}, 0)
	_, err = sm.GetSecret(context.Background(), "id")
	assert.Error(t, err)
}

type mapSource map[string]string

func (m mapSource) GetSecret(ctx context.Context, id string) (map[string]string, error) {
	return m, nil
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{SecretsARN: "arn", CredentialHashKey: "env-key", BackendAPIKey: "env-backend"}
	require.NoError(t, cfg.ApplySecrets(context.Background(), mapSource{
		"credential_hash_key": "vault-key",
		"database_url":        "postgres://db/mcp",
		"backend_api_key":     "",
	}))
	assert.Equal(t, "vault-key", cfg.CredentialHashKey)
	assert.Equal(t, "postgres://db/mcp", cfg.DatabaseURL)
	assert.Equal(t, "env-backend", cfg.BackendAPIKey)

	untouched := &Config{CredentialHashKey: "x"}
	require.NoError(t, untouched.ApplySecrets(context.Background(), mapSource{"credential_hash_key": "y"}))
	assert.Equal(t, "x", untouched.CredentialHashKey)
}

func TestMaskARN(t *testing.T) {
	assert.Equal(t, "***", maskARN("short"))
	assert.Equal(t, "...67890123", maskARN("1234567890123"))
}
