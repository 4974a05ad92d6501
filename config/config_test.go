package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv removes keys for the duration of the test
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	unsetEnv(t, "ESTATEAUTH_STORE", "ESTATEAUTH_ADDR", "JWT_ISSUER", "ACCESS_TOKEN_TTL",
		"REFRESH_TOKEN_TTL", "OAUTH_TIMEOUT", "LOGIN_RATE_LIMIT", "MONGO_DATABASE",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "S3_BUCKET")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "estateauth", cfg.JWTIssuer)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10*time.Second, cfg.OAuthTimeout)
	assert.Equal(t, 20, cfg.LoginRateLimit)
	assert.Equal(t, StoreFS, cfg.Store)
	assert.Equal(t, "realestate", cfg.MongoDatabase)
	assert.False(t, cfg.GoogleEnabled())
	assert.False(t, cfg.S3.Enabled())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadEnvFile(t *testing.T) {
	// godotenv never overrides variables that are already set, so these must
	// be absent for the file values to apply.
	unsetEnv(t, "JWT_SECRET", "ACCESS_TOKEN_TTL", "S3_BUCKET")
	t.Setenv("JWT_ISSUER", "from-process")

	path := filepath.Join(t.TempDir(), ".env")
	contents := "JWT_SECRET=file-secret\nACCESS_TOKEN_TTL=15m\nJWT_ISSUER=from-file\nS3_BUCKET=catalog\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-secret", cfg.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, "from-process", cfg.JWTIssuer)
	assert.True(t, cfg.S3.Enabled())
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWTSecret:       "s",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: time.Hour,
			OAuthTimeout:    time.Second,
			Store:           StoreFS,
			StoragePath:     "./data",
			MongoDatabase:   "realestate",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid fs", mutate: func(c *Config) {}},
		{name: "zero access ttl", mutate: func(c *Config) { c.AccessTokenTTL = 0 }, wantErr: "ACCESS_TOKEN_TTL"},
		{name: "negative refresh ttl", mutate: func(c *Config) { c.RefreshTokenTTL = -time.Second }, wantErr: "REFRESH_TOKEN_TTL"},
		{name: "half google credentials", mutate: func(c *Config) { c.GoogleClientID = "id" }, wantErr: "GOOGLE_CLIENT_SECRET"},
		{name: "datastore without project", mutate: func(c *Config) { c.Store = StoreDatastore }, wantErr: "DATASTORE_PROJECT"},
		{name: "mongo without uri", mutate: func(c *Config) { c.Store = StoreMongo }, wantErr: "MONGO_URI"},
		{name: "mongo with uri", mutate: func(c *Config) { c.Store = StoreMongo; c.MongoURI = "mongodb://localhost" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store = StorePostgres }, wantErr: "POSTGRES_DSN"},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "redis" }, wantErr: "unknown ESTATEAUTH_STORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
