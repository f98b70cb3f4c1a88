package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, StoragePostgres, cfg.App.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, 70, cfg.Certificates.DefaultPassThreshold)
	assert.Equal(t, 16, cfg.Certificates.MaxConflictRetries)
	assert.Equal(t, 24*time.Hour, cfg.Redis.CertificateTTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Redis.ReadTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Address())
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "X-Admin-Key", cfg.Auth.AdminKeyHeader)
	assert.True(t, cfg.Reconcile.Enabled)
	assert.Equal(t, "@every 5m", cfg.Reconcile.Schedule)
	assert.Equal(t, time.Minute, cfg.Reconcile.Grace)
	assert.Equal(t, 100, cfg.Reconcile.BatchSize)
	assert.True(t, cfg.UsesPostgres())
	assert.True(t, cfg.IsDevelopment())

	require.NotNil(t, cfg.Features)
	assert.True(t, cfg.Features.Enabled(FeatureVerificationCache))
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DEFAULT_PASS_THRESHOLD", "80")
	t.Setenv("COURSE_POLICIES_FILE", "/etc/certiva/policies.yaml")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("FEATURE_CERTIFICATE_RENDERING", "false")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.App.StorageDriver)
	assert.Equal(t, 80, cfg.Certificates.DefaultPassThreshold)
	assert.Equal(t, "/etc/certiva/policies.yaml", cfg.Certificates.PoliciesFile)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.False(t, cfg.Features.Enabled(FeatureCertificateRendering))
}

func TestLoadFrom_File(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("HTTP_PORT", "9191")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  name: certiva-test
certificates:
  issuer_name: Example Academy
http:
  port: 9090
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "certiva-test", cfg.App.Name)
	assert.Equal(t, "Example Academy", cfg.Certificates.IssuerName)
	assert.Equal(t, 9191, cfg.HTTP.Port, "environment wins over the file")
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:          AppConfig{Environment: EnvDevelopment, StorageDriver: StoragePostgres},
			HTTP:         HTTPConfig{Port: 8080},
			Auth:         AuthConfig{JWTSecret: "secret"},
			Certificates: CertificatesConfig{DefaultPassThreshold: 70, MaxConflictRetries: 16, RenderWidth: 10, RenderHeight: 10},
		}
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"missing secret":     func(c *Config) { c.Auth.JWTSecret = "" },
		"unknown driver":     func(c *Config) { c.App.StorageDriver = "sqlite" },
		"threshold too high": func(c *Config) { c.Certificates.DefaultPassThreshold = 101 },
		"threshold negative": func(c *Config) { c.Certificates.DefaultPassThreshold = -1 },
		"no retries":         func(c *Config) { c.Certificates.MaxConflictRetries = 0 },
		"bad port":           func(c *Config) { c.HTTP.Port = 0 },
		"reconcile without schedule": func(c *Config) {
			c.Reconcile = ReconcileConfig{Enabled: true, BatchSize: 10}
		},
		"reconcile without batch": func(c *Config) {
			c.Reconcile = ReconcileConfig{Enabled: true, Schedule: "@hourly"}
		},
		"memory in prod": func(c *Config) {
			c.App.Environment = EnvProduction
			c.App.StorageDriver = StorageMemory
			c.Auth.JWTSecret = string(make([]byte, 32))
		},
		"short secret in prod": func(c *Config) { c.App.Environment = EnvProduction },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	c := &Config{
		App:          AppConfig{StorageDriver: "x"},
		Certificates: CertificatesConfig{DefaultPassThreshold: 500},
	}

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DEFAULT_PASS_THRESHOLD")
	assert.Contains(t, err.Error(), "HTTP_PORT")
}
