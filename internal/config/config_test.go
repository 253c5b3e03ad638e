package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
registration:
  domain: patient
  publishTimeout: 2s
`)
	conf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "patient", conf.Registration.Domain)
	assert.Equal(t, 2*time.Second, conf.Registration.PublishTimeout.Std())
	assert.Equal(t, 10*time.Second, conf.Registration.ProviderTimeout.Std())
	assert.Equal(t, "registration-events", conf.Registration.Topic)
	assert.Equal(t, "memory", conf.Database.Driver)
	assert.Equal(t, ":8000", conf.Server.Listen)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("IDP_CLIENT_SECRET", "from-env")
	t.Setenv("POSTGRES_DSN", "host=db user=postgres")

	path := writeConfig(t, `
identityProvider:
  driver: http
  baseURL: https://tenant.example.com
  clientSecret: from-file
database:
  driver: postgres
`)
	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", conf.IdentityProvider.ClientSecret)
	assert.Equal(t, "host=db user=postgres", conf.Database.DSN)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bad duration":     "registration:\n  providerTimeout: soon\n",
		"postgres no dsn":  "database:\n  driver: postgres\n",
		"http idp no url":  "identityProvider:\n  driver: http\n",
		"kafka no brokers": "events:\n  driver: kafka\n",
		"unknown events":   "events:\n  driver: carrier-pigeon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("POSTGRES_DSN", "")
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
