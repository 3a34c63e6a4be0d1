package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drinkorder/order-gateway/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("CRM_CLIENT_ID", "client-1")
	t.Setenv("CRM_CLIENT_SECRET", "secret-1")
	t.Setenv("CRM_TOKEN_URL", "https://login.example.com/services/oauth2/token")
	t.Setenv("CRM_INSTANCE_URL", "https://crm.example.com")
	t.Setenv("SESSION_SECRET", "a-very-long-session-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, ":3000", cfg.Addr)
	require.Equal(t, "v58.0", cfg.CRMAPIVersion)
	require.Equal(t, "HomeStoreId__c", cfg.TenantField)
	require.Equal(t, 12*time.Hour, cfg.SessionMaxAge)
	require.True(t, cfg.IsDev())
	require.False(t, cfg.TLSEnabled())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_SECRET", "")

	_, err := config.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestLoadRejectsHalfConfiguredTLS(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TLS_CERT_FILE", "/tmp/cert.pem")

	_, err := config.Load()
	require.Error(t, err)
}
