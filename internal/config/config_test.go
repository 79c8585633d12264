package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func strPtr(s string) *string { return &s }

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "DIRGATE_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "DIRGATE_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "DIRGATE_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got := getEnv(tc.key, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "DIRGATE_TEST_INT_UNSET", setVal: nil, fallback: 42, want: 42},
		{name: "parses valid int", key: "DIRGATE_TEST_INT_VALID", setVal: strPtr("8080"), fallback: 0, want: 8080},
		{name: "errors on non-numeric", key: "DIRGATE_TEST_INT_NAN", setVal: strPtr("abc"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("parses duration", func(t *testing.T) {
		t.Setenv("DIRGATE_TEST_DUR", "90s")
		got, err := getEnvDuration("DIRGATE_TEST_DUR", time.Second)
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, got)
	})

	t.Run("errors on garbage", func(t *testing.T) {
		t.Setenv("DIRGATE_TEST_DUR_BAD", "ninety")
		_, err := getEnvDuration("DIRGATE_TEST_DUR_BAD", time.Second)
		assert.Error(t, err)
	})
}

func TestGetEnvList(t *testing.T) {
	t.Run("splits and trims", func(t *testing.T) {
		t.Setenv("DIRGATE_TEST_LIST", "refused, reset ,eof")
		got := getEnvList("DIRGATE_TEST_LIST", nil)
		assert.Equal(t, []string{"refused", "reset", "eof"}, got)
	})

	t.Run("fallback when unset", func(t *testing.T) {
		got := getEnvList("DIRGATE_TEST_LIST_UNSET", []string{"dns"})
		assert.Equal(t, []string{"dns"}, got)
	})
}

// ---------------------------------------------------------------------------
// Load / validate tests
// ---------------------------------------------------------------------------

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DIRGATE_SESSION_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("DIRGATE_VAULT_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://admin.googleapis.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 2, cfg.Upstream.RetryMax)
	assert.Equal(t, []string{"refused", "reset", "eof", "dns"}, cfg.Upstream.RetryOn)
	assert.Equal(t, 2*time.Minute, cfg.Broker.ExpiryMargin)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Greater(t, cfg.Server.WriteTimeout, cfg.Upstream.Timeout)
}

func TestLoadValidation(t *testing.T) {
	t.Run("requires session secret", func(t *testing.T) {
		t.Setenv("DIRGATE_VAULT_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DIRGATE_SESSION_JWT_SECRET")
	})

	t.Run("requires 32-byte vault key", func(t *testing.T) {
		t.Setenv("DIRGATE_SESSION_JWT_SECRET", strings.Repeat("s", 32))
		t.Setenv("DIRGATE_VAULT_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DIRGATE_VAULT_KEY")
	})

	t.Run("rejects unknown retry class", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DIRGATE_UPSTREAM_RETRY_ON", "refused,glitch")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "glitch")
	})

	t.Run("rejects relative upstream URL", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DIRGATE_UPSTREAM_BASE_URL", "/not/absolute")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("write timeout must exceed upstream timeout", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DIRGATE_SERVER_WRITE_TIMEOUT", "10s")
		t.Setenv("DIRGATE_UPSTREAM_TIMEOUT", "60s")
		_, err := Load()
		assert.Error(t, err)
	})
}
