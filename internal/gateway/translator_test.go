package gateway_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirgate/dirgate/internal/gateway"
)

func TestNewTranslatorRejectsRelativeBase(t *testing.T) {
	_, err := gateway.NewTranslator("admin.googleapis.com")
	assert.Error(t, err)
}

func TestTranslateMapsPathAndQuery(t *testing.T) {
	tr, err := gateway.NewTranslator("https://admin.googleapis.com")
	require.NoError(t, err)

	in := httptest.NewRequest("GET",
		"/proxy/admin/directory/v1/users?domain=example.com&maxResults=5", nil)

	out, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "GET", out.Method)
	assert.Equal(t, "admin.googleapis.com", out.URL.Host)
	assert.Equal(t, "/admin/directory/v1/users", out.URL.Path)
	assert.Equal(t, "domain=example.com&maxResults=5", out.URL.RawQuery)
}

func TestTranslatePassesBodyThrough(t *testing.T) {
	tr, err := gateway.NewTranslator("https://admin.googleapis.com")
	require.NoError(t, err)

	body := `{"primaryEmail":"new.user@example.com"}`
	in := httptest.NewRequest("POST", "/proxy/admin/directory/v1/users",
		strings.NewReader(body))
	in.Header.Set("Content-Type", "application/json")

	out, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)

	got, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.Equal(t, int64(len(body)), out.ContentLength)
	assert.Equal(t, "application/json", out.Header.Get("Content-Type"))
}

func TestTranslateStripsGatewayHeaders(t *testing.T) {
	tr, err := gateway.NewTranslator("https://admin.googleapis.com")
	require.NoError(t, err)

	in := httptest.NewRequest("GET", "/proxy/admin/directory/v1/users", nil)
	in.Header.Set("Authorization", "Bearer caller-session")
	in.Header.Set("X-API-Key", "sk_live_secret")
	in.Header.Set("X-Actor-Name", "Jordan Reyes")
	in.Header.Set("X-Actor-Email", "jordan@vendor.example")
	in.Header.Set("Connection", "keep-alive")
	in.Header.Set("Accept", "application/json")
	in.Header.Set("X-Request-Trace", "abc123")

	out, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)

	for _, h := range []string{
		"Authorization", "X-API-Key", "X-Actor-Name", "X-Actor-Email", "Connection",
	} {
		assert.Empty(t, out.Header.Get(h), h)
	}
	assert.Equal(t, "application/json", out.Header.Get("Accept"))
	assert.Equal(t, "abc123", out.Header.Get("X-Request-Trace"))
}

func TestTranslateRejectsEmptyPath(t *testing.T) {
	tr, err := gateway.NewTranslator("https://admin.googleapis.com")
	require.NoError(t, err)

	in := httptest.NewRequest("GET", "/proxy", nil)
	_, err = tr.Translate(context.Background(), in)
	assert.Error(t, err)
}
