package hubspot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hublift/hublift/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mode AuthMode) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := ClientConfig{
		BaseURL:        server.URL,
		AuthMode:       mode,
		RequestsPerSec: 1000,
	}
	switch mode {
	case AuthOAuth:
		cfg.AccessToken = "test-token"
	case AuthAPIKey:
		cfg.APIKey = "test-key"
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}, AuthOAuth)

	body, err := client.Call(context.Background(), "contacts/v1/lists", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, map[string]interface{}{"ok": true}, body)
}

func TestClientAppendsAPIKey(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}, AuthAPIKey)

	_, err := client.Call(context.Background(), "deals/v1/deal/paged",
		map[string]string{"count": "100"})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "hapikey=test-key")
	assert.Contains(t, gotQuery, "count=100")
}

func TestClientDecodesNumbersLosslessly(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vid-offset":9007199254740993}`))
	}, AuthAPIKey)

	body, err := client.Call(context.Background(), "contacts/v1/lists/all/contacts/all", nil)
	require.NoError(t, err)

	m := body.(map[string]interface{})
	num, ok := m["vid-offset"].(gojson.Number)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", num.String())
}

func TestClientEmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, AuthAPIKey)

	body, err := client.Call(context.Background(), "owners/v2/owners", nil)
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestClientStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		errType   errors.ErrorType
		retryable bool
	}{
		{http.StatusTooManyRequests, errors.ErrorTypeRateLimit, true},
		{http.StatusServiceUnavailable, errors.ErrorTypeConnection, true},
		{http.StatusUnauthorized, errors.ErrorTypeAuthentication, false},
		{http.StatusForbidden, errors.ErrorTypeAuthentication, false},
		{http.StatusNotFound, errors.ErrorTypeData, false},
	}

	for _, tc := range cases {
		status := tc.status
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}, AuthAPIKey)

		_, err := client.Call(context.Background(), "forms/v2/forms", nil)
		require.Error(t, err, "status %d", status)
		assert.True(t, errors.IsType(err, tc.errType), "status %d", status)
		assert.Equal(t, tc.retryable, errors.IsRetryable(err), "status %d", status)
	}
}

func TestClientMalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"broken`))
	}, AuthAPIKey)

	_, err := client.Call(context.Background(), "forms/v2/forms", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestNewClientValidatesCredentials(t *testing.T) {
	_, err := NewClient(ClientConfig{AuthMode: AuthOAuth})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewClient(ClientConfig{AuthMode: AuthAPIKey})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewClient(ClientConfig{AuthMode: AuthMode("basic")})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
