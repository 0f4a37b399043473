package hubspot

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/hublift/hublift/pkg/clients"
	"github.com/hublift/hublift/pkg/errors"
	"github.com/hublift/hublift/pkg/jsonpool"
	"github.com/hublift/hublift/pkg/logger"
)

// Caller performs one authenticated GET against an endpoint and returns the
// decoded JSON body. A nil body with a nil error means the upstream returned
// nothing at all.
type Caller interface {
	Call(ctx context.Context, endpoint string, params map[string]string) (interface{}, error)
}

// AuthMode selects how requests are authenticated.
type AuthMode string

const (
	// AuthOAuth sends a bearer token on every request.
	AuthOAuth AuthMode = "oauth"
	// AuthAPIKey appends the key as the hapikey query parameter.
	AuthAPIKey AuthMode = "apikey"
)

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL        string
	AuthMode       AuthMode
	AccessToken    string
	APIKey         string
	RequestTimeout time.Duration
	RequestsPerSec int
	RateLimitBurst int
}

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://api.hubapi.com"

// Client is the concrete Caller backed by net/http with connection pooling,
// token-bucket throttling, and bearer or query-key authentication.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authMode   AuthMode
	apiKey     string
	limiter    *clients.RateLimiter
}

// NewClient validates credentials for the selected auth mode and builds the
// pooled transport.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RequestsPerSec
	}

	base := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	client := &Client{
		httpClient: base,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		authMode:   cfg.AuthMode,
		apiKey:     cfg.APIKey,
		limiter:    clients.NewRateLimiter(cfg.RequestsPerSec, cfg.RateLimitBurst),
	}

	switch cfg.AuthMode {
	case AuthOAuth:
		if cfg.AccessToken == "" {
			return nil, errors.New(errors.ErrorTypeConfig,
				"oauth auth mode requires an access token")
		}
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
		octx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client.httpClient = oauth2.NewClient(octx, source)
		client.httpClient.Timeout = cfg.RequestTimeout
	case AuthAPIKey:
		if cfg.APIKey == "" {
			return nil, errors.New(errors.ErrorTypeConfig,
				"apikey auth mode requires an api key")
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"unknown auth mode: %s", cfg.AuthMode)
	}

	return client, nil
}

// Call issues one GET and decodes the JSON response. Numbers decode as
// json.Number so cursor values survive round-trips without float mangling.
func (c *Client) Call(ctx context.Context, endpoint string, params map[string]string) (interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "rate limiter wait interrupted")
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	if c.authMode == AuthAPIKey {
		query.Set("hapikey", c.apiKey)
	}

	requestURL := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	if encoded := query.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("endpoint", endpoint)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, endpoint); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body").
			WithDetail("endpoint", endpoint)
	}
	if len(body) == 0 {
		logger.Debug("empty response body", zap.String("endpoint", endpoint))
		return nil, nil
	}

	decoder := jsonpool.GetDecoder(bytes.NewReader(body))
	var decoded interface{}
	if err := decoder.Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "response body is not valid JSON").
			WithDetail("endpoint", endpoint)
	}
	return decoded, nil
}

// classifyStatus folds HTTP status codes into the error taxonomy. Rate limit
// and server-side failures come back retryable, credential failures do not.
func classifyStatus(status int, endpoint string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return errors.New(errors.ErrorTypeRateLimit, "request was throttled upstream").
			WithDetail("endpoint", endpoint)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Newf(errors.ErrorTypeAuthentication,
			"credentials rejected with status %d", status).
			WithDetail("endpoint", endpoint)
	case status >= 500:
		return errors.Newf(errors.ErrorTypeConnection,
			"upstream returned status %d", status).
			WithDetail("endpoint", endpoint)
	default:
		return errors.Newf(errors.ErrorTypeData,
			"unexpected status %d", status).
			WithDetail("endpoint", endpoint)
	}
}
