package passdoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/balduz84/passdoo/internal/metrics"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production Passdoo portal.
	DefaultBaseURL = "https://portal.novacs.net"

	// APIPrefix is prepended to every endpoint.
	APIPrefix = "/passdoo/api/extension"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultClientType identifies this client to the backend.
	DefaultClientType = "browser-extension"

	maxResponseBytes = 10 << 20
)

// Client is the Passdoo backend API client. It never retries.
type Client struct {
	baseURL       string
	clientType    string
	clientVersion string
	httpClient    *http.Client
	logger        arbor.ILogger
	limiter       *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout on the default client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit spaces calls at least interval apart. Zero disables throttling.
func WithRateLimit(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 5)
	}
}

// WithClientVersion sets the X-Client-Version header.
func WithClientVersion(version string) ClientOption {
	return func(c *Client) {
		c.clientVersion = version
	}
}

// WithClientType sets the X-Client-Type header.
func WithClientType(clientType string) ClientOption {
	return func(c *Client) {
		if clientType != "" {
			c.clientType = clientType
		}
	}
}

// NewClient creates a new Passdoo API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientType: DefaultClientType,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: arbor.NewLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the backend origin without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call performs one request against endpoint (relative to APIPrefix) and
// decodes the JSON response into out when out is non-nil.
// body is sent only for mutating methods. Every failure is an *Error.
func (c *Client) Call(ctx context.Context, method, endpoint string, body interface{}, cred *models.AuthCredential, out interface{}) error {
	return c.call(ctx, endpoint, method, endpoint, body, cred, out)
}

// call is Call with a fixed metrics label so ids don't explode cardinality.
func (c *Client) call(ctx context.Context, label, method, endpoint string, body interface{}, cred *models.AuthCredential, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		metrics.RecordAPICall(label, outcome, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetworkUnreachable, Message: "request cancelled", Endpoint: endpoint, Err: err}
		}
	}

	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return &Error{Kind: KindRequestFailed, Message: "failed to create request", Endpoint: endpoint, Err: err}
	}
	if cred != nil {
		cred.Apply(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("endpoint", endpoint).Err(err).Msg("Passdoo API unreachable")
		return &Error{Kind: KindNetworkUnreachable, Message: "server unreachable", Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindNetworkUnreachable, Message: "failed to read response", Status: resp.StatusCode, Endpoint: endpoint, Err: err}
	}

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Passdoo API request")

	if err := classify(resp, data, endpoint); err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindRequestFailed, Message: "invalid response from server", Status: resp.StatusCode, Endpoint: endpoint, Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil && isMutating(method) {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+endpoint, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Type", c.clientType)
	if c.clientVersion != "" {
		req.Header.Set("X-Client-Version", c.clientVersion)
	}
	return req, nil
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// classify maps a response to the error taxonomy. Status is checked first,
// then a successful response must declare a JSON content type: a login-wall
// redirect ends as a 200 HTML page.
func classify(resp *http.Response, data []byte, endpoint string) error {
	status := resp.StatusCode

	switch {
	case status == http.StatusUpgradeRequired:
		e := &Error{Kind: KindVersionOutdated, Message: "client update required", Status: status, Endpoint: endpoint}
		if json.Valid(data) {
			e.Data = json.RawMessage(bytes.TrimSpace(data))
			if msg := bodyField(data, "message"); msg != "" {
				e.Message = msg
			}
		}
		return e

	case status == http.StatusUnauthorized:
		return &Error{Kind: KindUnauthorized, Message: "invalid or expired credential", Status: status, Endpoint: endpoint}

	case status == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Message: "access denied", Status: status, Endpoint: endpoint}

	case status >= 500:
		return &Error{Kind: KindServerUnavailable, Message: fmt.Sprintf("server unavailable (HTTP %d)", status), Status: status, Endpoint: endpoint}

	case status < 200 || status >= 300:
		msg := bodyField(data, "error")
		if msg == "" {
			msg = fmt.Sprintf("HTTP error %d", status)
		}
		return &Error{Kind: KindRequestFailed, Message: msg, Status: status, Endpoint: endpoint}
	}

	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		return &Error{Kind: KindSessionInvalid, Message: "session expired: unexpected non-JSON response", Status: status, Endpoint: endpoint}
	}
	return nil
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// bodyField extracts a top-level string field from a JSON body
func bodyField(data []byte, field string) string {
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if s, ok := body[field].(string); ok {
		return s
	}
	return ""
}
