// Package token fetches conversation tokens for an agent from the
// conversation API.
//
// The API endpoint and the transport server URL must point to the same
// deployment region, a token issued by one region is rejected by another.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultAPIEndpoint = "https://api.elevenlabs.io"
	tokenPath          = "/v1/convai/conversation/token"
	signedURLPath      = "/v1/convai/conversation/get-signed-url"
	apiKeyHeader       = "xi-api-key"
	// maxErrorBody caps how much of a failed response is kept on the error.
	maxErrorBody = 4 << 10
)

var (
	ErrEmptyAgentID      = errors.New("token: agent id is empty")
	ErrNetwork           = errors.New("token: request failed")
	ErrUnexpectedStatus  = errors.New("token: unexpected response status")
	ErrMalformedResponse = errors.New("token: malformed response")
)

// Error carries what is known about a failed token request. Kind is one of
// ErrNetwork, ErrUnexpectedStatus or ErrMalformedResponse.
type Error struct {
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

type Client struct {
	apiEndpoint string
	apiKey      string
	httpClient  *http.Client
	signedURL   bool
}

type Option func(*Client)

// WithAPIEndpoint overrides the API base URL, e.g. for data residency
// deployments.
func WithAPIEndpoint(endpoint string) Option {
	return func(c *Client) { c.apiEndpoint = strings.TrimRight(endpoint, "/") }
}

// WithAPIKey authenticates the request, required for private agents.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithSignedURL makes FetchToken return a signed websocket URL instead of a
// WebRTC room token. Signed URLs need an API key.
func WithSignedURL() Option {
	return func(c *Client) { c.signedURL = true }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(opts ...Option) *Client {
	c := &Client{apiEndpoint: DefaultAPIEndpoint}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
	}
	return c
}

type tokenResponse struct {
	Token     string `json:"token"`
	SignedURL string `json:"signed_url"`
}

// FetchToken requests a conversation token for agentID. It does not retry.
func (c *Client) FetchToken(ctx context.Context, agentID string) (string, error) {
	if agentID == "" {
		return "", ErrEmptyAgentID
	}

	ctx, span := tracer.Start(ctx, "fetch token")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	token, err := c.fetchToken(ctx, agentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "failed to fetch conversation token", "agent_id", agentID, "error", err)
		return "", err
	}
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context, agentID string) (string, error) {
	path := tokenPath
	if c.signedURL {
		path = signedURLPath
	}
	endpoint, err := url.Parse(c.apiEndpoint + path)
	if err != nil {
		return "", &Error{Kind: ErrNetwork, Err: fmt.Errorf("invalid api endpoint: %w", err)}
	}
	query := endpoint.Query()
	query.Set("agent_id", agentID)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", &Error{Kind: ErrNetwork, Err: fmt.Errorf("error creating HTTP request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: ErrNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("error reading body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: ErrUnexpectedStatus, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: ErrMalformedResponse, StatusCode: resp.StatusCode, Body: truncate(body), Err: err}
	}
	token, field := parsed.Token, "token"
	if c.signedURL {
		token, field = parsed.SignedURL, "signed_url"
	}
	if token == "" {
		return "", &Error{Kind: ErrMalformedResponse, StatusCode: resp.StatusCode, Body: truncate(body), Err: fmt.Errorf("missing %s field", field)}
	}

	return token, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}
