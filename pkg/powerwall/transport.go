package powerwall

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the default per-request timeout
const DefaultTimeout = 10 * time.Second

// Request is a single exchange with the gateway
type Request struct {
	Method  string
	Path    string         // absolute path, e.g. "/api/status"
	Body    any            // JSON encoded when non-nil
	Cookies []*http.Cookie // session cookies to attach
}

// Response is the undecoded answer to a Request
type Response struct {
	StatusCode int
	Body       []byte
	Cookies    []*http.Cookie // cookies set by the gateway
}

// Transport performs requests against a gateway. Transport failures
// (connection refused, timeout, DNS) are returned as errors; any HTTP status,
// including error statuses, is returned as a Response.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport sends requests over HTTPS using a net/http client.
// It keeps no cookies of its own; session cookies travel in Request and Response.
type HTTPTransport struct {
	// BaseURL is the gateway root, e.g. "https://192.168.91.1"
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewHTTPTransport creates a transport for endpoint. endpoint may be a bare
// host ("192.168.91.1"), host:port, or a full URL; bare hosts use https.
// When verifyTLS is false the gateway's self-signed certificate is accepted.
func NewHTTPTransport(endpoint string, timeout time.Duration, verifyTLS bool) (*HTTPTransport, error) {
	base, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: !verifyTLS} //nolint:gosec // gateways ship self-signed certificates

	return &HTTPTransport{
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: timeout, Transport: tr},
	}, nil
}

// NewHTTPTransportWithClient wraps an existing client, e.g. to share a connection pool
func NewHTTPTransportWithClient(endpoint string, client *http.Client) (*HTTPTransport, error) {
	base, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{BaseURL: base, HTTPClient: client}, nil
}

// SetTimeout sets the HTTP request timeout
func (t *HTTPTransport) SetTimeout(timeout time.Duration) {
	t.HTTPClient.Timeout = timeout
}

// Host returns the host part of the base URL
func (t *HTTPTransport) Host() string {
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return t.BaseURL
	}
	return u.Hostname()
}

// Send implements Transport
func (t *HTTPTransport) Send(ctx context.Context, r *Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body for %s: %w", r.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, t.BaseURL+r.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", r.Path, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range r.Cookies {
		req.AddCookie(c)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Cookies:    resp.Cookies(),
	}, nil
}

func normalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("endpoint must not be empty")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	// Accept "https://gw/api" as well as "https://gw"
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}
