// Package supabase forwards validated statements to the Supabase Management
// API database query endpoint.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/core/port"
)

const DefaultAPIURL = "https://api.supabase.com"

var (
	ErrMissingAccessToken = errors.New("missing access token")
	ErrMissingProjectRef  = errors.New("missing project reference")
	ErrUpstreamTimeout    = errors.New("supabase request timed out")
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 16 << 20

// UpstreamError is a non-2xx answer from the Management API.
type UpstreamError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%d %s\n%s", e.Status, e.StatusText, e.Body)
}

// Executor posts {"query": sql} to /v1/projects/{ref}/database/query using the
// credentials found on the request context, falling back to the defaults it
// was built with.
type Executor struct {
	baseURL  string
	client   *http.Client
	defaults port.Credentials
}

type Option func(*Executor)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithDefaultCredentials sets the credentials used when the request carries
// none, as with the stdio transport.
func WithDefaultCredentials(c port.Credentials) Option {
	return func(e *Executor) { e.defaults = c }
}

func NewExecutor(baseURL string, timeout time.Duration, opts ...Option) *Executor {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	e := &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          20,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	creds := e.credentials(ctx)
	if creds.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if creds.ProjectRef == "" {
		return nil, ErrMissingProjectRef
	}

	body, err := json.Marshal(map[string]string{"query": sql})
	if err != nil {
		return nil, fmt.Errorf("encoding query request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/database/query", e.baseURL, url.PathEscape(creds.ProjectRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("calling supabase: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading supabase response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       prettyBody(raw),
		}
	}

	rows := []map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding supabase response: %w", err)
	}
	return rows, nil
}

func (e *Executor) credentials(ctx context.Context) port.Credentials {
	creds, _ := port.CredentialsFromContext(ctx)
	if creds.AccessToken == "" {
		creds.AccessToken = e.defaults.AccessToken
	}
	if creds.ProjectRef == "" {
		creds.ProjectRef = e.defaults.ProjectRef
	}
	return creds
}

// prettyBody indents JSON error bodies; anything else is returned trimmed.
func prettyBody(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err == nil {
		return buf.String()
	}
	return strings.TrimSpace(string(raw))
}
