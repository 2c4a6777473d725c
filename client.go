package supa

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supa-community/supa.go/auth"
	"github.com/supa-community/supa.go/pkg/logger"
	"github.com/supa-community/supa.go/pkg/transport"
	"github.com/supa-community/supa.go/postgrest"
	"github.com/supa-community/supa.go/realtime"
	"github.com/supa-community/supa.go/storage"
)

// Client bundles the clients for the four platform services of one project.
type Client struct {
	// Auth talks to "<project-url>/auth/v1".
	Auth *auth.Client
	// DB talks to "<project-url>/rest/v1".
	DB *postgrest.Client
	// Realtime talks to "<project-url>/realtime/v1" over websocket. It is
	// configured but not dialed; call Realtime.Connect when you need it.
	Realtime *realtime.Client
	// Storage talks to "<project-url>/storage/v1".
	Storage *storage.Client

	baseURL string
	apiKey  string
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	httpClient        *http.Client
	timeout           time.Duration
	headers           map[string]string
	retryCount        int
	logger            logger.Logger
	reconnectInterval time.Duration
}

// WithHTTPClient shares an http.Client across the auth, database and storage
// services, pooling connections between them.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTimeout bounds every HTTP request made by the service clients.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHeader adds a default header to every HTTP request.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithRetryCount retries transient HTTP failures up to n times.
func WithRetryCount(n int) Option {
	return func(o *options) { o.retryCount = n }
}

// WithLogger routes SDK logs to l. The default discards them.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReconnect enables automatic realtime reconnection at the given interval.
func WithReconnect(interval time.Duration) Option {
	return func(o *options) { o.reconnectInterval = interval }
}

// New builds a client for the project at projectURL, authenticating with
// apiKey (the project's anon or service role key).
func New(projectURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("supa: API key is required")
	}

	base, err := normalizeProjectURL(projectURL)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Nop{}
	}

	topts := transport.Options{
		HTTPClient: o.httpClient,
		Timeout:    o.timeout,
		Headers:    o.headers,
		RetryCount: o.retryCount,
	}

	rtURL, err := realtimeURL(base)
	if err != nil {
		return nil, err
	}

	return &Client{
		Auth: auth.NewClient(base+"/auth/v1", apiKey, topts, o.logger),
		DB:   postgrest.NewClient(base+"/rest/v1", apiKey, topts, o.logger),
		Realtime: realtime.NewClient(realtime.Config{
			URL:               rtURL,
			APIKey:            apiKey,
			Timeout:           o.timeout,
			ReconnectInterval: o.reconnectInterval,
			Logger:            o.logger,
		}),
		Storage: storage.NewClient(base+"/storage/v1", apiKey, topts, o.logger),
		baseURL: base,
		apiKey:  apiKey,
	}, nil
}

// BaseURL returns the normalized project URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

func normalizeProjectURL(projectURL string) (string, error) {
	if projectURL == "" {
		return "", fmt.Errorf("supa: project URL is required")
	}

	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("supa: invalid project URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("supa: project URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("supa: project URL must have a host")
	}

	return strings.TrimSuffix(u.String(), "/"), nil
}

// realtimeURL derives the websocket endpoint from the project URL:
// http becomes ws, https becomes wss.
func realtimeURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String() + "/realtime/v1", nil
}
