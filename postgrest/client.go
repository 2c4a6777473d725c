// Package postgrest is the client for the platform's database service, which
// exposes PostgreSQL tables and functions over HTTP.
//
// A Client is built once with the project's service key. Requests on behalf
// of a signed-in user go through WithToken, which returns an independent copy
// of the client authorized with the user's JWT; the original client keeps the
// service key. Row level security then applies to the user's requests without
// any shared mutable auth state.
package postgrest

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/supa-community/supa.go/pkg/logger"
	"github.com/supa-community/supa.go/pkg/transport"
)

type Client struct {
	rest    *resty.Client
	baseURL string
	apiKey  string
	opts    transport.Options
	logger  logger.Logger
}

// NewClient builds a database client for the service at baseURL, normally
// "<project-url>/rest/v1".
func NewClient(baseURL, apiKey string, opts transport.Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop{}
	}
	return &Client{
		rest:    transport.NewClient(baseURL, apiKey, opts),
		baseURL: baseURL,
		apiKey:  apiKey,
		opts:    opts,
		logger:  log,
	}
}

// WithToken returns a copy of the client whose requests carry the given
// access token instead of the service key. The receiver is not modified. The
// underlying HTTP connection pool is shared when the client was built with an
// explicit http.Client.
func (c *Client) WithToken(accessToken string) *Client {
	clone := *c
	clone.rest = transport.NewClient(c.baseURL, c.apiKey, c.opts).SetAuthToken(accessToken)
	return &clone
}

// From starts a query against a table or view.
func (c *Client) From(table string) *QueryBuilder {
	return newQueryBuilder(c, table)
}

// Rpc calls a database function. params is marshaled as the JSON argument
// object; the result is decoded into dest when dest is non-nil.
func (c *Client) Rpc(ctx context.Context, fn string, params, dest any) error {
	req := c.rest.R().SetContext(ctx)
	if params != nil {
		req.SetBody(params)
	}
	if dest != nil {
		req.SetResult(dest)
	}
	resp, err := req.Post("/rpc/" + fn)
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}
