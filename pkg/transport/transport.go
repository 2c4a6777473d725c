// Package transport builds the resty clients shared by the auth, database and
// storage services.
//
// Every service speaks JSON over HTTP with the same two credentials headers,
// so the per-service clients only differ in base URL and the occasional
// Prefer header.
package transport

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/supa-community/supa.go/pkg/apierror"
)

const defaultTimeout = 30 * time.Second

// Options tunes the underlying HTTP behavior. The zero value is usable.
type Options struct {
	// HTTPClient, when set, is reused by the resty client. The root client
	// shares one http.Client between all services so that connections are
	// pooled across them.
	HTTPClient *http.Client
	Timeout    time.Duration
	// Headers are extra default headers applied to every request.
	Headers map[string]string
	// RetryCount enables resty's retry loop for transient failures.
	RetryCount int
}

// NewClient returns a resty client bound to a service endpoint, carrying the
// apikey and bearer credentials on every request.
func NewClient(baseURL, apiKey string, opts Options) *resty.Client {
	var c *resty.Client
	if opts.HTTPClient != nil {
		c = resty.NewWithClient(opts.HTTPClient)
	} else {
		c = resty.New()
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	c.SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("apikey", apiKey).
		SetAuthToken(apiKey)

	for k, v := range opts.Headers {
		c.SetHeader(k, v)
	}

	if opts.RetryCount > 0 {
		c.SetRetryCount(opts.RetryCount).
			SetRetryWaitTime(100 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= http.StatusInternalServerError ||
					r.StatusCode() == http.StatusTooManyRequests
			})
	}

	return c
}

// AsError converts a non-2xx response into an *apierror.Error, and returns
// nil for successful responses.
func AsError(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	return apierror.Parse(resp.StatusCode(), resp.Body())
}
