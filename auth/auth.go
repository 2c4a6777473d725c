// Package auth is the client for the platform's user authentication service.
//
// All methods are stateless: session tokens are returned to the caller rather
// than stored on the client, so a single client can serve many users. Pass the
// access token of the acting user to the methods that need one.
package auth

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/supa-community/supa.go/pkg/logger"
	"github.com/supa-community/supa.go/pkg/transport"
)

type Client struct {
	rest   *resty.Client
	logger logger.Logger
}

// NewClient builds an auth client for the service at baseURL, normally
// "<project-url>/auth/v1".
func NewClient(baseURL, apiKey string, opts transport.Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop{}
	}
	return &Client{
		rest:   transport.NewClient(baseURL, apiKey, opts),
		logger: log,
	}
}

// SignUp registers a new user. Depending on the project's confirmation
// settings the returned session may lack tokens until the email is confirmed.
func (c *Client) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	var session Session
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(creds).
		SetResult(&session).
		Post("/signup")
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	c.logger.Debug("user signed up", "email", creds.Email)
	return &session, nil
}

// SignInWithPassword exchanges email/phone and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error) {
	return c.token(ctx, "password", creds)
}

// RefreshSession exchanges a refresh token for a fresh session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) token(ctx context.Context, grantType string, body any) (*Session, error) {
	var session Session
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("grant_type", grantType).
		SetBody(body).
		SetResult(&session).
		Post("/token")
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignInWithOTP sends a magic link to the given email address.
func (c *Client) SignInWithOTP(ctx context.Context, email string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email}).
		Post("/otp")
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}

// ResetPasswordForEmail sends a password recovery email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email}).
		Post("/recover")
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}

// User fetches the user the access token belongs to.
func (c *Client) User(ctx context.Context, accessToken string) (*User, error) {
	var user User
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get("/user")
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser updates email, phone, password or metadata of the token's user.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*User, error) {
	var user User
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(attrs).
		SetResult(&user).
		Put("/user")
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignOut revokes all refresh tokens belonging to the token's user. The
// access token itself stays valid until it expires.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Post("/logout")
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}
