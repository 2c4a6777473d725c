// Package storage is the client for the platform's object storage service.
//
// Objects live in buckets. The Client manages buckets; a Bucket value carries
// the object operations (upload, download, list, move, copy, remove, signing).
package storage

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/supa-community/supa.go/pkg/logger"
	"github.com/supa-community/supa.go/pkg/transport"
)

type Client struct {
	rest    *resty.Client
	baseURL string
	logger  logger.Logger
}

// NewClient builds a storage client for the service at baseURL, normally
// "<project-url>/storage/v1".
func NewClient(baseURL, apiKey string, opts transport.Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop{}
	}
	return &Client{
		rest:    transport.NewClient(baseURL, apiKey, opts),
		baseURL: baseURL,
		logger:  log,
	}
}

// Bucket is a namespace for stored objects.
type Bucket struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	client *Client
}

// CreateBucketOptions configures CreateBucket. Name defaults to the bucket id.
type CreateBucketOptions struct {
	Name   string
	Public bool
}

// ListBuckets retrieves all buckets of the project.
func (c *Client) ListBuckets(ctx context.Context) ([]*Bucket, error) {
	var buckets []*Bucket
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&buckets).
		Get("/bucket")
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	for _, b := range buckets {
		b.client = c
	}
	return buckets, nil
}

// GetBucket retrieves a single bucket by id.
func (c *Client) GetBucket(ctx context.Context, id string) (*Bucket, error) {
	var bucket Bucket
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&bucket).
		Get("/bucket/" + id)
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	bucket.client = c
	return &bucket, nil
}

// CreateBucket creates a new bucket. The service only acknowledges creation,
// so the returned Bucket is assembled locally with Owner left empty.
func (c *Client) CreateBucket(ctx context.Context, id string, opts CreateBucketOptions) (*Bucket, error) {
	name := opts.Name
	if name == "" {
		name = id
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{"id": id, "name": name, "public": opts.Public}).
		Post("/bucket")
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}

	c.logger.Info("bucket created", "id", id, "public", opts.Public)

	now := time.Now()
	return &Bucket{
		ID:        id,
		Name:      name,
		Public:    opts.Public,
		CreatedAt: now,
		UpdatedAt: now,
		client:    c,
	}, nil
}

// EmptyBucket removes every object in the bucket.
func (c *Client) EmptyBucket(ctx context.Context, id string) error {
	return c.emptyBucket(ctx, id)
}

// DeleteBucket deletes a bucket. The bucket must be emptied first.
func (c *Client) DeleteBucket(ctx context.Context, id string) error {
	return c.deleteBucket(ctx, id)
}

func (c *Client) emptyBucket(ctx context.Context, id string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{}).
		Post("/bucket/" + id + "/empty")
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}

func (c *Client) deleteBucket(ctx context.Context, id string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		Delete("/bucket/" + id)
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}
