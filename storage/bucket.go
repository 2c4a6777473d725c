package storage

import (
	"context"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/supa-community/supa.go/pkg/transport"
)

// Object is a file stored in a bucket.
type Object struct {
	Name           string         `json:"name"`
	BucketID       string         `json:"bucket_id"`
	Owner          string         `json:"owner"`
	ID             string         `json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Metadata       map[string]any `json:"metadata"`
}

// SortBy orders object listings.
type SortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// SearchOptions tunes List. Zero fields fall back to the service defaults:
// limit 100, offset 0, sorted by name ascending.
type SearchOptions struct {
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	SortBy SortBy `json:"sortBy"`
}

// UploadOptions tunes Upload. ContentType defaults to text/plain and
// CacheControl to 3600 seconds.
type UploadOptions struct {
	// CacheControl is the max-age in seconds the CDN may cache the object.
	CacheControl int
	ContentType  string
	// Upsert overwrites the object when it already exists.
	Upsert bool
}

const (
	defaultListLimit    = 100
	defaultCacheControl = 3600
	defaultContentType  = "text/plain;charset=UTF-8"
)

// Empty removes every object in the bucket.
func (b *Bucket) Empty(ctx context.Context) error {
	return b.client.emptyBucket(ctx, b.ID)
}

// Delete deletes the bucket. It must be emptied first.
func (b *Bucket) Delete(ctx context.Context) error {
	return b.client.deleteBucket(ctx, b.ID)
}

// PublicURL constructs the public URL of an object in the bucket. It does not
// check that the object exists, and the URL only resolves for public buckets.
func (b *Bucket) PublicURL(objectPath string) string {
	return b.client.baseURL + "/object/public/" + b.Name + "/" + objectPath
}

// CreateSignedURL asks the service for a pre-signed URL to the object that
// stays valid for expiresIn.
func (b *Bucket) CreateSignedURL(ctx context.Context, objectPath string, expiresIn time.Duration) (string, error) {
	var result struct {
		SignedURL string `json:"signedURL"`
	}
	resp, err := b.client.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"expiresIn": strconv.Itoa(int(expiresIn.Seconds()))}).
		SetResult(&result).
		Post("/object/sign/" + b.Name + "/" + objectPath)
	if err != nil {
		return "", err
	}
	if err := transport.AsError(resp); err != nil {
		return "", err
	}
	return result.SignedURL, nil
}

// Move relocates an object within the bucket. Moving to a different name in
// the same folder renames the object.
func (b *Bucket) Move(ctx context.Context, fromPath, toPath string) error {
	return b.relocate(ctx, "/object/move", fromPath, toPath)
}

// Copy duplicates an object within the bucket.
func (b *Bucket) Copy(ctx context.Context, fromPath, toPath string) error {
	return b.relocate(ctx, "/object/copy", fromPath, toPath)
}

func (b *Bucket) relocate(ctx context.Context, endpoint, fromPath, toPath string) error {
	resp, err := b.client.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"bucketId":       b.ID,
			"sourceKey":      fromPath,
			"destinationKey": toPath,
		}).
		Post(endpoint)
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}

// Remove deletes a single object from the bucket.
func (b *Bucket) Remove(ctx context.Context, objectPath string) error {
	resp, err := b.client.rest.R().
		SetContext(ctx).
		Delete("/object/" + b.Name + "/" + objectPath)
	if err != nil {
		return err
	}
	return transport.AsError(resp)
}

// BulkRemove deletes several objects at once, returning the objects that were
// removed.
func (b *Bucket) BulkRemove(ctx context.Context, paths []string) ([]Object, error) {
	var removed []Object
	resp, err := b.client.rest.R().
		SetContext(ctx).
		SetBody(map[string][]string{"prefixes": paths}).
		SetResult(&removed).
		Delete("/object/" + b.Name)
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	return removed, nil
}

// List returns the objects under prefix.
func (b *Bucket) List(ctx context.Context, prefix string, opts SearchOptions) ([]Object, error) {
	if opts.Limit == 0 {
		opts.Limit = defaultListLimit
	}
	if opts.SortBy.Column == "" {
		opts.SortBy = SortBy{Column: "name", Order: "asc"}
	}

	body := map[string]any{
		"prefix": prefix,
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"sortBy": opts.SortBy,
	}

	var objects []Object
	resp, err := b.client.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&objects).
		Post("/object/list/" + b.Name)
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	return objects, nil
}

// Download fetches the contents of an object via the authenticated endpoint.
func (b *Bucket) Download(ctx context.Context, objectPath string) ([]byte, error) {
	resp, err := b.client.rest.R().
		SetContext(ctx).
		Get("/object/authenticated/" + b.Name + "/" + objectPath)
	if err != nil {
		return nil, err
	}
	if err := transport.AsError(resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Upload stores the contents of r at objectPath as a multipart upload.
func (b *Bucket) Upload(ctx context.Context, objectPath string, r io.Reader, opts UploadOptions) error {
	if opts.CacheControl == 0 {
		opts.CacheControl = defaultCacheControl
	}
	if opts.ContentType == "" {
		opts.ContentType = defaultContentType
	}

	resp, err := b.client.rest.R().
		SetContext(ctx).
		SetHeader("cacheControl", strconv.Itoa(opts.CacheControl)).
		SetHeader("contentType", opts.ContentType).
		SetHeader("upsert", strconv.FormatBool(opts.Upsert)).
		SetFileReader("file", path.Base(objectPath), r).
		Post("/object/" + b.Name + "/" + objectPath)
	if err != nil {
		return err
	}
	if err := transport.AsError(resp); err != nil {
		return err
	}

	b.client.logger.Debug("object uploaded", "bucket", b.ID, "path", objectPath)
	return nil
}
