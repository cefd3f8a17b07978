// Package source fetches book bytes from local files, HTTP(S) URLs and
// Google Cloud Storage objects.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	// DefaultMaxSize bounds a fetched book.
	DefaultMaxSize int64 = 512 * 1024 * 1024

	// DefaultHeaderTimeout bounds the wait for an HTTP response to start.
	// The body download is bounded only by the caller's context.
	DefaultHeaderTimeout = 30 * time.Second
)

var (
	// ErrTooLarge indicates the book exceeds the fetcher's size limit.
	ErrTooLarge = errors.New("source: book exceeds size limit")

	// ErrUnsupportedScheme indicates a URI scheme the fetcher cannot read.
	ErrUnsupportedScheme = errors.New("source: unsupported scheme")

	// ErrNotFound indicates the book does not exist at the given location.
	ErrNotFound = errors.New("source: not found")
)

// Fetcher reads book bytes by URI.
type Fetcher struct {
	http        *http.Client
	maxSize     int64
	credentials string
	logger      *slog.Logger

	gcsOnce sync.Once
	gcs     *storage.Client
	gcsErr  error
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client (60s timeout).
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.http = c } }

// WithMaxSize sets the size limit.
func WithMaxSize(n int64) Option { return func(f *Fetcher) { f.maxSize = n } }

// WithStorageClient uses c for gs:// URIs instead of a lazily created one.
func WithStorageClient(c *storage.Client) Option {
	return func(f *Fetcher) {
		f.gcsOnce.Do(func() {})
		f.gcs = c
	}
}

// WithCredentialsFile sets a service-account file for gs:// access.
func WithCredentialsFile(path string) Option { return func(f *Fetcher) { f.credentials = path } }

// WithLogger sets the fetcher logger.
func WithLogger(l *slog.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// NewFetcher returns a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		http:    newHTTPClient(),
		maxSize: DefaultMaxSize,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func newHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = DefaultHeaderTimeout
	return &http.Client{Transport: t}
}

// Fetch returns the bytes at uri: a bare path, file://, http(s):// or
// gs://bucket/object.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		// Bare paths, including Windows drive letters.
		return f.fetchFile(uri)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.fetchFile(u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, uri)
	case "gs":
		return f.fetchGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// Close releases the storage client if one was created.
func (f *Fetcher) Close() error {
	if f.gcs != nil {
		return f.gcs.Close()
	}
	return nil
}

func (f *Fetcher) fetchFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer file.Close()
	return f.readLimited(file, path)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: get %s: %w", uri, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("source: get %s: unexpected status %d", uri, resp.StatusCode)
	case resp.ContentLength > f.maxSize:
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, uri, resp.ContentLength)
	}
	f.logger.Debug("fetching book", "uri", uri, "content_length", resp.ContentLength)
	return f.readLimited(resp.Body, uri)
}

func (f *Fetcher) fetchGCS(ctx context.Context, bucket, object string) ([]byte, error) {
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("source: gs uri needs bucket and object, got %q/%q", bucket, object)
	}
	f.gcsOnce.Do(func() {
		var opts []option.ClientOption
		if f.credentials != "" {
			opts = append(opts, option.WithCredentialsFile(f.credentials))
		}
		f.gcs, f.gcsErr = storage.NewClient(ctx, opts...)
	})
	if f.gcsErr != nil {
		return nil, fmt.Errorf("source: create storage client: %w", f.gcsErr)
	}

	rc, err := f.gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, bucket, object)
	}
	if err != nil {
		return nil, fmt.Errorf("source: open gs://%s/%s: %w", bucket, object, err)
	}
	defer rc.Close()
	if rc.Attrs.Size > f.maxSize {
		return nil, fmt.Errorf("%w: gs://%s/%s is %d bytes", ErrTooLarge, bucket, object, rc.Attrs.Size)
	}
	return f.readLimited(rc, "gs://"+bucket+"/"+object)
}

func (f *Fetcher) readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", name, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, name)
	}
	return data, nil
}
