// Package iplist fetches the authoritative list of allowed CIDR blocks.
//
// A source is an http(s) URL or an s3://bucket/key object. The body is decoded
// according to a Format and normalized into a List. Transient failures are
// retried; anything still failing is returned as a *FetchError so the caller
// can skip the cycle and leave the live firewall state untouched.
package iplist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/util/retry"
)

// maxBodySize bounds the size of a list response. Larger bodies are rejected.
const maxBodySize = 32 << 20

// FetchError is returned when the list could not be retrieved or decoded.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch ip list from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ObjectGetter reads an object from S3-compatible storage.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Fetcher retrieves desired lists.
type Fetcher struct {
	httpClient *http.Client
	objects    ObjectGetter
	service    string
	userAgent  string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	maxBody    int64
	log        zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client used for http(s) sources.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = hc }
}

// WithObjectGetter enables s3:// sources.
func WithObjectGetter(g ObjectGetter) Option {
	return func(f *Fetcher) { f.objects = g }
}

// WithService sets the service tag kept from structured sources.
func WithService(service string) Option {
	return func(f *Fetcher) { f.service = service }
}

// WithTimeout bounds each fetch attempt.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithRetries sets how many times a transient failure is retried, and the
// initial backoff delay.
func WithRetries(n int, initialDelay time.Duration) Option {
	return func(f *Fetcher) {
		f.retries = n
		f.retryDelay = initialDelay
	}
}

// WithUserAgent sets the User-Agent header of HTTP requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = l }
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		service:    DefaultService,
		userAgent:  "sgsync",
		timeout:    30 * time.Second,
		retries:    2,
		retryDelay: time.Second,
		maxBody:    maxBodySize,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and decodes the list at source.
func (f *Fetcher) Fetch(ctx context.Context, source string, format Format) (List, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	var body []byte
	err = retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		b, err := f.read(attemptCtx, u)
		if err != nil {
			return err
		}
		body = b
		return nil
	},
		retry.WithRetries(f.retries),
		retry.WithInitialDelay(f.retryDelay),
		retry.WithOnRetry(func(attempt int, err error) {
			f.log.Warn().Err(err).Int("attempt", attempt).Str("source", source).Msg("List fetch failed, retrying")
		}),
	)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	res, err := parse(format, body, f.service)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	if res.skipped > 0 {
		f.log.Warn().Int("skipped", res.skipped).Msg("Skipped list entries that are not IPv4 ranges")
	}

	list := NewList(res.entries)
	f.log.Info().Int("items", len(list)).Str("format", string(format)).Msg("Fetched the current IP list")
	f.log.Debug().Strs("cidrs", list).Msg("Current IP list")
	return list, nil
}

func (f *Fetcher) read(ctx context.Context, u *url.URL) ([]byte, error) {
	switch u.Scheme {
	case "http", "https":
		return f.readHTTP(ctx, u.String())
	case "s3":
		if f.objects == nil {
			return nil, retry.Permanent(errors.New("s3 sources are not configured"))
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, retry.Permanent(fmt.Errorf("invalid s3 source %q: expected s3://bucket/key", u.String()))
		}
		body, err := f.objects.GetObject(ctx, u.Host, key)
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > f.maxBody {
			return nil, retry.Permanent(fmt.Errorf("list object exceeds %d bytes", f.maxBody))
		}
		return body, nil
	default:
		return nil, retry.Permanent(fmt.Errorf("unsupported source scheme %q", u.Scheme))
	}
}

func (f *Fetcher) readHTTP(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch list: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := fmt.Errorf("list source returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, retry.Permanent(fmt.Errorf("list response exceeds %d bytes", f.maxBody))
	}
	return body, nil
}
