package lookup

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

// Fetcher retrieves the document behind a locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// DefaultFetchTimeout bounds a single attempt.
const DefaultFetchTimeout = 30 * time.Second

// maxBody caps documents read from remote sites.
const maxBody = 8 << 20

// HTTPFetcher fetches documents over HTTP and retries a failed attempt once.
type HTTPFetcher struct {
	Client    *http.Client
	Timeout   time.Duration
	Backoff   time.Duration
	UserAgent string
}

// NewHTTPFetcher returns a fetcher with the given per-attempt timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		Client:    &http.Client{},
		Timeout:   timeout,
		Backoff:   500 * time.Millisecond,
		UserAgent: "interactiondb",
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	var body []byte
	b := retry.WithMaxRetries(1, retry.NewConstant(f.backoff()))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		data, err := f.once(ctx, locator)
		if err != nil {
			return retry.RetryableError(err)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", locator)
	}
	return body, nil
}

func (f *HTTPFetcher) backoff() time.Duration {
	if f.Backoff <= 0 {
		return time.Millisecond
	}
	return f.Backoff
}

func (f *HTTPFetcher) once(ctx context.Context, locator string) ([]byte, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}
