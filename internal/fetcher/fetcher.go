// Package fetcher issues one HTTP GET at a time with a mandatory pause between requests.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Getter is the narrow interface the crawler, pipeline and API client depend on.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// TransientError is a connection failure, timeout, 429 or 5xx. The core never
// retries these; a later run picks up where the stores left off.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("GET %s: transient: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// StatusError is a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

// Options configures a Fetcher.
type Options struct {
	Delay     time.Duration
	Timeout   time.Duration
	UserAgent string
}

// Fetcher is a sequential, self-throttling HTTP client. It is not safe for
// concurrent use; the tool never issues concurrent requests.
type Fetcher struct {
	client  *fasthttp.Client
	opts    Options
	logger  zerolog.Logger
	last    time.Time
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	fetches int
}

// New returns a Fetcher backed by a single-connection fasthttp client.
func New(opts Options, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &fasthttp.Client{
			Name:                opts.UserAgent,
			MaxConnsPerHost:     1,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: time.Minute,
			MaxResponseBodySize: 32 << 20,
		},
		opts:   opts,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Fetches returns how many requests have been issued.
func (f *Fetcher) Fetches() int { return f.fetches }

// Get waits out the remaining delay since the previous request, then fetches url.
// The delay is measured from the end of the previous request, successful or not.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	defer func() { f.last = f.now() }()
	f.fetches++

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept-Encoding", "gzip")

	f.logger.Debug().Str("url", url).Msg("request")

	var err error
	if deadline, ok := ctx.Deadline(); ok && (f.opts.Timeout <= 0 || time.Until(deadline) < f.opts.Timeout) {
		err = f.client.DoDeadline(req, resp, deadline)
	} else {
		err = f.client.DoTimeout(req, resp, f.timeout())
	}
	if err != nil {
		return nil, &TransientError{URL: url, Err: err}
	}

	code := resp.StatusCode()
	if code != fasthttp.StatusOK {
		statusErr := &StatusError{URL: url, Code: code}
		if code == fasthttp.StatusTooManyRequests || code >= 500 {
			return nil, &TransientError{URL: url, Err: statusErr}
		}
		return nil, statusErr
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return nil, fmt.Errorf("GET %s: decode body: %w", url, err)
	}
	// resp is released on return; hand back a private copy.
	return append([]byte(nil), body...), nil
}

func (f *Fetcher) timeout() time.Duration {
	if f.opts.Timeout > 0 {
		return f.opts.Timeout
	}
	return 30 * time.Second
}

func (f *Fetcher) wait(ctx context.Context) error {
	if f.last.IsZero() || f.opts.Delay <= 0 {
		return ctx.Err()
	}
	remaining := f.opts.Delay - f.now().Sub(f.last)
	if remaining <= 0 {
		return ctx.Err()
	}
	f.logger.Trace().Dur("wait", remaining).Msg("throttle")
	return f.sleep(ctx, remaining)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
