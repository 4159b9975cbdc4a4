// Package httpx provides the retrying JSON fetcher shared by the backend
// and GitHub clients.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"pmbot/pkg/logx"
)

// ErrorKind classifies a fetch failure.
type ErrorKind int

const (
	// KindTransient covers timeouts, 429 and 5xx: retried up to the
	// attempt cap, then surfaced to the caller.
	KindTransient ErrorKind = iota

	// KindPermanent covers other 4xx and malformed responses: never
	// retried.
	KindPermanent
)

type Error struct {
	Kind   ErrorKind
	Status int // 0 for network-level failures
	Err    error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindPermanent
}

type Config struct {
	Timeout     time.Duration // per attempt, default 10s
	MaxAttempts int           // default 3
	Backoff     time.Duration // base, doubled per retry, default 1s
	Headers     map[string]string
}

// Fetcher issues JSON requests with bounded retry on transient failures.
type Fetcher struct {
	cfg    Config
	client *http.Client
	log    logx.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, log logx.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		sleep:  sleepCtx,
	}
}

// GetJSON fetches url and decodes the body into out.
func (f *Fetcher) GetJSON(ctx context.Context, url string, out any) error {
	return f.do(ctx, http.MethodGet, url, nil, out)
}

// PostJSON posts body (JSON-marshaled) to url and decodes the response into
// out. out may be nil when the response body is irrelevant.
func (f *Fetcher) PostJSON(ctx context.Context, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindPermanent, Err: err}
		}
		payload = b
	}
	return f.do(ctx, http.MethodPost, url, payload, out)
}

func (f *Fetcher) do(ctx context.Context, method, url string, body []byte, out any) error {
	var lastErr error
	backoff := f.cfg.Backoff

	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			// jittered exponential backoff
			wait := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
			if err := f.sleep(ctx, wait); err != nil {
				return &Error{Kind: KindTransient, Err: err}
			}
			backoff *= 2
		}

		err := f.once(ctx, method, url, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if KindOf(err) != KindTransient {
			return err
		}
		f.log.Debug("fetch retry",
			logx.String("url", url),
			logx.Int("attempt", attempt),
			logx.Err(err))
	}
	return lastErr
}

func (f *Fetcher) once(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &Error{Kind: KindPermanent, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient.
		return &Error{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Err: fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &Error{Kind: KindPermanent, Status: resp.StatusCode, Err: fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindPermanent, Status: resp.StatusCode, Err: fmt.Errorf("decode %s: %w", url, err)}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
