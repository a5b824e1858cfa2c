// Package transport implements the request pipeline adapter: an
// http.RoundTripper decorator that injects the current access token,
// intercepts 401 responses with a single refresh-and-retry, and retries
// transport and 5xx failures with exponential backoff.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/logging"
	"github.com/fieldlink/fieldlink-go/internal/timex"
)

// TokenSource yields the current access token, if a valid one is held.
type TokenSource interface {
	GetAccessToken() (string, bool)
}

// Refresher runs (or joins) a token refresh.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config bounds the retry behavior. Zero fields take defaults.
type Config struct {
	// MaxRetries is the number of retries after the first attempt; a
	// request is sent at most MaxRetries+1 times. Default 3.
	MaxRetries int

	// BackoffBase is the delay before the first retry; each further retry
	// doubles it. Default 1s.
	BackoffBase time.Duration
}

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
)

// Pipeline decorates an http.RoundTripper with the session-aware request
// policy. OnUnauthorized, when set, is called exactly once per request that
// ends in an irrecoverable 401, so the composition root can force the
// session to Unauthenticated.
type Pipeline struct {
	next           http.RoundTripper
	tokens         TokenSource
	refresher      Refresher
	onUnauthorized func()
	cfg            Config
	clock          timex.Clock
	log            logging.Logger
}

func NewPipeline(next http.RoundTripper, tokens TokenSource, refresher Refresher, onUnauthorized func(), cfg Config, clock timex.Clock, log logging.Logger) *Pipeline {
	if next == nil {
		next = http.DefaultTransport
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	return &Pipeline{
		next:           next,
		tokens:         tokens,
		refresher:      refresher,
		onUnauthorized: onUnauthorized,
		cfg:            cfg,
		clock:          clock,
		log:            log.With("component", "pipeline"),
	}
}

// RoundTrip sends the request with the pipeline policy applied. Retries
// re-send the original request unchanged; a request whose body cannot be
// replayed is not retried after a body read has started.
func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := ensureReplayable(req); err != nil {
		return nil, err
	}

	ctx := req.Context()
	maxAttempts := p.cfg.MaxRetries + 1
	refreshed := false

	var lastResp *http.Response
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		clone, err := cloneRequest(req)
		if err != nil {
			return nil, err
		}
		if token, ok := p.tokens.GetAccessToken(); ok {
			clone.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
		}

		resp, err := p.next.RoundTrip(clone)

		switch {
		case err != nil:
			// Transport-level failure: retriable.
			if ctx.Err() != nil {
				return nil, classifyTransportError(err)
			}
			lastResp, lastErr = nil, err
			p.log.Warn(ctx, "request transport error",
				"method", req.Method, "url", req.URL.String(), "attempt", attempt, "error", err)

		case resp.StatusCode == http.StatusUnauthorized:
			drain(resp)
			if refreshed || attempt == maxAttempts {
				// Already used the one refresh-and-retry for this request.
				p.unauthorized()
				return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, common.ErrUnauthorized)
			}
			refreshed = true
			if rerr := p.refresher.Refresh(ctx); rerr != nil {
				p.unauthorized()
				return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, common.ErrUnauthorized, rerr)
			}
			// Retry immediately with the new token; no backoff.
			continue

		case resp.StatusCode >= 500:
			// Server failure: retriable.
			drain(resp)
			lastResp, lastErr = resp, nil
			p.log.Warn(ctx, "server error response",
				"method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "attempt", attempt)

		default:
			// Success or a non-retriable 4xx: hand back as-is.
			return resp, nil
		}

		if attempt == maxAttempts {
			break
		}
		delay := p.cfg.BackoffBase << (attempt - 1)
		if err := p.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, classifyTransportError(lastErr)
	}
	return lastResp, nil
}

func (p *Pipeline) unauthorized() {
	if p.onUnauthorized != nil {
		p.onUnauthorized()
	}
}

// ensureReplayable makes the request body re-sendable across retries by
// buffering it once when the transport did not supply GetBody.
func ensureReplayable(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// classifyTransportError maps transport failures onto the client error
// taxonomy while keeping the original error in the chain.
func classifyTransportError(err error) error {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", common.ErrNetworkUnavailable, err)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}
