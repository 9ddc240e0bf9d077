// Package fetch downloads source images through per-source rate tokens.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/config"
	"github.com/aliskhannn/image-crawler/internal/model"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultTokenAttempts = 5
	defaultTokenWait     = time.Second
)

// tokenSource hands out crawl tokens for a source.
type tokenSource interface {
	Acquire(ctx context.Context, source string) (bool, error)
}

// Client fetches image bytes once a rate token for the source is granted.
type Client struct {
	http          *resty.Client
	tokens        tokenSource
	tokenAttempts int
	tokenWait     time.Duration
}

// New creates a Client that takes tokens from tokens.
func New(cfg config.Fetch, tokens tokenSource) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TokenAttempts <= 0 {
		cfg.TokenAttempts = defaultTokenAttempts
	}
	if cfg.TokenWait <= 0 {
		cfg.TokenWait = defaultTokenWait
	}

	rc := resty.New().SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		http:          rc,
		tokens:        tokens,
		tokenAttempts: cfg.TokenAttempts,
		tokenWait:     cfg.TokenWait,
	}
}

// Get downloads url on behalf of source.
func (c *Client) Get(ctx context.Context, url, source string) model.FetchOutcome {
	if !c.waitForToken(ctx, source) {
		return model.RateLimited()
	}

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return model.TransportError(classify(err))
	}

	status := resp.StatusCode()
	if status >= http.StatusBadRequest {
		return model.HTTPError(status)
	}
	return model.Success(resp.Body(), status)
}

func (c *Client) waitForToken(ctx context.Context, source string) bool {
	for attempt := 0; attempt < c.tokenAttempts; attempt++ {
		ok, err := c.tokens.Acquire(ctx, source)
		if err != nil {
			zlog.Logger.Warn().Err(err).Str("source", source).Msg("failed to take rate token")
		}
		if ok {
			return true
		}

		if attempt == c.tokenAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.tokenWait):
		}
	}
	return false
}

// classify maps a transport error to the kind reported in the outcome.
func classify(err error) model.TransportKind {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return model.TransportDisconnected
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.TransportTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.TransportTimeout
	}

	return model.TransportConnection
}
