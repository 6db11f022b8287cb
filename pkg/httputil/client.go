package httputil

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/pyshim/pkg/buildinfo"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/observability"
)

// DefaultTimeout bounds index requests. Downloads use no overall timeout
// since source archives are tens of megabytes.
const DefaultTimeout = 30 * time.Second

// ProgressFunc observes download progress. total is -1 when the server
// sent no Content-Length.
type ProgressFunc func(written, total int64)

// Client performs GET requests with retries.
type Client struct {
	http    *http.Client
	headers map[string]string

	// Attempts and Delay configure [Retry] for every request. When both are
	// zero the client falls back to [RetryWithBackoff].
	Attempts int
	Delay    time.Duration
}

// NewClient returns a client that sends headers with every request, on top
// of pyshim's User-Agent. headers may be nil.
func NewClient(headers map[string]string) *Client {
	return &Client{
		http:     &http.Client{},
		headers:  headers,
		Attempts: 3,
		Delay:    time.Second,
	}
}

// GetBytes fetches url and returns the whole body.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := c.retry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()

		resp, err := c.do(reqCtx, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &RetryableError{Err: pserrors.Wrap(pserrors.ErrCodeNetwork, err, "read %s", rawURL)}
		}
		return nil
	})
	return body, err
}

// Download streams url into dest and returns the number of bytes written.
// progress may be nil.
func (c *Client) Download(ctx context.Context, rawURL, dest string, progress ProgressFunc) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, pserrors.Wrap(pserrors.ErrCodeIO, err, "create %s", filepath.Dir(dest))
	}
	part := dest + ".part"

	var written int64
	err := c.retry(ctx, func() error {
		resp, err := c.do(ctx, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		f, err := os.Create(part)
		if err != nil {
			return pserrors.Wrap(pserrors.ErrCodeIO, err, "create %s", part)
		}
		var dst io.Writer = f
		if progress != nil {
			dst = &progressWriter{w: f, total: resp.ContentLength, fn: progress}
		}
		written, err = io.Copy(dst, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(part)
			return &RetryableError{Err: pserrors.Wrap(pserrors.ErrCodeNetwork, err, "download %s", rawURL)}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := os.Rename(part, dest); err != nil {
		return 0, pserrors.Wrap(pserrors.ErrCodeIO, err, "move download into place")
	}
	return written, nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	if c.Attempts == 0 && c.Delay == 0 {
		return RetryWithBackoff(ctx, fn)
	}
	return Retry(ctx, c.Attempts, c.Delay, fn)
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeNetwork, err, "build request for %s", rawURL)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	host, path := splitURL(rawURL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableError{Err: pserrors.Wrap(pserrors.ErrCodeNetwork, err, "GET %s", rawURL)}
	}
	hooks.OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func checkStatus(rawURL string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return pserrors.New(pserrors.ErrCodeNotFound, "%s not found", rawURL)
	case code >= 500 || code == http.StatusTooManyRequests:
		return &RetryableError{Err: pserrors.New(pserrors.ErrCodeNetwork, "GET %s: status %d", rawURL, code)}
	default:
		return pserrors.New(pserrors.ErrCodeNetwork, "GET %s: status %d", rawURL, code)
	}
}

func splitURL(rawURL string) (host, path string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", rawURL
	}
	return u.Host, u.Path
}

type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}
