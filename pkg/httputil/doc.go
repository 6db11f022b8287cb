// Package httputil provides the HTTP plumbing behind release discovery and
// source downloads.
//
// [Client] issues GET requests with pyshim's User-Agent, classifies
// failures into NOT_FOUND and NETWORK errors, and retries transient ones
// (connection errors and 5xx responses) through [Retry].
//
//	c := httputil.NewClient(nil)
//	body, err := c.GetBytes(ctx, "https://www.python.org/ftp/python/")
//	n, err := c.Download(ctx, url, dest, nil)
//
// Downloads are written to a ".part" sibling and renamed into place, so an
// interrupted transfer never leaves a truncated archive at dest.
package httputil
