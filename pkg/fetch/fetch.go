// Package fetch discovers CPython releases and downloads their source
// archives into the download area the install pipeline reads from.
//
// The release index is the directory listing at the mirror root (one
// "3.9.1/" entry per release). It is cached for IndexTTL; pass refresh to
// bypass the cache.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/matzehuels/pyshim/pkg/cache"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/httputil"
	"github.com/matzehuels/pyshim/pkg/observability"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/progress"
	"github.com/matzehuels/pyshim/pkg/pyversion"
)

// DefaultMirror is the python.org source tree.
const DefaultMirror = "https://www.python.org/ftp/python"

// DefaultIndexTTL is how long a fetched release index stays fresh.
const DefaultIndexTTL = 24 * time.Hour

const indexKeyType = "release-index"

var releaseDir = regexp.MustCompile(`href="(\d+\.\d+(?:\.\d+)?)/"`)

// Fetcher retrieves releases from a mirror.
type Fetcher struct {
	Mirror   string
	IndexTTL time.Duration
	Paths    paths.Layout
	Client   *httputil.Client
	Cache    cache.Cache
	Logger   *log.Logger
	// Progress, when set, receives a live download display.
	Progress io.Writer
}

// New returns a fetcher for the default mirror. c may be nil to disable
// index caching.
func New(layout paths.Layout, c cache.Cache) *Fetcher {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Fetcher{
		Mirror:   DefaultMirror,
		IndexTTL: DefaultIndexTTL,
		Paths:    layout,
		Client:   httputil.NewClient(nil),
		Cache:    c,
	}
}

func (f *Fetcher) logger() *log.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return log.Default()
}

func (f *Fetcher) mirror() string {
	return strings.TrimRight(f.Mirror, "/")
}

// Releases returns every release listed by the mirror, oldest first.
func (f *Fetcher) Releases(ctx context.Context, refresh bool) ([]pyversion.Version, error) {
	key := "index:" + f.mirror()
	hooks := observability.Cache()

	if !refresh {
		data, ok, err := f.Cache.Get(ctx, key)
		if err != nil {
			f.logger().Debug("release index cache read failed", "err", err)
		}
		if ok {
			var texts []string
			if err := json.Unmarshal(data, &texts); err == nil {
				hooks.OnCacheHit(ctx, indexKeyType)
				return parseAll(texts), nil
			}
		}
		hooks.OnCacheMiss(ctx, indexKeyType)
	}

	body, err := f.Client.GetBytes(ctx, f.mirror()+"/")
	if err != nil {
		return nil, err
	}
	texts := ParseIndex(string(body))
	if len(texts) == 0 {
		return nil, pserrors.New(pserrors.ErrCodeNotFound, "no releases listed at %s", f.mirror())
	}
	f.logger().Debug("fetched release index", "mirror", f.mirror(), "releases", len(texts))

	if data, err := json.Marshal(texts); err == nil {
		if err := f.Cache.Set(ctx, key, data, f.IndexTTL); err != nil {
			f.logger().Debug("release index cache write failed", "err", err)
		} else {
			hooks.OnCacheSet(ctx, indexKeyType, len(data))
		}
	}
	return parseAll(texts), nil
}

// ParseIndex extracts release directory names from a mirror listing.
// Duplicates are dropped; order follows the listing.
func ParseIndex(listing string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range releaseDir.FindAllStringSubmatch(listing, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func parseAll(texts []string) []pyversion.Version {
	vs := make([]pyversion.Version, 0, len(texts))
	for _, t := range texts {
		if v, err := pyversion.ParseVersion(t); err == nil {
			vs = append(vs, v)
		}
	}
	pyversion.Sort(vs)
	return vs
}

// Resolve returns the newest release satisfying req.
func (f *Fetcher) Resolve(ctx context.Context, req pyversion.Requirement, refresh bool) (pyversion.Version, error) {
	releases, err := f.Releases(ctx, refresh)
	if err != nil {
		return pyversion.Version{}, err
	}
	v, err := pyversion.Best(req, releases)
	if err != nil {
		return pyversion.Version{}, pserrors.New(pserrors.ErrCodeNotFound, "no release at %s satisfies %q", f.mirror(), req)
	}
	return v, nil
}

// ArchiveURL is the source tarball location for v. Prereleases live in
// their final release's directory.
func (f *Fetcher) ArchiveURL(v pyversion.Version) string {
	dir := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	return fmt.Sprintf("%s/%s/%s.tgz", f.mirror(), dir, paths.SourceBasename(v))
}

// Download places the source archive for v at Paths.Archive(v) and returns
// that path. An archive already present is reused unless force is set.
func (f *Fetcher) Download(ctx context.Context, v pyversion.Version, force bool) (string, error) {
	dest := f.Paths.Archive(v)
	if !force {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			f.logger().Debug("reusing downloaded archive", "path", dest)
			return dest, nil
		}
	}

	url := f.ArchiveURL(v)
	f.logger().Info("downloading", "url", url)

	var onProgress httputil.ProgressFunc
	var st *progress.Stage
	if f.Progress != nil {
		st = progress.Start(progress.New(f.Progress, "download"))
		defer st.Close()
		onProgress = func(written, total int64) {
			st.Status(sizeText(written, total))
		}
	}

	n, err := f.Client.Download(ctx, url, dest, onProgress)
	if err != nil {
		if st != nil {
			st.Fail(paths.SourceBasename(v) + ".tgz")
		}
		return "", err
	}
	if st != nil {
		st.Finish(fmt.Sprintf("%s.tgz (%s)", paths.SourceBasename(v), humanize.Bytes(uint64(n))))
	}
	return dest, nil
}

func sizeText(written, total int64) string {
	if total <= 0 {
		return humanize.Bytes(uint64(written))
	}
	return fmt.Sprintf("%s / %s", humanize.Bytes(uint64(written)), humanize.Bytes(uint64(total)))
}
