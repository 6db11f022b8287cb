package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks reports every event to a logger at debug level. The CLI
// registers it for all hook kinds when running verbosely.
type LogHooks struct {
	Logger *log.Logger
}

func (h LogHooks) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

func (h LogHooks) OnInstallStart(_ context.Context, version string) {
	h.logger().Debug("install started", "version", version)
}

func (h LogHooks) OnInstallComplete(_ context.Context, version string, d time.Duration, err error) {
	if err != nil {
		h.logger().Debug("install failed", "version", version, "elapsed", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger().Debug("install finished", "version", version, "elapsed", d.Round(time.Millisecond))
}

func (h LogHooks) OnStageStart(_ context.Context, version, stage string) {
	h.logger().Debug("stage started", "version", version, "stage", stage)
}

func (h LogHooks) OnStageComplete(_ context.Context, version, stage string, d time.Duration, err error) {
	h.logger().Debug("stage finished", "version", version, "stage", stage, "elapsed", d.Round(time.Millisecond), "ok", err == nil)
}

func (h LogHooks) OnDispatch(_ context.Context, command, version, binary string) {
	h.logger().Debug("dispatch", "command", command, "version", version, "binary", binary)
}

func (h LogHooks) OnDispatchError(_ context.Context, command string, err error) {
	h.logger().Debug("dispatch failed", "command", command, "err", err)
}

func (h LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger().Debug("cache hit", "key", keyType)
}

func (h LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger().Debug("cache miss", "key", keyType)
}

func (h LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger().Debug("cache set", "key", keyType, "bytes", size)
}

func (h LogHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger().Debug("http request", "method", method, "host", host, "path", path)
}

func (h LogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger().Debug("http response", "method", method, "host", host, "path", path, "status", status, "elapsed", d.Round(time.Millisecond))
}

func (h LogHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger().Debug("http error", "method", method, "host", host, "path", path, "err", err)
}

// Register installs h for every hook kind.
func (h LogHooks) Register() {
	SetInstallHooks(h)
	SetShimHooks(h)
	SetCacheHooks(h)
	SetHTTPHooks(h)
}

var (
	_ InstallHooks = LogHooks{}
	_ ShimHooks    = LogHooks{}
	_ CacheHooks   = LogHooks{}
	_ HTTPHooks    = LogHooks{}
)
