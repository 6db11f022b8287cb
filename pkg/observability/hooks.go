// Package observability provides hooks for metrics, tracing, and logging.
//
// Instrumentation is optional and backend-neutral. Consumers register hooks
// at startup to receive events about install stages, shim dispatch, release
// index caching, and downloads. Libraries only ever see the interfaces, and
// every category defaults to a no-op.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetInstallHooks(&myInstallHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Install().OnStageStart(ctx, version, "make")
//	// ... run the stage ...
//	observability.Install().OnStageComplete(ctx, version, "make", duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Install Hooks
// =============================================================================

// InstallHooks receives events from the install pipeline.
type InstallHooks interface {
	OnInstallStart(ctx context.Context, version string)
	OnInstallComplete(ctx context.Context, version string, duration time.Duration, err error)

	// Stage events fire once per pipeline stage, in order.
	OnStageStart(ctx context.Context, version, stage string)
	OnStageComplete(ctx context.Context, version, stage string, duration time.Duration, err error)
}

// =============================================================================
// Shim Hooks
// =============================================================================

// ShimHooks receives events from shim dispatch.
type ShimHooks interface {
	// OnDispatch fires right before control passes to the resolved binary.
	OnDispatch(ctx context.Context, command, version, binary string)

	// OnDispatchError fires when dispatch fails before launching anything.
	OnDispatchError(ctx context.Context, command string, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from release index and archive downloads.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	// OnError records a network failure or timeout.
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopInstallHooks is a no-op implementation of InstallHooks.
type NoopInstallHooks struct{}

func (NoopInstallHooks) OnInstallStart(context.Context, string)                                 {}
func (NoopInstallHooks) OnInstallComplete(context.Context, string, time.Duration, error)        {}
func (NoopInstallHooks) OnStageStart(context.Context, string, string)                           {}
func (NoopInstallHooks) OnStageComplete(context.Context, string, string, time.Duration, error) {}

// NoopShimHooks is a no-op implementation of ShimHooks.
type NoopShimHooks struct{}

func (NoopShimHooks) OnDispatch(context.Context, string, string, string) {}
func (NoopShimHooks) OnDispatchError(context.Context, string, error)     {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	installHooks InstallHooks = NoopInstallHooks{}
	shimHooks    ShimHooks    = NoopShimHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	hooksMu      sync.RWMutex
)

// SetInstallHooks registers custom install hooks. Nil is ignored.
func SetInstallHooks(h InstallHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		installHooks = h
	}
}

// SetShimHooks registers custom shim hooks. Nil is ignored.
func SetShimHooks(h ShimHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		shimHooks = h
	}
}

// SetCacheHooks registers custom cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Install returns the registered install hooks.
func Install() InstallHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return installHooks
}

// Shim returns the registered shim hooks.
func Shim() ShimHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return shimHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	installHooks = NoopInstallHooks{}
	shimHooks = NoopShimHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
