package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	i := NoopInstallHooks{}
	i.OnInstallStart(ctx, "3.9.1")
	i.OnStageStart(ctx, "3.9.1", "make")
	i.OnStageComplete(ctx, "3.9.1", "make", time.Second, nil)
	i.OnInstallComplete(ctx, "3.9.1", time.Minute, nil)

	s := NoopShimHooks{}
	s.OnDispatch(ctx, "python", "3.9.1", "/x/bin/python3")
	s.OnDispatchError(ctx, "python", errors.New("boom"))

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "index")
	c.OnCacheMiss(ctx, "index")
	c.OnCacheSet(ctx, "index", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "www.python.org", "/ftp/python/")
	h.OnResponse(ctx, "GET", "www.python.org", "/ftp/python/", 200, time.Second)
	h.OnError(ctx, "GET", "www.python.org", "/ftp/python/", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if _, ok := Install().(NoopInstallHooks); !ok {
		t.Error("Install() should return NoopInstallHooks by default")
	}
	if _, ok := Shim().(NoopShimHooks); !ok {
		t.Error("Shim() should return NoopShimHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customInstall := &testInstallHooks{}
	SetInstallHooks(customInstall)
	if Install() != customInstall {
		t.Error("SetInstallHooks should set custom hooks")
	}

	customShim := &testShimHooks{}
	SetShimHooks(customShim)
	if Shim() != customShim {
		t.Error("SetShimHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Install().(NoopInstallHooks); !ok {
		t.Error("Reset() should restore NoopInstallHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	custom := &testInstallHooks{}
	SetInstallHooks(custom)
	SetInstallHooks(nil)

	if Install() != custom {
		t.Error("SetInstallHooks(nil) should be ignored")
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	h := LogHooks{Logger: logger}
	ctx := context.Background()

	h.OnStageStart(ctx, "3.9.1", "configure")
	h.OnStageComplete(ctx, "3.9.1", "configure", 1500*time.Millisecond, nil)
	h.OnDispatch(ctx, "python", "3.9.1", "/x/bin/python3")
	h.OnCacheMiss(ctx, "release-index")
	h.OnResponse(ctx, "GET", "www.python.org", "/ftp/python/", 200, time.Second)

	out := buf.String()
	for _, want := range []string{"stage started", "configure", "stage finished", "dispatch", "/x/bin/python3", "cache miss", "www.python.org"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLogHooksRegister(t *testing.T) {
	defer Reset()
	h := LogHooks{}
	h.Register()
	if _, ok := HTTP().(LogHooks); !ok {
		t.Error("HTTP hooks should be LogHooks after Register")
	}
	if _, ok := Cache().(LogHooks); !ok {
		t.Error("cache hooks should be LogHooks after Register")
	}
}

type testInstallHooks struct{ NoopInstallHooks }
type testShimHooks struct{ NoopShimHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
