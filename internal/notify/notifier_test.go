package notify

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
)

// captureServer starts an httptest.Server that records incoming requests.
// It returns the server and a function to collect all captured requests.
func captureServer(t *testing.T) (*httptest.Server, func() []capturedReq) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedReq{
			method:      r.Method,
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			title:       r.Header.Get("X-Title"),
			tags:        r.Header.Get("X-Tags"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedReq {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedReq, len(reqs))
		copy(out, reqs)
		return out
	}
}

type capturedReq struct {
	method      string
	body        string
	contentType string
	title       string
	tags        string
}

// waitForRequests polls until count requests are captured or the deadline is reached.
func waitForRequests(t *testing.T, collect func() []capturedReq, count int) []capturedReq {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := collect(); len(got) >= count {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d request(s)", count)
	return nil
}

func TestHook_OnComplete(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "myapp", true, false, false)
	n.Hook(loop.LogEntry{Kind: loop.LogIterComplete, Message: "Iteration 1 complete"})

	reqs := waitForRequests(t, collect, 1)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	r := reqs[0]
	if r.method != http.MethodPost {
		t.Errorf("method = %q, want POST", r.method)
	}
	if r.body != "Iteration 1 complete" {
		t.Errorf("body = %q, want %q", r.body, "Iteration 1 complete")
	}
	if r.contentType != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", r.contentType)
	}
	if r.title != "myapp" {
		t.Errorf("X-Title = %q, want myapp", r.title)
	}
}

func TestHook_OnComplete_Disabled(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "", false, false, false)
	n.Hook(loop.LogEntry{Kind: loop.LogIterComplete, Message: "Iteration 1 complete"})

	n.Wait(time.Second)
	if got := collect(); len(got) != 0 {
		t.Errorf("expected no requests, got %d", len(got))
	}
}

func TestHook_OnError(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "proj", false, true, false)
	n.Hook(loop.LogEntry{Kind: loop.LogError, Message: "Error: something failed"})

	reqs := waitForRequests(t, collect, 1)
	if reqs[0].body != "Error: something failed" {
		t.Errorf("body = %q, want %q", reqs[0].body, "Error: something failed")
	}
	if reqs[0].tags != "warning" {
		t.Errorf("X-Tags = %q, want warning", reqs[0].tags)
	}
}

func TestHook_OnError_Disabled(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "", false, false, false)
	n.Hook(loop.LogEntry{Kind: loop.LogError, Message: "oops"})

	n.Wait(time.Second)
	if got := collect(); len(got) != 0 {
		t.Errorf("expected no requests, got %d", len(got))
	}
}

func TestHook_OnStop_LogDone(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "", false, false, true)
	n.Hook(loop.LogEntry{Kind: loop.LogDone, Message: "Loop complete"})

	reqs := waitForRequests(t, collect, 1)
	if reqs[0].body != "Loop complete" {
		t.Errorf("body = %q, want %q", reqs[0].body, "Loop complete")
	}
}

func TestHook_OnStop_LogStopped(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "", false, false, true)
	n.Hook(loop.LogEntry{Kind: loop.LogStopped, Message: "Stop requested"})

	reqs := waitForRequests(t, collect, 1)
	if reqs[0].body != "Stop requested" {
		t.Errorf("body = %q, want %q", reqs[0].body, "Stop requested")
	}
}

func TestHook_OnStop_Disabled(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "", false, false, false)
	n.Hook(loop.LogEntry{Kind: loop.LogDone, Message: "done"})
	n.Hook(loop.LogEntry{Kind: loop.LogStopped, Message: "stopped"})

	n.Wait(time.Second)
	if got := collect(); len(got) != 0 {
		t.Errorf("expected no requests, got %d", len(got))
	}
}

func TestHook_IgnoresOtherKinds(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "", true, true, true)
	// These kinds should never trigger a notification.
	for _, kind := range []loop.LogKind{loop.LogInfo, loop.LogStart, loop.LogIterStart, loop.LogOutput, loop.LogWarning, loop.LogSleep, loop.LogPromptChanged} {
		n.Hook(loop.LogEntry{Kind: kind, Message: "noise"})
	}

	n.Wait(time.Second)
	if got := collect(); len(got) != 0 {
		t.Errorf("expected no requests for non-notification kinds, got %d", len(got))
	}
}

func TestHook_FallbackTitle(t *testing.T) {
	srv, collect := captureServer(t)

	// Empty project name → fallback title "jodex"
	n := New(srv.URL, "", true, false, false)
	n.Hook(loop.LogEntry{Kind: loop.LogIterComplete, Message: "done"})

	reqs := waitForRequests(t, collect, 1)
	if reqs[0].title != "jodex" {
		t.Errorf("X-Title = %q, want jodex", reqs[0].title)
	}
}

func TestHook_PostFailureSilent(t *testing.T) {
	// Point at a server that is already closed → connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // close immediately

	n := New(srv.URL, "", true, true, true)
	// None of these should panic or block.
	n.Hook(loop.LogEntry{Kind: loop.LogIterComplete, Message: "done"})
	n.Hook(loop.LogEntry{Kind: loop.LogError, Message: "err"})
	n.Hook(loop.LogEntry{Kind: loop.LogDone, Message: "done"})

	n.Wait(5 * time.Second)
}

func TestWait_FlushesInFlightPosts(t *testing.T) {
	srv, collect := captureServer(t)

	n := New(srv.URL, "", true, false, true)
	n.Hook(loop.LogEntry{Kind: loop.LogIterComplete, Message: "Iteration 1 complete"})
	n.Hook(loop.LogEntry{Kind: loop.LogDone, Message: "Loop complete"})
	n.Wait(5 * time.Second)

	if got := collect(); len(got) != 2 {
		t.Errorf("expected 2 requests after Wait, got %d", len(got))
	}
}

func TestWait_TimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	n := New(srv.URL, "", true, false, false)
	n.Hook(loop.LogEntry{Kind: loop.LogIterComplete, Message: "slow"})

	start := time.Now()
	n.Wait(50 * time.Millisecond)
	if time.Since(start) > 2*time.Second {
		t.Error("Wait should return after its timeout")
	}
}
