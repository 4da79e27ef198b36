// Package notify sends fire-and-forget HTTP notifications for loop events.
// The primary use case is ntfy.sh, but any HTTP webhook works.
package notify

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
)

// Notifier posts plain-text HTTP notifications for selected loop events.
type Notifier struct {
	url        string
	title      string
	onComplete bool
	onError    bool
	onStop     bool
	client     *http.Client
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// New creates a Notifier. projectName is used as the X-Title header; if empty,
// "jodex" is used instead.
func New(notifURL, projectName string, onComplete, onError, onStop bool) *Notifier {
	title := "jodex"
	if projectName != "" {
		title = projectName
	}
	return &Notifier{
		url:        notifURL,
		title:      title,
		onComplete: onComplete,
		onError:    onError,
		onStop:     onStop,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger used to report failed posts at debug level.
func (n *Notifier) WithLogger(l *slog.Logger) *Notifier {
	if l != nil {
		n.logger = l
	}
	return n
}

// Hook is a loop observer. It fires asynchronous POSTs for events that match
// the configured notification flags.
func (n *Notifier) Hook(entry loop.LogEntry) {
	switch entry.Kind {
	case loop.LogIterComplete:
		if n.onComplete {
			n.send(entry.Message, "")
		}
	case loop.LogError:
		if n.onError {
			n.send(entry.Message, "warning")
		}
	case loop.LogDone, loop.LogStopped:
		if n.onStop {
			n.send(entry.Message, "")
		}
	}
}

// Wait blocks until in-flight posts finish or timeout elapses, so the final
// "loop complete" notification is not lost when the process exits.
func (n *Notifier) Wait(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		n.logger.Debug("notify: gave up waiting for in-flight posts", "timeout", timeout)
	}
}

func (n *Notifier) send(message, tags string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.post(message, tags)
	}()
}

// post sends a plain-text POST to the configured URL. Errors are logged at
// debug level and otherwise discarded so notification failures never
// interrupt the loop.
func (n *Notifier) post(message, tags string) {
	req, err := http.NewRequest(http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		n.logger.Debug("notify: build request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Title", n.title)
	if tags != "" {
		req.Header.Set("X-Tags", tags)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Debug("notify: post", "url", n.url, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Debug("notify: unexpected status", "url", n.url, "status", resp.StatusCode)
	}
}
