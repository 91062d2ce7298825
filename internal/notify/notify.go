// Package notify shows short status messages to the person pasting. At most
// one notification is live: a newer one replaces the older one.
package notify

import (
	"context"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Severity of a notification.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Error   Severity = "error"
)

// DefaultDuration is how long a notification stays visible.
const DefaultDuration = 3 * time.Second

// Notification is one transient message.
type Notification struct {
	Message  string
	Severity Severity
	Shown    time.Time
	Duration time.Duration
}

// Notifier displays notifications.
type Notifier interface {
	Show(ctx context.Context, message string, sev Severity) error
}

var policy = bluemonday.StrictPolicy()

// Sanitize strips markup from a message. File names come from the
// clipboard and are untrusted. The result is plain text for textContent,
// so the entities the policy emits are decoded again.
func Sanitize(msg string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(msg)))
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Show(context.Context, string, Severity) error { return nil }

// Recorder keeps the live notification in memory. It backs headless runs
// and tests.
type Recorder struct {
	mu       sync.Mutex
	now      func() time.Time
	duration time.Duration
	cur      *Notification
	history  []Notification
}

// NewRecorder creates a Recorder. now defaults to time.Now, duration to
// DefaultDuration.
func NewRecorder(now func() time.Time, duration time.Duration) *Recorder {
	if now == nil {
		now = time.Now
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Recorder{now: now, duration: duration}
}

func (r *Recorder) Show(_ context.Context, message string, sev Severity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := Notification{
		Message:  Sanitize(message),
		Severity: sev,
		Shown:    r.now(),
		Duration: r.duration,
	}
	r.cur = &n
	r.history = append(r.history, n)
	return nil
}

// Live returns the notification still on screen, if any.
func (r *Recorder) Live() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil || r.now().Sub(r.cur.Shown) >= r.cur.Duration {
		return Notification{}, false
	}
	return *r.cur, true
}

// History returns every notification shown, oldest first.
func (r *Recorder) History() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.history...)
}
