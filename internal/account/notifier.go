// internal/account/notifier.go
package account

import (
	"sync"
	"time"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notice is a single user-facing notification (a toast, on the UI side).
type Notice struct {
	Severity Severity  `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Notifier is the one channel through which account workflows report
// outcomes to the user. Nothing here is thrown past component boundaries.
type Notifier interface {
	Info(title, message string)
	Error(title, message string)
}

// Navigator moves the UI between the two views the workflows care about.
type Navigator interface {
	GoHome()
	GoLogin()
}

// NoticeLog records notices in memory. Request-scoped handlers use it to
// hand toasts back in the HTTP response; tests use it to assert on them.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *NoticeLog) Info(title, message string) {
	l.append(Notice{Severity: SeverityInfo, Title: title, Message: message, At: time.Now()})
}

func (l *NoticeLog) Error(title, message string) {
	l.append(Notice{Severity: SeverityError, Title: title, Message: message, At: time.Now()})
}

// Notices returns a snapshot of everything recorded so far.
func (l *NoticeLog) Notices() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notice, len(l.notices))
	copy(out, l.notices)
	return out
}

func (l *NoticeLog) append(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

// RouteLog records navigation targets the same way NoticeLog records
// notices.
type RouteLog struct {
	mu     sync.Mutex
	routes []string
}

func (r *RouteLog) GoHome()  { r.push("home") }
func (r *RouteLog) GoLogin() { r.push("login") }

// Routes returns the recorded navigation targets in order.
func (r *RouteLog) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *RouteLog) push(dest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, dest)
}
