// Package events defines the console messages and page findings a
// verification run produces.
package events

import (
	"strings"
	"sync"
	"time"
)

// Kind constants for console API messages.
const (
	KindConsoleLog     = "console.log"
	KindConsoleWarn    = "console.warn"
	KindConsoleInfo    = "console.info"
	KindConsoleError   = "console.error"
	KindConsoleDebug   = "console.debug"
	KindConsoleVerbose = "console.verbose"
)

// KindLogEntry marks messages the browser itself emits (Log.entryAdded),
// which is where Chrome reports blocked resources and inline scripts.
const KindLogEntry = "log.entry"

// ConsoleMessage is a single message the page's console emitted.
type ConsoleMessage struct {
	Timestamp time.Time
	Kind      string
	Text      string
	URL       string
	// Page is the name of the page whose scope was open when the message
	// arrived, or empty if it arrived between pages.
	Page string
}

// NewConsoleMessage creates a ConsoleMessage stamped with the current time.
func NewConsoleMessage(kind, text, url, page string) *ConsoleMessage {
	return &ConsoleMessage{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Text:      text,
		URL:       url,
		Page:      page,
	}
}

// Mentions reports whether the message text contains marker.
func (m *ConsoleMessage) Mentions(marker string) bool {
	return strings.Contains(m.Text, marker)
}

// ViolationLog is an append-only, ordered list of console messages.
// It is written from the CDP event goroutine and read from the run.
type ViolationLog struct {
	mu       sync.RWMutex
	messages []*ConsoleMessage
}

// NewViolationLog creates an empty log.
func NewViolationLog() *ViolationLog {
	return &ViolationLog{}
}

// Append adds a message at the end of the log.
func (l *ViolationLog) Append(m *ConsoleMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, m)
}

// Len returns the number of messages logged so far.
func (l *ViolationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Messages returns a copy of the log in emission order.
func (l *ViolationLog) Messages() []*ConsoleMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*ConsoleMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// ForPage returns the messages attributed to page, in emission order.
func (l *ViolationLog) ForPage(page string) []*ConsoleMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*ConsoleMessage
	for _, m := range l.messages {
		if m.Page == page {
			out = append(out, m)
		}
	}
	return out
}

// Texts returns the message texts in emission order.
func (l *ViolationLog) Texts() []string {
	msgs := l.Messages()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

// PageCheckResult is the outcome of checking one page.
type PageCheckResult struct {
	Name string
	URL  string
	// Found is true when the page has a CSP meta tag; Content is then its
	// content attribute (possibly empty).
	Found      bool
	Content    string
	Screenshot string
	Violations []*ConsoleMessage
}

// NewPageCheckResult creates a result for a page that has not been checked yet.
func NewPageCheckResult(name, url string) *PageCheckResult {
	return &PageCheckResult{
		Name: name,
		URL:  url,
	}
}
