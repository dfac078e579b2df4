// Package monitor collects Content Security Policy reports from a page's console.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/ajsharma/cspcheck/internal/events"
)

// drainPrefix marks the console.debug call Drain uses as a barrier.
const drainPrefix = "cspcheck:drain:"

// ConsoleMonitor filters a page's console output into a ViolationLog.
// One listener serves the whole run; the open Scope, if any, decides which
// page a message is attributed to.
type ConsoleMonitor struct {
	marker string
	log    *events.ViolationLog

	// seen counts every console message observed, CSP or not.
	seen atomic.Int64

	mu      sync.Mutex
	ctx     context.Context
	current *Scope
}

// NewConsoleMonitor creates a monitor that keeps messages containing marker.
func NewConsoleMonitor(marker string, log *events.ViolationLog) *ConsoleMonitor {
	return &ConsoleMonitor{
		marker: marker,
		log:    log,
	}
}

// Enable subscribes to the target's events and turns on the CDP domains that
// carry console output. ctx must be a chromedp target context; the
// subscription ends with it.
// Browser-generated CSP reports arrive through the Log domain; console.*
// calls made by page scripts arrive through Runtime.
func (cm *ConsoleMonitor) Enable(ctx context.Context) error {
	cm.mu.Lock()
	cm.ctx = ctx
	cm.mu.Unlock()

	chromedp.ListenTarget(ctx, cm.handleEvent)

	return chromedp.Run(ctx,
		runtime.Enable(),
		cdplog.Enable(),
	)
}

// Log returns the log the monitor appends to.
func (cm *ConsoleMonitor) Log() *events.ViolationLog {
	return cm.log
}

// Seen returns the number of console messages observed so far.
func (cm *ConsoleMonitor) Seen() int64 {
	return cm.seen.Load()
}

// Scope attributes subsequent messages to page until the scope is closed.
// Opening a scope replaces any scope still open.
func (cm *ConsoleMonitor) Scope(page string) *Scope {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	s := &Scope{
		page:    page,
		monitor: cm,
	}
	cm.current = s
	return s
}

// handleEvent runs on the target's event goroutine and must not block.
func (cm *ConsoleMonitor) handleEvent(ev interface{}) {
	if call, ok := ev.(*runtime.EventConsoleAPICalled); ok && cm.observeDrain(call) {
		return
	}

	msg := messageFromEvent(ev, "")
	if msg == nil {
		return
	}
	cm.seen.Add(1)

	if !msg.Mentions(cm.marker) {
		return
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if s := cm.current; s != nil {
		msg.Page = s.page
		s.messages = append(s.messages, msg)
	}
	cm.log.Append(msg)
}

// observeDrain reports whether call is a drain marker and releases the
// open scope's Drain if the token is the one it waits for.
func (cm *ConsoleMonitor) observeDrain(call *runtime.EventConsoleAPICalled) bool {
	if len(call.Args) != 1 {
		return false
	}
	text := remoteObjectText(call.Args[0])
	if !strings.HasPrefix(text, drainPrefix) {
		return false
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if s := cm.current; s != nil && s.drained != nil && text == s.drainToken {
		close(s.drained)
		s.drained = nil
	}
	return true
}

// Scope collects the violations of a single page visit.
// Its state is guarded by the monitor's mutex.
type Scope struct {
	page    string
	monitor *ConsoleMonitor

	messages   []*events.ConsoleMessage
	drainToken string
	drained    chan struct{}
}

// Page returns the page name the scope attributes messages to.
func (s *Scope) Page() string {
	return s.page
}

// Drain blocks until every console event the page emitted before the call
// has been delivered. It logs a unique token through console.debug and
// waits for the listener to see it; events for a target are dispatched in
// order, so anything earlier has been handled by then.
func (s *Scope) Drain(timeout time.Duration) error {
	token, done, target := s.armDrain()
	if target == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(target, timeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("console.debug(%q)", token), nil)); err != nil {
		return fmt.Errorf("failed to emit drain marker: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("console events for %s not drained: %w", s.page, ctx.Err())
	}
}

// armDrain registers a fresh drain token and returns the channel closed
// when the listener observes it, along with the target to emit it on.
func (s *Scope) armDrain() (string, <-chan struct{}, context.Context) {
	cm := s.monitor
	cm.mu.Lock()
	defer cm.mu.Unlock()
	s.drainToken = drainPrefix + uuid.NewString()
	s.drained = make(chan struct{})
	return s.drainToken, s.drained, cm.ctx
}

// Close ends the scope and returns the violations attributed to it, in
// emission order. Later messages are logged without a page.
func (s *Scope) Close() []*events.ConsoleMessage {
	cm := s.monitor
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.current == s {
		cm.current = nil
	}

	out := make([]*events.ConsoleMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// messageFromEvent converts a CDP console event into a ConsoleMessage.
// It returns nil for events that are not console output.
func messageFromEvent(ev interface{}, page string) *events.ConsoleMessage {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		kind := events.KindConsoleLog
		switch ev.Type {
		case runtime.APITypeWarning:
			kind = events.KindConsoleWarn
		case runtime.APITypeError:
			kind = events.KindConsoleError
		case runtime.APITypeInfo:
			kind = events.KindConsoleInfo
		case runtime.APITypeDebug:
			kind = events.KindConsoleDebug
		}

		var url string
		if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
			url = ev.StackTrace.CallFrames[0].URL
		}

		return events.NewConsoleMessage(kind, consoleText(ev.Args), url, page)

	case *cdplog.EventEntryAdded:
		if ev.Entry == nil {
			return nil
		}
		return events.NewConsoleMessage(events.KindLogEntry, ev.Entry.Text, ev.Entry.URL, page)
	}

	return nil
}

// consoleText renders console.* arguments the way DevTools prints them on
// one line: each argument as text, separated by spaces.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, remoteObjectText(arg))
	}
	return strings.Join(parts, " ")
}

// remoteObjectText renders a CDP RemoteObject as text.
func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}

	// Infinity, -Infinity, NaN, -0, bigint
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}

	if len(obj.Value) > 0 {
		var v interface{}
		if err := json.Unmarshal(obj.Value, &v); err != nil {
			return string(obj.Value)
		}
		return valueText(v)
	}

	switch {
	case obj.Type == runtime.TypeUndefined:
		return "undefined"
	case obj.Subtype == runtime.SubtypeNull:
		return "null"
	case obj.Description != "":
		// e.g. "Error: boom\n    at ...", "Array(3)", "function foo()"
		return obj.Description
	}

	return string(obj.Type)
}

func valueText(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
