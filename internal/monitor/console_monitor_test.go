package monitor

import (
	"testing"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/ajsharma/cspcheck/internal/events"
)

const violationText = `Refused to execute inline script because it violates the following Content Security Policy directive: "script-src 'self'".`

func logEntry(text, url string) *cdplog.EventEntryAdded {
	return &cdplog.EventEntryAdded{
		Entry: &cdplog.Entry{
			Source: cdplog.SourceSecurity,
			Level:  cdplog.LevelError,
			Text:   text,
			URL:    url,
		},
	}
}

func consoleCall(typ runtime.APIType, values ...string) *runtime.EventConsoleAPICalled {
	args := make([]*runtime.RemoteObject, 0, len(values))
	for _, v := range values {
		args = append(args, &runtime.RemoteObject{
			Type:  runtime.TypeString,
			Value: []byte(`"` + v + `"`),
		})
	}
	return &runtime.EventConsoleAPICalled{Type: typ, Args: args}
}

func TestScopeFiltersViolations(t *testing.T) {
	log := events.NewViolationLog()
	cm := NewConsoleMonitor("Content Security Policy", log)
	s := cm.Scope("index.html")

	cm.handleEvent(consoleCall(runtime.APITypeLog, "app started"))
	cm.handleEvent(logEntry(violationText, "http://localhost:8000/web/index.html"))
	cm.handleEvent(&page.EventLoadEventFired{})
	cm.handleEvent(consoleCall(runtime.APITypeError, "Content Security Policy", "blocked"))

	if cm.Seen() != 3 {
		t.Errorf("expected 3 console messages seen, got %d", cm.Seen())
	}

	got := s.Close()
	if len(got) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(got))
	}
	if got[0].Text != violationText {
		t.Errorf("expected verbatim text, got %q", got[0].Text)
	}
	if got[0].Kind != events.KindLogEntry {
		t.Errorf("expected kind %s, got %s", events.KindLogEntry, got[0].Kind)
	}
	if got[0].URL != "http://localhost:8000/web/index.html" {
		t.Errorf("unexpected URL %q", got[0].URL)
	}
	if got[1].Text != "Content Security Policy blocked" {
		t.Errorf("unexpected console text %q", got[1].Text)
	}
	if got[1].Kind != events.KindConsoleError {
		t.Errorf("expected kind %s, got %s", events.KindConsoleError, got[1].Kind)
	}
	for _, m := range got {
		if m.Page != "index.html" {
			t.Errorf("expected page index.html, got %q", m.Page)
		}
	}

	if log.Len() != 2 {
		t.Errorf("expected run log to hold 2 messages, got %d", log.Len())
	}
}

func TestMessagesOutsideScopes(t *testing.T) {
	log := events.NewViolationLog()
	cm := NewConsoleMonitor("Content Security Policy", log)

	cm.handleEvent(logEntry("Content Security Policy before", ""))

	first := cm.Scope("index.html")
	cm.handleEvent(logEntry(violationText, ""))
	firstMsgs := first.Close()

	// A late message from the first page is logged but attributed to no page.
	cm.handleEvent(logEntry(violationText+" late", ""))

	second := cm.Scope("metrics.html")
	cm.handleEvent(logEntry("Content Security Policy second", ""))
	secondMsgs := second.Close()

	if len(firstMsgs) != 1 || firstMsgs[0].Page != "index.html" {
		t.Fatalf("unexpected first scope messages: %+v", firstMsgs)
	}
	if len(secondMsgs) != 1 || secondMsgs[0].Page != "metrics.html" {
		t.Fatalf("unexpected second scope messages: %+v", secondMsgs)
	}

	texts := log.Texts()
	want := []string{
		"Content Security Policy before",
		violationText,
		violationText + " late",
		"Content Security Policy second",
	}
	if len(texts) != len(want) {
		t.Fatalf("expected %d log entries, got %d: %v", len(want), len(texts), texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("texts[%d] = %q, want %q", i, texts[i], want[i])
		}
	}
	if got := log.ForPage(""); len(got) != 2 {
		t.Errorf("expected 2 unattributed messages, got %d", len(got))
	}
	if got := log.ForPage("index.html"); len(got) != 1 {
		t.Errorf("expected 1 index.html message, got %d", len(got))
	}
}

func TestScopeReplacesOpenScope(t *testing.T) {
	cm := NewConsoleMonitor("Content Security Policy", events.NewViolationLog())

	stale := cm.Scope("index.html")
	fresh := cm.Scope("metrics.html")
	cm.handleEvent(logEntry(violationText, ""))

	// Closing the replaced scope leaves the open one in place.
	if got := stale.Close(); len(got) != 0 {
		t.Errorf("replaced scope should get no messages, got %d", len(got))
	}
	cm.handleEvent(logEntry(violationText, ""))

	if got := fresh.Close(); len(got) != 2 {
		t.Errorf("expected 2 messages in the open scope, got %d", len(got))
	}
}

func TestScopePage(t *testing.T) {
	cm := NewConsoleMonitor("x", events.NewViolationLog())
	if got := cm.Scope("metrics.html").Page(); got != "metrics.html" {
		t.Errorf("expected metrics.html, got %s", got)
	}
	if cm.Log() == nil {
		t.Error("expected monitor log to be set")
	}
}

func TestMessageFromEventKinds(t *testing.T) {
	tests := []struct {
		typ      runtime.APIType
		expected string
	}{
		{runtime.APITypeLog, events.KindConsoleLog},
		{runtime.APITypeWarning, events.KindConsoleWarn},
		{runtime.APITypeError, events.KindConsoleError},
		{runtime.APITypeInfo, events.KindConsoleInfo},
		{runtime.APITypeDebug, events.KindConsoleDebug},
		{runtime.APITypeTable, events.KindConsoleLog},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			msg := messageFromEvent(consoleCall(tt.typ, "x"), "")
			if msg == nil {
				t.Fatal("expected message, got nil")
			}
			if msg.Kind != tt.expected {
				t.Errorf("kind = %s, want %s", msg.Kind, tt.expected)
			}
		})
	}
}

func TestMessageFromEventStackURL(t *testing.T) {
	ev := consoleCall(runtime.APITypeLog, "x")
	ev.StackTrace = &runtime.StackTrace{
		CallFrames: []*runtime.CallFrame{{URL: "http://localhost:8000/web/app.js"}},
	}

	msg := messageFromEvent(ev, "")
	if msg.URL != "http://localhost:8000/web/app.js" {
		t.Errorf("unexpected URL %q", msg.URL)
	}
}

func TestMessageFromEventIgnored(t *testing.T) {
	if msg := messageFromEvent(&page.EventLoadEventFired{}, ""); msg != nil {
		t.Errorf("expected nil for page event, got %+v", msg)
	}
	if msg := messageFromEvent(&cdplog.EventEntryAdded{}, ""); msg != nil {
		t.Errorf("expected nil for entry without payload, got %+v", msg)
	}
}

func TestRemoteObjectText(t *testing.T) {
	tests := []struct {
		name     string
		obj      *runtime.RemoteObject
		expected string
	}{
		{"nil", nil, ""},
		{"string", &runtime.RemoteObject{Type: runtime.TypeString, Value: []byte(`"hello"`)}, "hello"},
		{"integer", &runtime.RemoteObject{Type: runtime.TypeNumber, Value: []byte(`42`)}, "42"},
		{"float", &runtime.RemoteObject{Type: runtime.TypeNumber, Value: []byte(`1.5`)}, "1.5"},
		{"bool", &runtime.RemoteObject{Type: runtime.TypeBoolean, Value: []byte(`true`)}, "true"},
		{"json null", &runtime.RemoteObject{Type: runtime.TypeObject, Value: []byte(`null`)}, "null"},
		{"object value", &runtime.RemoteObject{Type: runtime.TypeObject, Value: []byte(`{"a":1}`)}, `{"a":1}`},
		{"unserializable", &runtime.RemoteObject{Type: runtime.TypeNumber, UnserializableValue: "NaN"}, "NaN"},
		{"undefined", &runtime.RemoteObject{Type: runtime.TypeUndefined}, "undefined"},
		{"null subtype", &runtime.RemoteObject{Type: runtime.TypeObject, Subtype: runtime.SubtypeNull}, "null"},
		{"description", &runtime.RemoteObject{Type: runtime.TypeObject, Description: "Array(3)"}, "Array(3)"},
		{"bare type", &runtime.RemoteObject{Type: runtime.TypeFunction}, "function"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := remoteObjectText(tt.obj); got != tt.expected {
				t.Errorf("remoteObjectText() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConsoleTextJoinsArgs(t *testing.T) {
	ev := consoleCall(runtime.APITypeLog, "a", "b", "c")
	if got := consoleText(ev.Args); got != "a b c" {
		t.Errorf("expected %q, got %q", "a b c", got)
	}
	if got := consoleText(nil); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}

func TestScopeDrainMarker(t *testing.T) {
	log := events.NewViolationLog()
	cm := NewConsoleMonitor("Content Security Policy", log)
	s := cm.Scope("index.html")

	token, done, _ := s.armDrain()

	// A stale marker from an earlier drain is swallowed but does not release.
	cm.handleEvent(consoleCall(runtime.APITypeDebug, drainPrefix+"stale"))
	select {
	case <-done:
		t.Fatal("stale marker should not release the drain")
	default:
	}

	cm.handleEvent(logEntry(violationText, ""))
	cm.handleEvent(consoleCall(runtime.APITypeDebug, token))

	select {
	case <-done:
	default:
		t.Fatal("expected drain to be released by its marker")
	}

	// Markers are not console output.
	if cm.Seen() != 1 {
		t.Errorf("expected 1 message seen, got %d", cm.Seen())
	}
	if got := s.Close(); len(got) != 1 {
		t.Errorf("expected 1 violation, got %d", len(got))
	}

	// Seeing the same marker again must not panic on a closed channel.
	cm.handleEvent(consoleCall(runtime.APITypeDebug, token))
}

func TestScopeDrainWithoutTarget(t *testing.T) {
	s := NewConsoleMonitor("x", events.NewViolationLog()).Scope("p")
	if err := s.Drain(0); err != nil {
		t.Errorf("expected nil error for a monitor that was never enabled, got %v", err)
	}
}
