package template

import (
	"strings"
	"testing"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	return e
}

func TestRenderEmergencyContact(t *testing.T) {
	e := newEngine(t)

	body, err := e.Render("emergency_contact", map[string]string{
		"subjectName":  "Jordan",
		"relationship": "sister",
		"situation":    "immediate danger",
		"location":     "12 Main St",
		"time":         "Jan 2 15:04 UTC",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	for _, want := range []string{"Jordan", "(sister)", "immediate danger", "12 Main St"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
}

func TestRenderMissingVariables(t *testing.T) {
	e := newEngine(t)

	// Only the subject name is supplied; every other variable must render
	// empty rather than failing or leaking placeholder text.
	body, err := e.Render("emergency_contact", map[string]string{"subjectName": "Jordan"})
	if err != nil {
		t.Fatalf("partial variables must still render: %v", err)
	}
	if strings.Contains(body, "<no value>") {
		t.Errorf("placeholder leaked into body: %s", body)
	}
	if !strings.Contains(body, "Jordan") {
		t.Errorf("supplied variable missing from body: %s", body)
	}

	// Empty relationship drops the parenthetical entirely.
	if strings.Contains(body, "()") {
		t.Errorf("empty relationship left stray parentheses: %s", body)
	}
}

func TestRenderNilVariables(t *testing.T) {
	e := newEngine(t)

	body, err := e.Render("emergency_subject", nil)
	if err != nil {
		t.Fatalf("nil variables must still render: %v", err)
	}
	if body == "" {
		t.Error("expected non-empty body")
	}
}

func TestRenderUnknownKey(t *testing.T) {
	e := newEngine(t)

	if _, err := e.Render("carrier_pigeon", nil); err == nil {
		t.Error("unknown template key must error")
	}
}

func TestHas(t *testing.T) {
	e := newEngine(t)

	for _, key := range []string{"emergency_subject", "emergency_contact", "issue_update", "status_change", "court_reminder", "safety_check", "system_notification"} {
		if !e.Has(key) {
			t.Errorf("expected template %s to be registered", key)
		}
	}
	if e.Has("carrier_pigeon") {
		t.Error("unexpected template registered")
	}
}
