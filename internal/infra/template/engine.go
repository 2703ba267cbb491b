package template

import (
	"bytes"
	"fmt"
	"text/template"

	"guardline/internal/domain/notification"
)

var _ notification.TemplateRenderer = (*Engine)(nil)

// registry maps template keys to their message templates. Keys cover the
// emergency copies plus one template per non-custom notification category.
// All templates target SMS-length plain text.
var registry = map[string]string{
	"emergency_subject": "Your emergency alert has been sent to your emergency contacts. " +
		"Situation: {{.situation}}. Location: {{.location}}. Help is being notified. " +
		"If you are in immediate danger, call 911.",
	"emergency_contact": "EMERGENCY: {{.subjectName}} needs immediate help. " +
		"You are listed as their emergency contact{{if .relationship}} ({{.relationship}}){{end}}. " +
		"Situation: {{.situation}}. Location: {{.location}}. Sent {{.time}}. " +
		"Please check on them or call 911.",
	"issue_update":        "Update on your case: {{.update}}. Reference: {{.reference}}.",
	"status_change":       "The status of your case {{.reference}} changed to {{.status}}.",
	"court_reminder":      "Reminder: you have a court appearance on {{.date}} at {{.courtName}}. Reference: {{.reference}}.",
	"safety_check":        "Safety check-in: are you okay, {{.name}}? Reply or open the app to respond.",
	"system_notification": "{{.message}}",
}

// Engine renders message bodies from a typed template registry using Go's
// text/template package. Missing variables render as empty strings, which
// keeps a notification deliverable even when a caller omits optional data.
type Engine struct {
	templates map[string]*template.Template
}

// NewEngine parses the built-in template registry.
func NewEngine() (*Engine, error) {
	parsed := make(map[string]*template.Template, len(registry))
	for key, text := range registry {
		// missingkey=zero over map[string]string renders absent
		// variables as "" instead of failing.
		tmpl, err := template.New(key).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", key, err)
		}
		parsed[key] = tmpl
	}
	return &Engine{templates: parsed}, nil
}

// Render produces a message body for the given template key.
func (e *Engine) Render(key string, vars map[string]string) (string, error) {
	tmpl, ok := e.templates[key]
	if !ok {
		return "", fmt.Errorf("no template registered for key: %s", key)
	}

	if vars == nil {
		vars = map[string]string{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("executing template %s: %w", key, err)
	}
	return buf.String(), nil
}

// Has reports whether a template is registered for the given key.
func (e *Engine) Has(key string) bool {
	_, ok := e.templates[key]
	return ok
}
