package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"guardline/internal/common"
	"guardline/internal/domain/notification"
	"guardline/internal/domain/risk"
)

// Subject is the person an escalation is about, as resolved from the
// record-management service.
type Subject struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Contact is one emergency contact of a subject.
type Contact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
	Primary      bool   `json:"primary"`
}

// Coordinates is a geographic point attached to an alert.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SubjectDirectory resolves subjects and their emergency contacts. The
// record-management service implements it; tests use fakes.
type SubjectDirectory interface {
	// ResolveSubject returns nil, nil when the subject is unknown.
	ResolveSubject(ctx context.Context, subjectID string) (*Subject, error)

	// EmergencyContacts returns the subject's configured emergency contacts.
	EmergencyContacts(ctx context.Context, subjectID string) ([]Contact, error)
}

// IncidentAnnotator writes the post-escalation audit note back onto the
// originating incident. This is the only side effect outside the
// notification subsystem.
type IncidentAnnotator interface {
	AnnotateIncident(ctx context.Context, incidentID, note string, notifiedContacts []string) error
}

// Request triggers an emergency escalation.
type Request struct {
	SubjectID   string        `json:"subject_id" binding:"required"`
	IncidentID  string        `json:"incident_id,omitempty"`
	Situation   string        `json:"situation" binding:"required"`
	Location    string        `json:"location,omitempty"`
	Coordinates *Coordinates  `json:"coordinates,omitempty"`
	Priority    risk.Priority `json:"priority,omitempty"`
	// Contacts overrides the directory lookup when provided.
	Contacts []Contact `json:"contacts,omitempty"`
}

// Result aggregates one escalation. Best-effort semantics: at least one
// successful send counts as a successful escalation.
type Result struct {
	BatchID         string                          `json:"batch_id"`
	TotalRecipients int                             `json:"total_recipients"`
	SuccessfulSends int                             `json:"successful_sends"`
	FailedSends     int                             `json:"failed_sends"`
	Outcomes        []notification.RecipientOutcome `json:"per_recipient_outcome"`
	OverallSuccess  bool                            `json:"overall_success"`
}

// Orchestrator fans a single emergency trigger out to an ordered set of
// recipients with partial-failure semantics.
type Orchestrator struct {
	directory  SubjectDirectory
	renderer   notification.TemplateRenderer
	dispatcher *notification.Dispatcher
	annotator  IncidentAnnotator
}

// NewOrchestrator creates an escalation orchestrator. The annotator may be
// nil when no record-management write-back is configured.
func NewOrchestrator(directory SubjectDirectory, renderer notification.TemplateRenderer, dispatcher *notification.Dispatcher, annotator IncidentAnnotator) *Orchestrator {
	return &Orchestrator{
		directory:  directory,
		renderer:   renderer,
		dispatcher: dispatcher,
		annotator:  annotator,
	}
}

// Template keys the orchestrator renders with.
const (
	TemplateEmergencySubject = "emergency_subject"
	TemplateEmergencyContact = "emergency_contact"
)

// Escalate resolves the subject, builds the ordered recipient list, renders
// per-recipient message copies and dispatches the batch. Preconditions fail
// before any notification record is created; after dispatch begins, partial
// failure is a normal outcome.
func (o *Orchestrator) Escalate(ctx context.Context, req *Request) (*Result, error) {
	subject, err := o.directory.ResolveSubject(ctx, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("resolving subject %s: %w", req.SubjectID, err)
	}
	if subject == nil {
		return nil, common.NewSubjectNotFoundError(req.SubjectID)
	}

	contacts := req.Contacts
	if len(contacts) == 0 {
		contacts, err = o.directory.EmergencyContacts(ctx, req.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("fetching emergency contacts for %s: %w", req.SubjectID, err)
		}
	}

	if len(contacts) == 0 && subject.Phone == "" {
		return nil, common.NewNoContactsError()
	}

	recipients := o.buildRecipients(subject, contacts, req)

	result, err := o.dispatcher.Dispatch(ctx, recipients, "", notification.BatchOptions{
		Channel:    notification.ChannelSMS,
		Category:   notification.CategoryEmergencyAlert,
		Priority:   alertPriority(req.Priority),
		IncidentID: req.IncidentID,
	})
	if err != nil {
		return nil, err
	}

	escResult := &Result{
		BatchID:         result.BatchID,
		TotalRecipients: result.Total,
		SuccessfulSends: result.Successful,
		FailedSends:     result.Failed,
		Outcomes:        result.Outcomes,
		OverallSuccess:  result.Successful > 0,
	}

	slog.Info("emergency escalation complete",
		"subject_id", req.SubjectID,
		"incident_id", req.IncidentID,
		"batch_id", result.BatchID,
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
	)

	o.annotate(ctx, req, escResult)

	return escResult, nil
}

// buildRecipients orders the fan-out: the subject's own destination first,
// then primary contacts, then the rest. The sort is stable; completion
// order is still unguaranteed since sends are independent.
func (o *Orchestrator) buildRecipients(subject *Subject, contacts []Contact, req *Request) []notification.BatchRecipient {
	recipients := make([]notification.BatchRecipient, 0, len(contacts)+1)

	if subject.Phone != "" {
		recipients = append(recipients, notification.BatchRecipient{
			Recipient: notification.Recipient{
				Name:        subject.Name,
				SubjectID:   subject.ID,
				Destination: subject.Phone,
			},
			Body: o.renderBody(TemplateEmergencySubject, subject, Contact{}, req),
		})
	}

	ordered := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Primary {
			ordered = append(ordered, c)
		}
	}
	for _, c := range contacts {
		if !c.Primary {
			ordered = append(ordered, c)
		}
	}

	for _, c := range ordered {
		recipients = append(recipients, notification.BatchRecipient{
			Recipient: notification.Recipient{
				Name:        c.Name,
				SubjectID:   subject.ID,
				Destination: c.Phone,
			},
			Body: o.renderBody(TemplateEmergencyContact, subject, c, req),
		})
	}

	return recipients
}

// renderBody renders one recipient's copy of the alert. The subject's own
// copy and contact copies differ textually but carry identical situation,
// location and coordinate data.
func (o *Orchestrator) renderBody(key string, subject *Subject, contact Contact, req *Request) string {
	vars := map[string]string{
		"subjectName":  subject.Name,
		"contactName":  contact.Name,
		"relationship": contact.Relationship,
		"situation":    req.Situation,
		"location":     req.Location,
		"time":         time.Now().UTC().Format("Jan 2 15:04 MST"),
	}

	body, err := o.renderer.Render(key, vars)
	if err != nil {
		slog.Error("rendering emergency template failed", "template", key, "error", err)
		body = fmt.Sprintf("EMERGENCY: %s needs immediate help. Situation: %s", subject.Name, req.Situation)
	}

	if req.Coordinates != nil {
		body += fmt.Sprintf(" Map: https://maps.google.com/?q=%f,%f", req.Coordinates.Latitude, req.Coordinates.Longitude)
	}
	return body
}

// annotate writes the audit note back to the record-management service.
// Best effort: a failed write-back never fails the escalation.
func (o *Orchestrator) annotate(ctx context.Context, req *Request, result *Result) {
	if o.annotator == nil || req.IncidentID == "" {
		return
	}

	notified := make([]string, 0, len(result.Outcomes))
	for _, out := range result.Outcomes {
		if out.Success {
			notified = append(notified, out.Recipient.Name)
		}
	}

	note := fmt.Sprintf("Emergency alert dispatched to %d of %d recipients (batch %s)",
		result.SuccessfulSends, result.TotalRecipients, result.BatchID)

	if err := o.annotator.AnnotateIncident(ctx, req.IncidentID, note, notified); err != nil {
		slog.Error("incident annotation failed",
			"incident_id", req.IncidentID,
			"batch_id", result.BatchID,
			"error", err,
		)
	}
}

// alertPriority maps a risk priority onto a notification priority for the
// emergency path.
func alertPriority(p risk.Priority) notification.Priority {
	switch p {
	case risk.PriorityCritical:
		return notification.PriorityCritical
	case risk.PriorityEmergency, "":
		return notification.PriorityUrgent
	case risk.PriorityHigh:
		return notification.PriorityHigh
	default:
		return notification.PriorityUrgent
	}
}
