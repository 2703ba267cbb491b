package escalation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"guardline/internal/common"
	"guardline/internal/domain/notification"
	"guardline/internal/domain/risk"
	"guardline/internal/infra/store"
	"guardline/internal/infra/template"
)

type fakeDirectory struct {
	subjects map[string]*Subject
	contacts map[string][]Contact
}

func (d *fakeDirectory) ResolveSubject(ctx context.Context, subjectID string) (*Subject, error) {
	return d.subjects[subjectID], nil
}

func (d *fakeDirectory) EmergencyContacts(ctx context.Context, subjectID string) ([]Contact, error) {
	return d.contacts[subjectID], nil
}

type fakeAnnotator struct {
	incidentID string
	note       string
	notified   []string
	err        error
	calls      int
}

func (a *fakeAnnotator) AnnotateIncident(ctx context.Context, incidentID, note string, notifiedContacts []string) error {
	a.calls++
	a.incidentID = incidentID
	a.note = note
	a.notified = notifiedContacts
	return a.err
}

// scriptedProvider succeeds for every destination except those marked failing.
type scriptedProvider struct {
	failing map[string]bool
	sent    []string
}

func (p *scriptedProvider) Channel() notification.Channel {
	return notification.ChannelSMS
}

func (p *scriptedProvider) Send(ctx context.Context, destination, body string) (notification.Outcome, error) {
	if p.failing[destination] {
		return notification.Outcome{Success: false, ErrorCode: "unreachable", ErrorMessage: "unreachable"}, nil
	}
	p.sent = append(p.sent, destination)
	return notification.Outcome{Success: true, ProviderMessageID: "msg-" + destination, Delivered: true}, nil
}

type fixture struct {
	orchestrator *Orchestrator
	store        *store.MemoryStore
	provider     *scriptedProvider
	annotator    *fakeAnnotator
}

func newFixture(t *testing.T, directory *fakeDirectory) *fixture {
	t.Helper()

	engine, err := template.NewEngine()
	if err != nil {
		t.Fatalf("building template engine: %v", err)
	}

	st := store.NewMemoryStore()
	provider := &scriptedProvider{failing: make(map[string]bool)}
	dispatcher := notification.NewDispatcher(st, notification.NewRetryScheduler(), provider)
	dispatcher.SetSendInterval(time.Millisecond)
	annotator := &fakeAnnotator{}

	return &fixture{
		orchestrator: NewOrchestrator(directory, engine, dispatcher, annotator),
		store:        st,
		provider:     provider,
		annotator:    annotator,
	}
}

func directoryWith(subject *Subject, contacts ...Contact) *fakeDirectory {
	d := &fakeDirectory{
		subjects: make(map[string]*Subject),
		contacts: make(map[string][]Contact),
	}
	if subject != nil {
		d.subjects[subject.ID] = subject
		d.contacts[subject.ID] = contacts
	}
	return d
}

func storedRecords(t *testing.T, st *store.MemoryStore) []*notification.Record {
	t.Helper()
	recs, _, err := st.List(context.Background(), notification.ListFilter{PageSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestEscalateUnknownSubject(t *testing.T) {
	f := newFixture(t, directoryWith(nil))

	_, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID: "ghost",
		Situation: "immediate danger",
	})

	var precondition *common.PreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if precondition.Code != "subject_not_found" {
		t.Errorf("expected subject_not_found, got %s", precondition.Code)
	}
	if len(storedRecords(t, f.store)) != 0 {
		t.Error("failed precondition must not create records")
	}
}

func TestEscalateNoContacts(t *testing.T) {
	// Subject exists but has no phone and no emergency contacts.
	f := newFixture(t, directoryWith(&Subject{ID: "subj-1", Name: "Jordan"}))

	_, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID: "subj-1",
		Situation: "immediate danger",
	})

	var precondition *common.PreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if precondition.Code != "no_contacts" {
		t.Errorf("expected no_contacts, got %s", precondition.Code)
	}
	if len(storedRecords(t, f.store)) != 0 {
		t.Error("failed precondition must not create records")
	}
}

func TestEscalateOrdering(t *testing.T) {
	t.Run("subject destination first", func(t *testing.T) {
		f := newFixture(t, directoryWith(
			&Subject{ID: "subj-1", Name: "Jordan", Phone: "5550000001"},
			Contact{Name: "Sam", Phone: "5550000002", Primary: true},
		))

		result, err := f.orchestrator.Escalate(context.Background(), &Request{
			SubjectID: "subj-1",
			Situation: "immediate danger",
		})
		if err != nil {
			t.Fatalf("escalation failed: %v", err)
		}

		if result.TotalRecipients != 2 {
			t.Fatalf("expected 2 recipients, got %d", result.TotalRecipients)
		}
		if result.Outcomes[0].Recipient.Destination != "5550000001" {
			t.Errorf("subject must be recipient 0, got %s", result.Outcomes[0].Recipient.Destination)
		}
	})

	t.Run("primary contacts before others", func(t *testing.T) {
		f := newFixture(t, directoryWith(
			&Subject{ID: "subj-1", Name: "Jordan"}, // no own phone
			Contact{Name: "Alex", Phone: "5550000003", Relationship: "friend"},
			Contact{Name: "Sam", Phone: "5550000002", Relationship: "sister", Primary: true},
		))

		result, err := f.orchestrator.Escalate(context.Background(), &Request{
			SubjectID: "subj-1",
			Situation: "immediate danger",
		})
		if err != nil {
			t.Fatalf("escalation failed: %v", err)
		}

		if result.Outcomes[0].Recipient.Name != "Sam" {
			t.Errorf("primary contact must come first, got %s", result.Outcomes[0].Recipient.Name)
		}
		if result.Outcomes[1].Recipient.Name != "Alex" {
			t.Errorf("non-primary contact must come after, got %s", result.Outcomes[1].Recipient.Name)
		}
	})
}

func TestEscalateDistinctCopies(t *testing.T) {
	f := newFixture(t, directoryWith(
		&Subject{ID: "subj-1", Name: "Jordan", Phone: "5550000001"},
		Contact{Name: "Sam", Phone: "5550000002", Relationship: "sister", Primary: true},
	))

	result, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID: "subj-1",
		Situation: "immediate danger",
		Location:  "12 Main St",
	})
	if err != nil {
		t.Fatalf("escalation failed: %v", err)
	}
	if result.TotalRecipients != 2 {
		t.Fatalf("expected 2 recipients, got %d", result.TotalRecipients)
	}

	recs := storedRecords(t, f.store)
	bodies := make(map[string]string, len(recs))
	for _, rec := range recs {
		bodies[rec.Recipient.Destination] = rec.Body
	}

	subjectBody := bodies["5550000001"]
	contactBody := bodies["5550000002"]
	if subjectBody == contactBody {
		t.Error("subject and contact copies must differ")
	}
	if !strings.Contains(contactBody, "Jordan") {
		t.Errorf("contact copy must name the subject: %q", contactBody)
	}
	for _, body := range bodies {
		if !strings.Contains(body, "immediate danger") {
			t.Errorf("every copy must carry the situation: %q", body)
		}
		if !strings.Contains(body, "12 Main St") {
			t.Errorf("every copy must carry the location: %q", body)
		}
	}
}

func TestEscalateMapLink(t *testing.T) {
	f := newFixture(t, directoryWith(
		&Subject{ID: "subj-1", Name: "Jordan", Phone: "5550000001"},
	))

	_, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID:   "subj-1",
		Situation:   "immediate danger",
		Coordinates: &Coordinates{Latitude: 40.7128, Longitude: -74.0060},
	})
	if err != nil {
		t.Fatalf("escalation failed: %v", err)
	}

	recs := storedRecords(t, f.store)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if !strings.Contains(recs[0].Body, "https://maps.google.com/?q=") {
		t.Errorf("expected map link in body: %q", recs[0].Body)
	}
}

func TestEscalatePartialFailure(t *testing.T) {
	f := newFixture(t, directoryWith(
		&Subject{ID: "subj-1", Name: "Jordan", Phone: "5550000001"},
		Contact{Name: "Sam", Phone: "5550000002", Primary: true},
	))
	f.provider.failing["5550000002"] = true

	result, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID:  "subj-1",
		IncidentID: "inc-9",
		Situation:  "immediate danger",
	})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}

	if !result.OverallSuccess {
		t.Error("one successful send makes the escalation successful")
	}
	if result.SuccessfulSends != 1 || result.FailedSends != 1 {
		t.Errorf("expected 1/1, got %d/%d", result.SuccessfulSends, result.FailedSends)
	}

	// The annotation reflects only recipients actually reached.
	if f.annotator.calls != 1 {
		t.Fatalf("expected one annotation, got %d", f.annotator.calls)
	}
	if len(f.annotator.notified) != 1 || f.annotator.notified[0] != "Jordan" {
		t.Errorf("annotation must list reached recipients only, got %v", f.annotator.notified)
	}
}

func TestEscalateAllSendsFail(t *testing.T) {
	f := newFixture(t, directoryWith(
		&Subject{ID: "subj-1", Name: "Jordan", Phone: "5550000001"},
	))
	f.provider.failing["5550000001"] = true

	result, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID: "subj-1",
		Situation: "immediate danger",
	})
	if err != nil {
		t.Fatalf("total failure is still a result, not an error: %v", err)
	}
	if result.OverallSuccess {
		t.Error("no successful send means the escalation failed overall")
	}
}

func TestEscalateContactOverride(t *testing.T) {
	// Directory contacts are ignored when the request carries its own list.
	f := newFixture(t, directoryWith(
		&Subject{ID: "subj-1", Name: "Jordan"},
		Contact{Name: "Sam", Phone: "5550000002", Primary: true},
	))

	result, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID: "subj-1",
		Situation: "immediate danger",
		Contacts:  []Contact{{Name: "Casey", Phone: "5550000004"}},
	})
	if err != nil {
		t.Fatalf("escalation failed: %v", err)
	}
	if result.TotalRecipients != 1 || result.Outcomes[0].Recipient.Name != "Casey" {
		t.Errorf("request contacts must override the directory, got %+v", result.Outcomes)
	}
}

func TestEscalateAnnotationSkippedWithoutIncident(t *testing.T) {
	f := newFixture(t, directoryWith(
		&Subject{ID: "subj-1", Name: "Jordan", Phone: "5550000001"},
	))

	if _, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID: "subj-1",
		Situation: "immediate danger",
	}); err != nil {
		t.Fatalf("escalation failed: %v", err)
	}
	if f.annotator.calls != 0 {
		t.Error("no incident id means no annotation")
	}
}

func TestEscalateAnnotationFailureIsBestEffort(t *testing.T) {
	f := newFixture(t, directoryWith(
		&Subject{ID: "subj-1", Name: "Jordan", Phone: "5550000001"},
	))
	f.annotator.err = errors.New("record service down")

	result, err := f.orchestrator.Escalate(context.Background(), &Request{
		SubjectID:  "subj-1",
		IncidentID: "inc-9",
		Situation:  "immediate danger",
	})
	if err != nil {
		t.Fatalf("annotation failure must not fail the escalation: %v", err)
	}
	if !result.OverallSuccess {
		t.Error("escalation succeeded regardless of the annotation")
	}
}

func TestAlertPriority(t *testing.T) {
	cases := []struct {
		in   risk.Priority
		want notification.Priority
	}{
		{risk.PriorityCritical, notification.PriorityCritical},
		{risk.PriorityEmergency, notification.PriorityUrgent},
		{risk.PriorityHigh, notification.PriorityHigh},
		{"", notification.PriorityUrgent},
		{risk.PriorityMedium, notification.PriorityUrgent},
	}
	for _, tc := range cases {
		if got := alertPriority(tc.in); got != tc.want {
			t.Errorf("alertPriority(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
