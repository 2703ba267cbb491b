package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"guardline/internal/domain/escalation"
)

var (
	_ escalation.SubjectDirectory  = (*Client)(nil)
	_ escalation.IncidentAnnotator = (*Client)(nil)
)

// Client talks to the record-management service that owns incident records
// and subject profiles. It resolves subjects and their emergency contacts
// and writes the post-escalation audit note back.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a record-management client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// subjectResponse is the collaborator's subject payload.
type subjectResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ResolveSubject fetches a subject profile. Returns nil, nil on 404.
func (c *Client) ResolveSubject(ctx context.Context, subjectID string) (*escalation.Subject, error) {
	var resp subjectResponse
	found, err := c.get(ctx, fmt.Sprintf("/api/v1/subjects/%s", subjectID), &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &escalation.Subject{
		ID:    resp.ID,
		Name:  resp.Name,
		Phone: resp.Phone,
	}, nil
}

// contactResponse is the collaborator's emergency contact payload.
type contactResponse struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
	Primary      bool   `json:"is_primary"`
}

// EmergencyContacts fetches a subject's emergency contacts.
func (c *Client) EmergencyContacts(ctx context.Context, subjectID string) ([]escalation.Contact, error) {
	var resp []contactResponse
	found, err := c.get(ctx, fmt.Sprintf("/api/v1/subjects/%s/emergency-contacts", subjectID), &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	contacts := make([]escalation.Contact, len(resp))
	for i, cr := range resp {
		contacts[i] = escalation.Contact{
			Name:         cr.Name,
			Phone:        cr.Phone,
			Relationship: cr.Relationship,
			Primary:      cr.Primary,
		}
	}
	return contacts, nil
}

// AnnotateIncident appends the escalation audit note to an incident.
func (c *Client) AnnotateIncident(ctx context.Context, incidentID, note string, notifiedContacts []string) error {
	payload := map[string]any{
		"note":              note,
		"notified_contacts": notifiedContacts,
		"contacts_notified": len(notifiedContacts) > 0,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling annotation payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/incidents/%s/annotations", c.baseURL, incidentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
		return fmt.Errorf("annotating incident: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// get performs a GET and decodes the response. Returns false on 404.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return false, fmt.Errorf("record-management request failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}
