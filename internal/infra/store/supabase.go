package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"guardline/internal/domain/notification"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const tableName = "notification_records"

var _ notification.Store = (*SupabaseStore)(nil)

// SupabaseStore implements notification.Store using the Supabase Go SDK.
type SupabaseStore struct {
	client *supa.Client
}

// NewSupabaseStore creates a new Supabase-backed notification store.
func NewSupabaseStore(supabaseURL, serviceKey string) (*SupabaseStore, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// supabaseRow is the internal representation for Supabase PostgREST
// insert/update.
type supabaseRow struct {
	ID                string   `json:"id,omitempty"`
	Channel           string   `json:"channel"`
	Category          string   `json:"category"`
	Priority          string   `json:"priority"`
	RecipientName     string   `json:"recipient_name"`
	SubjectID         *string  `json:"subject_id,omitempty"`
	Destination       string   `json:"destination"`
	Body              string   `json:"body"`
	Status            string   `json:"status"`
	SentAt            *string  `json:"sent_at,omitempty"`
	DeliveredAt       *string  `json:"delivered_at,omitempty"`
	FailedAt          *string  `json:"failed_at,omitempty"`
	Attempts          int      `json:"attempts"`
	MaxAttempts       int      `json:"max_attempts"`
	NextRetryAt       *string  `json:"next_retry_at,omitempty"`
	ExpiresAt         *string  `json:"expires_at,omitempty"`
	BatchID           *string  `json:"batch_id,omitempty"`
	BatchIndex        *int     `json:"batch_index,omitempty"`
	BatchSize         *int     `json:"batch_size,omitempty"`
	IncidentID        *string  `json:"incident_id,omitempty"`
	ProviderMessageID *string  `json:"provider_message_id,omitempty"`
	ProviderCost      *float64 `json:"provider_cost,omitempty"`
	ProviderCurrency  *string  `json:"provider_currency,omitempty"`
	ErrorCode         *string  `json:"error_code,omitempty"`
	ErrorMessage      *string  `json:"error_message,omitempty"`
	ErrorAt           *string  `json:"error_at,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

// Create inserts a new notification record.
func (s *SupabaseStore) Create(ctx context.Context, rec *notification.Record) error {
	row := recordToRow(rec)

	data, _, err := s.client.From(tableName).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting notification record: %w", err)
	}

	var results []supabaseRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}

	if len(results) > 0 {
		if t, err := time.Parse(time.RFC3339Nano, results[0].CreatedAt); err == nil {
			rec.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, results[0].UpdatedAt); err == nil {
			rec.UpdatedAt = t
		}
	}

	return nil
}

// GetByID retrieves a notification record by its ID.
func (s *SupabaseStore) GetByID(ctx context.Context, id string) (*notification.Record, error) {
	data, _, err := s.client.From(tableName).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching notification record: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing notification record: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rowToRecord(&rows[0]), nil
}

// GetByProviderMessageID retrieves a record by the provider's message ID.
// Returns nil, nil if no record is found.
func (s *SupabaseStore) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*notification.Record, error) {
	data, _, err := s.client.From(tableName).Select("*", "exact", false).Eq("provider_message_id", providerMessageID).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching by provider message id: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing provider lookup result: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rowToRecord(&rows[0]), nil
}

// Update persists the current state of a record.
func (s *SupabaseStore) Update(ctx context.Context, rec *notification.Record) error {
	row := recordToRow(rec)
	row.ID = ""
	row.CreatedAt = ""
	row.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	_, _, err := s.client.From(tableName).Update(row, "", "").Eq("id", rec.ID).Execute()
	if err != nil {
		return fmt.Errorf("updating notification record: %w", err)
	}
	return nil
}

// List retrieves notification records with pagination and filtering.
func (s *SupabaseStore) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Record, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	offset := (filter.Page - 1) * filter.PageSize

	query := s.client.From(tableName).Select("*", "exact", false)

	if filter.SubjectID != "" {
		query = query.Eq("subject_id", filter.SubjectID)
	}
	if filter.Status != "" {
		query = query.Eq("status", filter.Status)
	}
	if filter.Channel != "" {
		query = query.Eq("channel", filter.Channel)
	}
	if filter.Category != "" {
		query = query.Eq("category", filter.Category)
	}

	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	query = query.Range(offset, offset+filter.PageSize-1, "")

	data, count, err := query.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing notification records: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("parsing notification list: %w", err)
	}

	recs := make([]*notification.Record, len(rows))
	for i, row := range rows {
		recs[i] = rowToRecord(&row)
	}

	return recs, int(count), nil
}

// ListRetryDue retrieves failed records whose next retry time has passed.
func (s *SupabaseStore) ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*notification.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	threshold := now.UTC().Format(time.RFC3339Nano)

	query := s.client.From(tableName).
		Select("*", "exact", false).
		Eq("status", string(notification.StatusFailed)).
		Lte("next_retry_at", threshold).
		Order("next_retry_at", &postgrest.OrderOpts{Ascending: true}).
		Range(0, limit-1, "")

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("listing retry-due records: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing retry-due records: %w", err)
	}

	recs := make([]*notification.Record, 0, len(rows))
	for i := range rows {
		rec := rowToRecord(&rows[i])
		if rec.Delivery.Attempts < rec.Delivery.MaxAttempts {
			recs = append(recs, rec)
		}
	}

	return recs, nil
}

// Stats returns aggregate counts by status and category for a subject.
func (s *SupabaseStore) Stats(ctx context.Context, subjectID string) (*notification.Stats, error) {
	data, _, err := s.client.From(tableName).
		Select("status,category", "exact", false).
		Eq("subject_id", subjectID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching stats rows: %w", err)
	}

	var rows []struct {
		Status   string `json:"status"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing stats rows: %w", err)
	}

	stats := &notification.Stats{
		Total:      len(rows),
		ByStatus:   make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, row := range rows {
		stats.ByStatus[row.Status]++
		stats.ByCategory[row.Category]++
	}

	return stats, nil
}

// recordToRow converts a domain record to its Supabase representation.
func recordToRow(rec *notification.Record) supabaseRow {
	row := supabaseRow{
		ID:            rec.ID,
		Channel:       string(rec.Channel),
		Category:      string(rec.Category),
		Priority:      string(rec.Priority),
		RecipientName: rec.Recipient.Name,
		Destination:   rec.Recipient.Destination,
		Body:          rec.Body,
		Status:        string(rec.Status),
		Attempts:      rec.Delivery.Attempts,
		MaxAttempts:   rec.Delivery.MaxAttempts,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	if rec.Recipient.SubjectID != "" {
		row.SubjectID = &rec.Recipient.SubjectID
	}
	row.SentAt = formatTimePtr(rec.Delivery.SentAt)
	row.DeliveredAt = formatTimePtr(rec.Delivery.DeliveredAt)
	row.FailedAt = formatTimePtr(rec.Delivery.FailedAt)
	row.NextRetryAt = formatTimePtr(rec.Delivery.NextRetryAt)
	row.ExpiresAt = formatTimePtr(rec.Delivery.ExpiresAt)

	if rec.BatchID != "" {
		row.BatchID = &rec.BatchID
		row.BatchIndex = &rec.BatchIndex
		row.BatchSize = &rec.BatchSize
	}
	if rec.IncidentID != "" {
		row.IncidentID = &rec.IncidentID
	}
	if rec.Provider != nil {
		if rec.Provider.MessageID != "" {
			row.ProviderMessageID = &rec.Provider.MessageID
		}
		if rec.Provider.Cost != 0 {
			row.ProviderCost = &rec.Provider.Cost
		}
		if rec.Provider.Currency != "" {
			row.ProviderCurrency = &rec.Provider.Currency
		}
	}
	if rec.Error != nil {
		row.ErrorCode = &rec.Error.Code
		row.ErrorMessage = &rec.Error.Message
		errAt := rec.Error.OccurredAt.UTC().Format(time.RFC3339Nano)
		row.ErrorAt = &errAt
	}

	return row
}

// rowToRecord converts a Supabase row to a domain record.
func rowToRecord(row *supabaseRow) *notification.Record {
	rec := &notification.Record{
		ID:       row.ID,
		Channel:  notification.Channel(row.Channel),
		Category: notification.Category(row.Category),
		Priority: notification.Priority(row.Priority),
		Recipient: notification.Recipient{
			Name:        row.RecipientName,
			Destination: row.Destination,
		},
		Body:   row.Body,
		Status: notification.Status(row.Status),
		Delivery: notification.Delivery{
			Attempts:    row.Attempts,
			MaxAttempts: row.MaxAttempts,
		},
	}

	if row.SubjectID != nil {
		rec.Recipient.SubjectID = *row.SubjectID
	}
	rec.Delivery.SentAt = parseTimePtr(row.SentAt)
	rec.Delivery.DeliveredAt = parseTimePtr(row.DeliveredAt)
	rec.Delivery.FailedAt = parseTimePtr(row.FailedAt)
	rec.Delivery.NextRetryAt = parseTimePtr(row.NextRetryAt)
	rec.Delivery.ExpiresAt = parseTimePtr(row.ExpiresAt)

	if row.BatchID != nil {
		rec.BatchID = *row.BatchID
	}
	if row.BatchIndex != nil {
		rec.BatchIndex = *row.BatchIndex
	}
	if row.BatchSize != nil {
		rec.BatchSize = *row.BatchSize
	}
	if row.IncidentID != nil {
		rec.IncidentID = *row.IncidentID
	}

	if row.ProviderMessageID != nil || row.ProviderCost != nil || row.ProviderCurrency != nil {
		rec.Provider = &notification.ProviderResponse{}
		if row.ProviderMessageID != nil {
			rec.Provider.MessageID = *row.ProviderMessageID
		}
		if row.ProviderCost != nil {
			rec.Provider.Cost = *row.ProviderCost
		}
		if row.ProviderCurrency != nil {
			rec.Provider.Currency = *row.ProviderCurrency
		}
	}

	if row.ErrorCode != nil || row.ErrorMessage != nil {
		rec.Error = &notification.DeliveryError{}
		if row.ErrorCode != nil {
			rec.Error.Code = *row.ErrorCode
		}
		if row.ErrorMessage != nil {
			rec.Error.Message = *row.ErrorMessage
		}
		if t := parseTimePtr(row.ErrorAt); t != nil {
			rec.Error.OccurredAt = *t
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, row.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, row.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return rec
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
