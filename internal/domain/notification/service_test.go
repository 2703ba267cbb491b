package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"guardline/internal/common"
	"guardline/internal/domain/notification"
	"guardline/internal/infra/store"
)

type stubRenderer struct {
	body string
	err  error
}

func (r *stubRenderer) Render(key string, vars map[string]string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.body, nil
}

type stubRateLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (l *stubRateLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	l.calls++
	return l.allowed, l.err
}

func newTestService(t *testing.T, limiter notification.RecipientRateLimiter) (*notification.Service, *store.MemoryStore, *fakeProvider) {
	t.Helper()
	st := store.NewMemoryStore()
	provider := newFakeProvider(notification.ChannelSMS)
	d := notification.NewDispatcher(st, notification.NewRetryScheduler(), provider)
	d.SetSendInterval(time.Millisecond)
	svc := notification.NewService(st, d, &stubRenderer{body: "rendered body"}, limiter)
	return svc, st, provider
}

func validSendRequest() *notification.SendRequest {
	return &notification.SendRequest{
		Channel:  notification.ChannelSMS,
		Category: notification.CategoryIssueUpdate,
		Priority: notification.PriorityMedium,
		Recipient: notification.Recipient{
			Name:        "Jordan",
			SubjectID:   "subj-1",
			Destination: "5551234567",
		},
		Message: "your case was updated",
	}
}

func TestServiceSend(t *testing.T) {
	svc, st, _ := newTestService(t, nil)

	resp, err := svc.Send(context.Background(), validSendRequest())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if resp.Status != notification.StatusSent {
		t.Errorf("expected %s, got %s", notification.StatusSent, resp.Status)
	}
	if resp.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", resp.Attempts)
	}

	rec, err := st.GetByID(context.Background(), resp.ID)
	if err != nil || rec == nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.Status != notification.StatusSent {
		t.Errorf("persisted status %s", rec.Status)
	}
}

func TestServiceSendValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	cases := []struct {
		name   string
		mutate func(*notification.SendRequest)
	}{
		{"unsupported channel", func(r *notification.SendRequest) { r.Channel = "carrier_pigeon" }},
		{"unsupported category", func(r *notification.SendRequest) { r.Category = "gossip" }},
		{"unsupported priority", func(r *notification.SendRequest) { r.Priority = "whenever" }},
		{"short phone number", func(r *notification.SendRequest) { r.Recipient.Destination = "555123" }},
		{"non-numeric phone number", func(r *notification.SendRequest) { r.Recipient.Destination = "555123456a" }},
		{"empty message", func(r *notification.SendRequest) { r.Message = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validSendRequest()
			tc.mutate(req)

			_, err := svc.Send(context.Background(), req)
			var validation *common.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestServiceSendRendersTemplate(t *testing.T) {
	svc, st, _ := newTestService(t, nil)

	req := validSendRequest()
	req.Message = ""
	req.Variables = map[string]string{"subjectName": "Jordan"}

	resp, err := svc.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	rec, _ := st.GetByID(context.Background(), resp.ID)
	if rec.Body != "rendered body" {
		t.Errorf("expected rendered body, got %q", rec.Body)
	}
}

func TestServiceSendProviderFailureSurfacesInResponse(t *testing.T) {
	svc, st, provider := newTestService(t, nil)
	provider.failFor("5551234567")

	resp, err := svc.Send(context.Background(), validSendRequest())
	if err != nil {
		t.Fatalf("provider failure must not be a service error, got %v", err)
	}
	if resp.Status != notification.StatusFailed {
		t.Errorf("expected %s, got %s", notification.StatusFailed, resp.Status)
	}
	if resp.Error == "" {
		t.Error("expected provider error in response")
	}

	rec, _ := st.GetByID(context.Background(), resp.ID)
	if rec.Delivery.NextRetryAt == nil {
		t.Error("failed send should be scheduled for retry")
	}
}

func TestServiceSendRateLimited(t *testing.T) {
	limiter := &stubRateLimiter{allowed: false}
	svc, st, _ := newTestService(t, limiter)

	_, err := svc.Send(context.Background(), validSendRequest())
	var validation *common.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := storedTotal(t, st); got != 0 {
		t.Errorf("rate-limited send must not create a record, found %d", got)
	}
}

func TestServiceSendRateLimitFailsOpen(t *testing.T) {
	limiter := &stubRateLimiter{err: errors.New("redis down")}
	svc, _, _ := newTestService(t, limiter)

	resp, err := svc.Send(context.Background(), validSendRequest())
	if err != nil {
		t.Fatalf("limiter outage must not block the send: %v", err)
	}
	if resp.Status != notification.StatusSent {
		t.Errorf("expected %s, got %s", notification.StatusSent, resp.Status)
	}
}

func TestServiceSendEmergencyBypassesRateLimit(t *testing.T) {
	limiter := &stubRateLimiter{allowed: false}
	svc, _, _ := newTestService(t, limiter)

	req := validSendRequest()
	req.Category = notification.CategoryEmergencyAlert
	req.Priority = notification.PriorityUrgent

	resp, err := svc.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("emergency alert must bypass the rate limit: %v", err)
	}
	if resp.Status != notification.StatusSent {
		t.Errorf("expected %s, got %s", notification.StatusSent, resp.Status)
	}
	if limiter.calls != 0 {
		t.Error("emergency alerts must not consult the rate limiter")
	}
}

func TestServiceRetry(t *testing.T) {
	svc, st, provider := newTestService(t, nil)
	provider.failFor("5551234567")

	resp, err := svc.Send(context.Background(), validSendRequest())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	provider.recover("5551234567")
	retried, err := svc.Retry(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried.Status != notification.StatusSent {
		t.Errorf("expected %s after retry, got %s", notification.StatusSent, retried.Status)
	}
	if retried.Attempts != 2 {
		t.Errorf("expected 2 attempts after retry, got %d", retried.Attempts)
	}

	rec, _ := st.GetByID(context.Background(), resp.ID)
	if rec.Delivery.NextRetryAt != nil {
		t.Error("successful retry must clear next_retry_at")
	}
}

func TestServiceRetryNotEligible(t *testing.T) {
	svc, _, provider := newTestService(t, nil)

	t.Run("not failed", func(t *testing.T) {
		resp, err := svc.Send(context.Background(), validSendRequest())
		if err != nil {
			t.Fatal(err)
		}

		_, err = svc.Retry(context.Background(), resp.ID)
		var notRetryable *common.NotRetryableError
		if !errors.As(err, &notRetryable) {
			t.Fatalf("expected not-retryable error, got %v", err)
		}
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		provider.failFor("5551234567")
		resp, err := svc.Send(context.Background(), validSendRequest())
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < notification.DefaultMaxAttempts-1; i++ {
			if _, err := svc.Retry(context.Background(), resp.ID); err != nil {
				t.Fatalf("retry %d failed: %v", i+1, err)
			}
		}

		_, err = svc.Retry(context.Background(), resp.ID)
		var notRetryable *common.NotRetryableError
		if !errors.As(err, &notRetryable) {
			t.Fatalf("expected not-retryable error after exhaustion, got %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Retry(context.Background(), "no-such-id")
		var notFound *common.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})
}

func TestServiceListDefaults(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(context.Background(), validSendRequest()); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := svc.List(context.Background(), notification.ListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if resp.Page != 1 || resp.PageSize != 20 {
		t.Errorf("expected default paging 1/20, got %d/%d", resp.Page, resp.PageSize)
	}
	if resp.Total != 3 || len(resp.Notifications) != 3 {
		t.Errorf("expected 3 records, got total=%d len=%d", resp.Total, len(resp.Notifications))
	}
}

func TestServiceGetStats(t *testing.T) {
	svc, _, provider := newTestService(t, nil)

	if _, err := svc.Send(context.Background(), validSendRequest()); err != nil {
		t.Fatal(err)
	}
	provider.failFor("5551234567")
	if _, err := svc.Send(context.Background(), validSendRequest()); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.GetStats(context.Background(), "subj-1")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("expected 2 records, got %d", stats.Total)
	}
	if stats.ByStatus[string(notification.StatusSent)] != 1 || stats.ByStatus[string(notification.StatusFailed)] != 1 {
		t.Errorf("unexpected status breakdown: %+v", stats.ByStatus)
	}

	if _, err := svc.GetStats(context.Background(), ""); err == nil {
		t.Error("empty subject id must be rejected")
	}
}

func TestServiceHandleDeliveryEvent(t *testing.T) {
	svc, st, _ := newTestService(t, nil)

	resp, err := svc.Send(context.Background(), validSendRequest())
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := st.GetByID(context.Background(), resp.ID)
	providerID := rec.Provider.MessageID

	if err := svc.HandleDeliveryEvent(context.Background(), providerID, notification.StatusDelivered); err != nil {
		t.Fatalf("delivery event failed: %v", err)
	}
	rec, _ = st.GetByID(context.Background(), resp.ID)
	if rec.Status != notification.StatusDelivered {
		t.Errorf("expected %s, got %s", notification.StatusDelivered, rec.Status)
	}

	// A late bounce after confirmed delivery is ignored: status only moves
	// forward.
	if err := svc.HandleDeliveryEvent(context.Background(), providerID, notification.StatusBounced); err != nil {
		t.Fatalf("late bounce must not error: %v", err)
	}
	rec, _ = st.GetByID(context.Background(), resp.ID)
	if rec.Status != notification.StatusDelivered {
		t.Errorf("late bounce must not regress status, got %s", rec.Status)
	}

	var notFound *common.NotFoundError
	if err := svc.HandleDeliveryEvent(context.Background(), "unknown-provider-id", notification.StatusDelivered); !errors.As(err, &notFound) {
		t.Errorf("unknown provider id should be not-found, got %v", err)
	}
}
