package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/campaignforge/hookrelay/internal/transport"
)

type hookRecorder struct {
	mu       sync.Mutex
	payloads []Payload
	ids      []string // X-Webhook-ID per request
}

func (h *hookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p Payload
		_ = json.Unmarshal(body, &p)
		h.mu.Lock()
		h.payloads = append(h.payloads, p)
		h.ids = append(h.ids, r.Header.Get(HeaderWebhookID))
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func newTestDispatcher(t *testing.T, maxWorkers int) (*Dispatcher, *Registry, *HistoryLog) {
	t.Helper()
	history := NewHistoryLog(1000)
	dlq := NewDeadLetterStore(100, nil)
	registry := NewRegistry(NewMemoryStore(), DefaultRetryPolicy(), nil)
	exec := NewExecutor(ExecutorOptions{
		Transport:   transport.NewHTTPSender(nil),
		History:     history,
		DeadLetters: dlq,
		Timeout:     2 * time.Second,
	})
	d := NewDispatcher(DispatcherOptions{
		Registry:   registry,
		Executor:   exec,
		MaxWorkers: maxWorkers,
	})
	return d, registry, history
}

func TestDispatchFansOutToMatchingSubscriptions(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	d, registry, _ := newTestDispatcher(t, 0)
	ctx := context.Background()

	a, _, _ := registry.Register(ctx, "wf-1", SubscriptionConfig{
		TargetURL:  srv.URL,
		EventTypes: []string{EventTypeContentPublished},
	})
	b, _, _ := registry.Register(ctx, "wf-2", SubscriptionConfig{
		TargetURL:  srv.URL,
		EventTypes: []string{EventTypeContentPublished, EventTypeCostUpdated},
	})
	_, _, _ = registry.Register(ctx, "wf-3", SubscriptionConfig{
		TargetURL:  srv.URL,
		EventTypes: []string{EventTypeWorkflowFailed},
	})

	payloadID, matched := d.Dispatch(ctx, Event{
		WorkflowID: "wf-1",
		Type:       EventTypeContentPublished,
		Data:       map[string]any{"post": 42},
	})
	if matched != 2 {
		t.Fatalf("matched = %d, want 2", matched)
	}
	if payloadID == "" {
		t.Fatal("payload id should be returned")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.payloads) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(rec.payloads))
	}
	// One shared payload across subscriptions.
	for _, p := range rec.payloads {
		if p.ID != payloadID {
			t.Errorf("payload id %s differs from dispatch id %s", p.ID, payloadID)
		}
	}
	seen := map[string]bool{}
	for _, id := range rec.ids {
		seen[id] = true
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Errorf("delivered to %v, want both %s and %s", rec.ids, a.ID, b.ID)
	}
}

func TestDispatchNoSubscribersIsNotAnError(t *testing.T) {
	d, _, history := newTestDispatcher(t, 0)
	payloadID, matched := d.Dispatch(context.Background(), Event{Type: EventTypeCostUpdated})
	if matched != 0 || payloadID != "" {
		t.Errorf("Dispatch() = (%q, %d), want empty", payloadID, matched)
	}
	if history.Len() != 0 {
		t.Error("no deliveries should be recorded")
	}
}

func TestDispatchIsolatesFailingSubscribers(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	d, registry, history := newTestDispatcher(t, 0)
	ctx := context.Background()

	// One subscriber with an unreachable endpoint and a 1-attempt budget,
	// one healthy.
	bad, _, _ := registry.Register(ctx, "wf-1", SubscriptionConfig{
		TargetURL:   "http://127.0.0.1:1/hook",
		EventTypes:  []string{EventTypeContentPublished},
		RetryPolicy: &RetryPolicy{MaxRetries: 1, BackoffMultiplier: 2, InitialDelayMS: 10},
	})
	good, _, _ := registry.Register(ctx, "wf-2", SubscriptionConfig{
		TargetURL:  srv.URL,
		EventTypes: []string{EventTypeContentPublished},
	})

	_, matched := d.Dispatch(ctx, Event{Type: EventTypeContentPublished})
	if matched != 2 {
		t.Fatalf("matched = %d, want 2", matched)
	}

	goodRecs := history.Recent(good.ID, 10)
	if len(goodRecs) != 1 || goodRecs[0].Status != DeliverySuccess {
		t.Errorf("healthy subscriber records = %+v", goodRecs)
	}
	badRecs := history.Recent(bad.ID, 10)
	if len(badRecs) != 1 || badRecs[0].Status != DeliveryFailed {
		t.Errorf("failing subscriber records = %+v", badRecs)
	}
}

func TestDispatchReturnsAfterFirstAttempts(t *testing.T) {
	// Endpoint always 500s; retry delay is long. Dispatch must return after
	// the first attempt without waiting for the retry.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flaky", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, registry, history := newTestDispatcher(t, 0)
	ctx := context.Background()
	_, _, _ = registry.Register(ctx, "wf-1", SubscriptionConfig{
		TargetURL:   srv.URL,
		EventTypes:  []string{EventTypeContentPublished},
		RetryPolicy: &RetryPolicy{MaxRetries: 3, BackoffMultiplier: 2, InitialDelayMS: 2000},
	})

	start := time.Now()
	d.Dispatch(ctx, Event{Type: EventTypeContentPublished})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Dispatch blocked %v; must not wait for scheduled retries", elapsed)
	}
	if history.Len() != 1 {
		t.Errorf("history = %d, want 1 (first attempt only)", history.Len())
	}
}

func TestDispatchBoundedWorkers(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, registry, _ := newTestDispatcher(t, 2)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, _, _ = registry.Register(ctx, "wf-1", SubscriptionConfig{
			TargetURL:  srv.URL,
			EventTypes: []string{EventTypeContentPublished},
		})
	}

	_, matched := d.Dispatch(ctx, Event{Type: EventTypeContentPublished})
	if matched != 6 {
		t.Fatalf("matched = %d, want 6", matched)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}
