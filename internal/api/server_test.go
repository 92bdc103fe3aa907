package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campaignforge/hookrelay/internal/transport"
	"github.com/campaignforge/hookrelay/internal/webhook"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	svc := webhook.NewService(webhook.ServiceOptions{
		Store:              webhook.NewMemoryStore(),
		Transport:          transport.NewHTTPSender(nil),
		DefaultRetryPolicy: webhook.DefaultRetryPolicy(),
		DeliveryTimeout:    2 * time.Second,
		TestTimeout:        2 * time.Second,
	})
	srv := NewServer(Options{
		Service: svc,
		Addr:    ":0",
		HealthHandler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
	return srv, receiver
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func registerSub(t *testing.T, srv *Server, targetURL string) RegisterSubscriptionResponse {
	t.Helper()
	w := doJSON(t, srv, "POST", "/v1/subscriptions", RegisterSubscriptionRequest{
		WorkflowID: "wf-1",
		TargetURL:  targetURL,
		EventTypes: []string{webhook.EventTypeContentPublished},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp RegisterSubscriptionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp
}

func TestRegisterSubscription(t *testing.T) {
	srv, receiver := newTestServer(t)

	resp := registerSub(t, srv, receiver.URL)
	if resp.Secret == "" {
		t.Error("secret must be returned at registration")
	}
	if !resp.Subscription.Active {
		t.Error("new subscription should be active")
	}
	if resp.Subscription.RetryPolicy.MaxRetries != 5 {
		t.Errorf("default policy = %+v", resp.Subscription.RetryPolicy)
	}

	// The secret never appears on reads.
	w := doJSON(t, srv, "GET", "/v1/subscriptions/"+resp.Subscription.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), resp.Secret) {
		t.Error("secret leaked through GET")
	}
}

func TestRegisterSubscriptionValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{
			name:       "malformed json",
			body:       nil, // empty body fails binding
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown event type",
			body: RegisterSubscriptionRequest{
				TargetURL:  "https://example.com/hook",
				EventTypes: []string{"made.up"},
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "invalid target url",
			body: RegisterSubscriptionRequest{
				TargetURL:  "not a url",
				EventTypes: []string{webhook.EventTypeContentPublished},
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, srv, "POST", "/v1/subscriptions", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv, "GET", "/v1/subscriptions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateSubscription(t *testing.T) {
	srv, receiver := newTestServer(t)
	created := registerSub(t, srv, receiver.URL)

	inactive := false
	w := doJSON(t, srv, "PATCH", "/v1/subscriptions/"+created.Subscription.ID, UpdateSubscriptionRequest{
		Active: &inactive,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}
	var sub webhook.Subscription
	if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.Active {
		t.Error("subscription should be inactive after update")
	}

	w = doJSON(t, srv, "PATCH", "/v1/subscriptions/nope", UpdateSubscriptionRequest{Active: &inactive})
	if w.Code != http.StatusNotFound {
		t.Errorf("patch unknown id status = %d, want 404", w.Code)
	}
}

func TestDeleteSubscription(t *testing.T) {
	srv, receiver := newTestServer(t)
	created := registerSub(t, srv, receiver.URL)

	w := doJSON(t, srv, "DELETE", "/v1/subscriptions/"+created.Subscription.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, srv, "DELETE", "/v1/subscriptions/"+created.Subscription.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestTestSubscriptionEndpoint(t *testing.T) {
	srv, receiver := newTestServer(t)
	created := registerSub(t, srv, receiver.URL)

	w := doJSON(t, srv, "POST", "/v1/subscriptions/"+created.Subscription.ID+"/test", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("test status = %d, body = %s", w.Code, w.Body.String())
	}
	var res webhook.TestResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.StatusCode != 200 {
		t.Errorf("TestResult = %+v", res)
	}

	w = doJSON(t, srv, "POST", "/v1/subscriptions/nope/test", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("test unknown id status = %d, want 404", w.Code)
	}
}

func TestDispatchEvent(t *testing.T) {
	srv, receiver := newTestServer(t)
	registerSub(t, srv, receiver.URL)

	w := doJSON(t, srv, "POST", "/v1/events", DispatchEventRequest{
		WorkflowID: "wf-1",
		Type:       webhook.EventTypeContentPublished,
		Data:       map[string]any{"post": 1},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("dispatch status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp DispatchEventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Matched != 1 || resp.PayloadID == "" {
		t.Errorf("response = %+v", resp)
	}

	// No subscribers is not an error.
	w = doJSON(t, srv, "POST", "/v1/events", DispatchEventRequest{Type: webhook.EventTypeCostUpdated})
	if w.Code != http.StatusAccepted {
		t.Errorf("no-subscriber dispatch status = %d", w.Code)
	}

	w = doJSON(t, srv, "POST", "/v1/events", DispatchEventRequest{Type: "made.up"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown type status = %d, want 422", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, receiver := newTestServer(t)
	created := registerSub(t, srv, receiver.URL)

	doJSON(t, srv, "POST", "/v1/events", DispatchEventRequest{
		Type: webhook.EventTypeContentPublished,
	})

	w := doJSON(t, srv, "GET", "/v1/history?subscription_id="+created.Subscription.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var resp HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].Status != webhook.DeliverySuccess {
		t.Errorf("records = %+v", resp.Records)
	}
}

func TestDeadLetterEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, "GET", "/v1/dlq", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dlq list status = %d", w.Code)
	}
	var resp DeadLettersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Payloads) != 0 {
		t.Errorf("payloads = %+v", resp.Payloads)
	}

	w = doJSON(t, srv, "POST", "/v1/dlq/nope/retry", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("retry unknown payload status = %d, want 404", w.Code)
	}
}

func TestStatsAndHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, "GET", "/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var stats webhook.Statistics
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalEvents != 0 {
		t.Errorf("stats = %+v", stats)
	}

	w = doJSON(t, srv, "GET", "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
}
