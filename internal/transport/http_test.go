package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSend(t *testing.T) {
	var gotBody string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Webhook-ID")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	sender := NewHTTPSender(nil)
	resp, err := sender.Send(context.Background(), Request{
		URL:     srv.URL,
		Body:    []byte(`{"id":"p1"}`),
		Headers: map[string]string{"X-Webhook-ID": "sub-1"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != "accepted" {
		t.Errorf("Body = %q, want %q", resp.Body, "accepted")
	}
	if gotBody != `{"id":"p1"}` {
		t.Errorf("server saw body %q", gotBody)
	}
	if gotHeader != "sub-1" {
		t.Errorf("server saw X-Webhook-ID %q", gotHeader)
	}
}

func TestSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewHTTPSender(nil)
	_, err := sender.Send(context.Background(), Request{
		URL:     srv.URL,
		Timeout: 20 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Send() should time out")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "deadline") &&
		!strings.Contains(strings.ToLower(err.Error()), "timeout") {
		t.Errorf("error %q does not look like a timeout", err)
	}
}

func TestSendConnectionRefused(t *testing.T) {
	sender := NewHTTPSender(nil)
	// Reserved port with no listener.
	_, err := sender.Send(context.Background(), Request{
		URL:     "http://127.0.0.1:1/hook",
		Timeout: time.Second,
	})
	if err == nil {
		t.Fatal("Send() should fail against a closed port")
	}
}

func TestSendTruncatesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64<<10))
	}))
	defer srv.Close()

	sender := NewHTTPSender(nil)
	resp, err := sender.Send(context.Background(), Request{URL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(resp.Body) > maxResponseBody {
		t.Errorf("response body not truncated: %d bytes", len(resp.Body))
	}
}
