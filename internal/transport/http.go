// Package transport performs the outbound HTTP POST for webhook deliveries.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Request describes a single outbound delivery attempt.
type Request struct {
	URL     string
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

// Response carries the subscriber's reply. Body is truncated to a small cap;
// it is only kept for diagnostics.
type Response struct {
	StatusCode int
	Body       []byte
}

const maxResponseBody = 4 << 10

// HTTPSender sends webhook requests over a shared http.Client. The per-request
// timeout comes from the Request, not the client.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender returns a sender backed by the given client, or a default
// client when nil.
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSender{client: client}
}

// Send POSTs the request body and returns the subscriber's status and
// (truncated) body. Transport-level failures are returned as errors; any HTTP
// status is a successful send from the transport's point of view.
func (s *HTTPSender) Send(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}
