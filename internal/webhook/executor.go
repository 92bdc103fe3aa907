package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/campaignforge/hookrelay/internal/logging"
	"github.com/campaignforge/hookrelay/internal/metrics"
	"github.com/campaignforge/hookrelay/internal/signature"
	"github.com/campaignforge/hookrelay/internal/tracing"
	"github.com/campaignforge/hookrelay/internal/transport"
)

// Delivery request headers. Receivers verify the signature over the exact raw
// body bytes using the subscription secret.
const (
	HeaderWebhookID = "X-Webhook-ID"
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// Transport is the injected capability that performs one outbound POST.
type Transport interface {
	Send(ctx context.Context, req transport.Request) (transport.Response, error)
}

// DeadLetterPublisher optionally mirrors dead-lettered payloads to an
// external topic.
type DeadLetterPublisher interface {
	Publish(env DeadLetterEnvelope) error
}

// TestResult is the synchronous outcome of a test delivery.
type TestResult struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// Executor performs single delivery attempts, classifies outcomes, and
// schedules retries per subscription policy. Retry timers are fire-and-forget
// and run against the subscription snapshot captured when they were
// scheduled; unregistering a subscription does not cancel them.
type Executor struct {
	transport   Transport
	history     *HistoryLog
	dlq         *DeadLetterStore
	dlqPub      DeadLetterPublisher
	log         *logging.Logger
	timeout     time.Duration
	testTimeout time.Duration
}

// ExecutorOptions configures an Executor. Transport, History, and DeadLetters
// are required.
type ExecutorOptions struct {
	Transport           Transport
	History             *HistoryLog
	DeadLetters         *DeadLetterStore
	DeadLetterPublisher DeadLetterPublisher
	Logger              *logging.Logger
	Timeout             time.Duration
	TestTimeout         time.Duration
}

func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TestTimeout <= 0 {
		opts.TestTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("hookrelay-executor")
	}
	return &Executor{
		transport:   opts.Transport,
		history:     opts.History,
		dlq:         opts.DeadLetters,
		dlqPub:      opts.DeadLetterPublisher,
		log:         opts.Logger,
		timeout:     opts.Timeout,
		testTimeout: opts.TestTimeout,
	}
}

// Deliver performs the attempt-numbered delivery of payload to sub. Every
// attempt appends a history record. Retryable failures under the retry budget
// schedule a delayed re-invocation and return immediately; terminal failures
// dead-letter the payload.
func (e *Executor) Deliver(ctx context.Context, sub Subscription, p Payload, attempt int) {
	ctx, span := tracing.StartSpan(ctx, "webhook.deliver",
		attribute.String("subscription_id", sub.ID),
		attribute.String("payload_id", p.ID),
		attribute.String("event_type", p.Event),
		attribute.Int("attempt", attempt),
	)
	defer span.End()

	status, latency, err := e.attempt(ctx, sub, p, e.timeout)

	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	if err == nil && status >= 200 && status < 300 {
		e.history.Append(DeliveryRecord{
			SubscriptionID: sub.ID,
			EventType:      p.Event,
			Status:         DeliverySuccess,
			HTTPStatus:     status,
			ResponseTimeMS: latency.Milliseconds(),
			RetriesSoFar:   attempt - 1,
			Timestamp:      time.Now().UTC(),
		})
		metrics.RecordDelivery("success", latency)
		e.log.WithContext(ctx).WithSubscription(sub.ID).WithPayload(p.ID).
			WithField("attempt", attempt).Info("delivery succeeded")
		return
	}

	failure := errString(err)
	if failure == "" {
		failure = fmt.Sprintf("unexpected status %d", status)
	}
	e.history.Append(DeliveryRecord{
		SubscriptionID: sub.ID,
		EventType:      p.Event,
		Status:         DeliveryFailed,
		HTTPStatus:     status,
		ResponseTimeMS: latency.Milliseconds(),
		RetriesSoFar:   attempt - 1,
		Error:          failure,
		Timestamp:      time.Now().UTC(),
	})
	metrics.RecordDelivery("failed", latency)
	tracing.SetSpanError(ctx, err)

	reason := failureReason(err, status)
	if retryable(err, status) && attempt < sub.RetryPolicy.MaxRetries {
		delay := sub.RetryPolicy.Delay(attempt)
		metrics.RetriesTotal.WithLabelValues(reason).Inc()
		metrics.PendingRetries.Inc()
		e.log.WithContext(ctx).WithSubscription(sub.ID).WithPayload(p.ID).WithFields(map[string]any{
			"attempt": attempt,
			"delay":   delay.String(),
			"reason":  reason,
		}).Info("retry scheduled")

		// The timer captures the subscription snapshot at schedule time;
		// later updates or removal do not affect this retry chain.
		retryCtx := context.WithoutCancel(ctx)
		time.AfterFunc(delay, func() {
			metrics.PendingRetries.Dec()
			e.Deliver(retryCtx, sub, p, attempt+1)
		})
		return
	}

	// Terminal: record already appended, now dead-letter the payload.
	e.log.WithContext(ctx).WithSubscription(sub.ID).WithPayload(p.ID).WithFields(map[string]any{
		"attempt": attempt,
		"reason":  reason,
		"error":   failure,
	}).Error("delivery dead-lettered")
	e.dlq.Add(p)
	if e.dlqPub != nil {
		env := NewDeadLetterEnvelope(p, attempt, fmt.Sprintf("delivery failed (%s), last status=%d", reason, status))
		if err := e.dlqPub.Publish(env); err != nil {
			e.log.WithContext(ctx).WithPayload(p.ID).WithError(err).Error("dlq publish failed")
		}
	}
}

// Test performs exactly one delivery attempt of the reserved webhook.test
// event with the shorter test timeout. The outcome is recorded to the history
// log; it is never retried or dead-lettered.
func (e *Executor) Test(ctx context.Context, sub Subscription) TestResult {
	p := NewPayload(Event{
		WorkflowID: sub.WorkflowID,
		Type:       EventTypeTest,
		Data: map[string]any{
			"message":         "test delivery",
			"subscription_id": sub.ID,
		},
	})

	status, latency, err := e.attempt(ctx, sub, p, e.testTimeout)
	ok := err == nil && status >= 200 && status < 300

	rec := DeliveryRecord{
		SubscriptionID: sub.ID,
		EventType:      EventTypeTest,
		Status:         DeliveryFailed,
		HTTPStatus:     status,
		ResponseTimeMS: latency.Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	if ok {
		rec.Status = DeliverySuccess
	} else {
		rec.Error = errString(err)
		if rec.Error == "" {
			rec.Error = fmt.Sprintf("unexpected status %d", status)
		}
	}
	e.history.Append(rec)

	return TestResult{
		Success:        ok,
		StatusCode:     status,
		ResponseTimeMS: latency.Milliseconds(),
		Error:          rec.Error,
	}
}

// attempt signs the payload and performs one POST, returning the HTTP status
// (0 on transport error) and latency.
func (e *Executor) attempt(ctx context.Context, sub Subscription, p Payload, timeout time.Duration) (int, time.Duration, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal payload: %w", err)
	}

	headers := make(map[string]string, len(sub.CustomHeaders)+4)
	for k, v := range sub.CustomHeaders {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers[HeaderWebhookID] = sub.ID
	headers[HeaderSignature] = signature.Sign(body, sub.Secret)
	headers[HeaderTimestamp] = p.Timestamp.Format(time.RFC3339)

	start := time.Now()
	resp, err := e.transport.Send(ctx, transport.Request{
		URL:     sub.TargetURL,
		Body:    body,
		Headers: headers,
		Timeout: timeout,
	})
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	return resp.StatusCode, latency, nil
}

// retryable reports whether the failure may succeed on a later attempt:
// HTTP 5xx, timeouts, and refused connections.
func retryable(err error, status int) bool {
	if err != nil {
		return transientError(err)
	}
	return status >= 500
}

func transientError(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") || strings.Contains(s, "connection refused")
}

// failureReason classifies a failure for metrics and logs.
func failureReason(err error, status int) string {
	if err != nil {
		s := strings.ToLower(err.Error())
		switch {
		case errors.Is(err, context.DeadlineExceeded) || strings.Contains(s, "timeout"):
			return "timeout"
		case errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(s, "connection refused"):
			return "connection_refused"
		default:
			return "network"
		}
	}
	switch {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	default:
		return "other"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
