// Package webhook implements the reliable webhook dispatch subsystem:
// subscription management, signed delivery with retries and backoff,
// dead-lettering, and delivery observability.
package webhook

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Event types producers may dispatch. EventTypeTest is reserved for the
// test-delivery path and cannot be subscribed to.
const (
	EventTypeWorkflowStarted   = "workflow.started"
	EventTypeWorkflowCompleted = "workflow.completed"
	EventTypeWorkflowFailed    = "workflow.failed"
	EventTypeContentGenerated  = "content.generated"
	EventTypeContentPublished  = "content.published"
	EventTypeCostUpdated       = "cost.updated"
	EventTypeError             = "error.occurred"

	EventTypeTest = "webhook.test"
)

// KnownEventTypes lists the subscribable event vocabulary.
var KnownEventTypes = []string{
	EventTypeWorkflowStarted,
	EventTypeWorkflowCompleted,
	EventTypeWorkflowFailed,
	EventTypeContentGenerated,
	EventTypeContentPublished,
	EventTypeCostUpdated,
	EventTypeError,
}

// KnownEventType reports whether t is part of the subscribable vocabulary.
func KnownEventType(t string) bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Retry delays grow without an upper bound in the policy formula; this guard
// keeps a misconfigured multiplier from scheduling a timer years out.
const maxRetryDelay = 24 * time.Hour

// RetryPolicy controls per-subscription retry scheduling.
type RetryPolicy struct {
	MaxRetries        int     `json:"max_retries"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	InitialDelayMS    int     `json:"initial_delay_ms"`
}

// DefaultRetryPolicy is applied when registration omits policy fields.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, BackoffMultiplier: 2, InitialDelayMS: 1000}
}

// Delay returns the pause before re-attempting after the given 1-based
// attempt: initialDelay * multiplier^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(p.InitialDelayMS) * time.Millisecond
	bo.Multiplier = p.BackoffMultiplier
	bo.RandomizationFactor = 0
	bo.MaxInterval = maxRetryDelay

	d := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = bo.NextBackOff()
	}
	return d
}

// normalize fills zero fields with defaults and clamps invalid values.
func (p RetryPolicy) normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 1 {
		p.MaxRetries = def.MaxRetries
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = def.BackoffMultiplier
	}
	if p.InitialDelayMS < 0 {
		p.InitialDelayMS = def.InitialDelayMS
	}
	return p
}

// Subscription is a registered webhook consumer. The secret is issued once at
// registration and never serialized afterwards.
type Subscription struct {
	ID            string            `json:"id"`
	WorkflowID    string            `json:"workflow_id"`
	TargetURL     string            `json:"target_url"`
	EventTypes    []string          `json:"event_types"`
	Active        bool              `json:"active"`
	Secret        string            `json:"-"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
	RetryPolicy   RetryPolicy       `json:"retry_policy"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Matches reports whether the subscription wants the given event type.
func (s Subscription) Matches(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers can't mutate registry state through
// shared slices or maps.
func (s Subscription) clone() Subscription {
	c := s
	c.EventTypes = append([]string(nil), s.EventTypes...)
	if s.CustomHeaders != nil {
		c.CustomHeaders = make(map[string]string, len(s.CustomHeaders))
		for k, v := range s.CustomHeaders {
			c.CustomHeaders[k] = v
		}
	}
	return c
}

// Event is the producer-facing input to Dispatch.
type Event struct {
	WorkflowID string         `json:"workflow_id"`
	Type       string         `json:"type"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Payload is the wire body POSTed to subscribers. One Payload is shared by
// every delivery of a single dispatch; its ID is stable across attempts and
// subscriptions and is the unit tracked by the dead-letter store.
type Payload struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewPayload builds the shared payload for one dispatch of evt.
func NewPayload(evt Event) Payload {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Payload{
		ID:        uuid.NewString(),
		Event:     evt.Type,
		Timestamp: ts,
		Data:      evt.Data,
	}
}

// DeliveryStatus is the terminal classification of a single attempt.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryRecord is appended to the history log after every attempt.
// RetriesSoFar counts attempts made before this one (0 for the first).
type DeliveryRecord struct {
	SubscriptionID string         `json:"subscription_id"`
	EventType      string         `json:"event_type"`
	Status         DeliveryStatus `json:"status"`
	HTTPStatus     int            `json:"http_status,omitempty"`
	ResponseTimeMS int64          `json:"response_time_ms"`
	RetriesSoFar   int            `json:"retries_so_far"`
	Error          string         `json:"error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
