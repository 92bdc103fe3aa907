package api

import (
	"time"

	"github.com/campaignforge/hookrelay/internal/webhook"
)

// ErrorResponse is the JSON error body for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RegisterSubscriptionRequest creates a subscription.
type RegisterSubscriptionRequest struct {
	WorkflowID    string               `json:"workflow_id"`
	TargetURL     string               `json:"target_url" binding:"required"`
	EventTypes    []string             `json:"event_types" binding:"required"`
	CustomHeaders map[string]string    `json:"custom_headers,omitempty"`
	RetryPolicy   *webhook.RetryPolicy `json:"retry_policy,omitempty"`
}

// RegisterSubscriptionResponse carries the new subscription plus the signing
// secret. The secret appears here and nowhere else.
type RegisterSubscriptionResponse struct {
	Subscription webhook.Subscription `json:"subscription"`
	Secret       string               `json:"secret"`
}

// UpdateSubscriptionRequest is a partial update; omitted fields are left
// unchanged. The secret cannot be changed.
type UpdateSubscriptionRequest struct {
	TargetURL     *string              `json:"target_url,omitempty"`
	EventTypes    []string             `json:"event_types,omitempty"`
	Active        *bool                `json:"active,omitempty"`
	CustomHeaders map[string]string    `json:"custom_headers,omitempty"`
	RetryPolicy   *webhook.RetryPolicy `json:"retry_policy,omitempty"`
}

// DispatchEventRequest publishes an event into the dispatch pipeline.
type DispatchEventRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Type       string         `json:"type" binding:"required"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
}

// DispatchEventResponse reports the dispatch fan-out.
type DispatchEventResponse struct {
	PayloadID string `json:"payload_id,omitempty"`
	Matched   int    `json:"matched_subscriptions"`
}

// HistoryResponse wraps delivery records, most recent last.
type HistoryResponse struct {
	Records []webhook.DeliveryRecord `json:"records"`
}

// DeadLettersResponse wraps dead-lettered payloads, oldest first.
type DeadLettersResponse struct {
	Payloads []webhook.Payload `json:"payloads"`
}

// RetryDeadLetterResponse reports a replay request outcome. Replayed means
// the payload was found and removed; the delivery itself is asynchronous.
type RetryDeadLetterResponse struct {
	Replayed bool `json:"replayed"`
}
