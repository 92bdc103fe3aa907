package webhook

import (
	"sync"
	"time"

	"github.com/campaignforge/hookrelay/internal/logging"
	"github.com/campaignforge/hookrelay/internal/metrics"
)

// DeadLetterEnvelope is the message published to the optional DLQ topic when
// a payload is dead-lettered.
type DeadLetterEnvelope struct {
	Type     string  `json:"type"`    // "webhook.dlq"
	Version  string  `json:"version"` // schema version
	At       string  `json:"at"`      // RFC3339 time the envelope was emitted
	Reason   string  `json:"reason"`  // human/debug text
	Attempts int     `json:"attempts"`
	Payload  Payload `json:"payload"`
}

const DLQEnvelopeType = "webhook.dlq"

func NewDeadLetterEnvelope(p Payload, attempts int, reason string) DeadLetterEnvelope {
	return DeadLetterEnvelope{
		Type:     DLQEnvelopeType,
		Version:  "v1",
		At:       time.Now().Format(time.RFC3339Nano),
		Reason:   reason,
		Attempts: attempts,
		Payload:  p,
	}
}

// DeadLetterStore holds payloads whose delivery terminally failed, awaiting
// manual replay. Unlike the history log it rejects new entries when full
// rather than evicting old ones: operators drain it explicitly.
type DeadLetterStore struct {
	mu      sync.Mutex
	max     int
	entries []Payload
	log     *logging.Logger
}

const defaultMaxDLQSize = 1000

func NewDeadLetterStore(max int, log *logging.Logger) *DeadLetterStore {
	if max <= 0 {
		max = defaultMaxDLQSize
	}
	if log == nil {
		log = logging.New("hookrelay-dlq")
	}
	return &DeadLetterStore{max: max, log: log}
}

// Add stores the payload. A payload already present (another subscription
// failed first) is not duplicated. Returns false when the store is full and
// the payload was dropped.
func (d *DeadLetterStore) Add(p Payload) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.ID == p.ID {
			return true
		}
	}
	if len(d.entries) >= d.max {
		// Logged-and-dropped: acceptable degradation, not a hard error.
		d.log.Plain().WithPayload(p.ID).WithEventType(p.Event).
			WithField("capacity", d.max).Warn("dead-letter store full, payload dropped")
		metrics.DLQRejectedTotal.Inc()
		return false
	}
	d.entries = append(d.entries, p)
	metrics.DLQTotal.Inc()
	return true
}

// Remove takes the payload out of the store, returning it and whether it was
// found.
func (d *DeadLetterStore) Remove(payloadID string) (Payload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.ID == payloadID {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return e, true
		}
	}
	return Payload{}, false
}

// List returns up to limit entries, oldest first.
func (d *DeadLetterStore) List(limit int) []Payload {
	if limit <= 0 {
		limit = 50
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.entries)
	if n > limit {
		n = limit
	}
	return append([]Payload(nil), d.entries[:n]...)
}

// Len returns the current number of entries.
func (d *DeadLetterStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
