package webhook

import "sync"

// HistoryLog is the bounded, append-only record of delivery outcomes. Once
// the log exceeds its capacity the oldest entries are truncated from the
// front.
type HistoryLog struct {
	mu      sync.Mutex
	max     int
	records []DeliveryRecord
}

const defaultMaxHistorySize = 10000

func NewHistoryLog(max int) *HistoryLog {
	if max <= 0 {
		max = defaultMaxHistorySize
	}
	return &HistoryLog{max: max}
}

// Append records one delivery attempt, evicting from the front if needed.
func (h *HistoryLog) Append(rec DeliveryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if over := len(h.records) - h.max; over > 0 {
		h.records = append(h.records[:0:0], h.records[over:]...)
	}
}

// Recent returns the most recent limit records in chronological order,
// optionally filtered by subscription id (empty matches all).
func (h *HistoryLog) Recent(subscriptionID string, limit int) []DeliveryRecord {
	if limit <= 0 {
		limit = 100
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var filtered []DeliveryRecord
	if subscriptionID == "" {
		filtered = h.records
	} else {
		for _, rec := range h.records {
			if rec.SubscriptionID == subscriptionID {
				filtered = append(filtered, rec)
			}
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return append([]DeliveryRecord(nil), filtered...)
}

// Snapshot returns a copy of the full log.
func (h *HistoryLog) Snapshot() []DeliveryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DeliveryRecord(nil), h.records...)
}

// Len returns the current number of records.
func (h *HistoryLog) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
