package webhook

import "context"

// Statistics is a point-in-time aggregate over the history log and
// dead-letter store. Rates are percentages and sum to 100 when TotalEvents
// is non-zero.
type Statistics struct {
	TotalSubscriptions    int     `json:"total_subscriptions"`
	ActiveSubscriptions   int     `json:"active_subscriptions"`
	TotalEvents           int     `json:"total_events"`
	SuccessRate           float64 `json:"success_rate"`
	FailureRate           float64 `json:"failure_rate"`
	AverageResponseTimeMS float64 `json:"average_response_time_ms"`
	DeadLetterCount       int     `json:"dead_letter_count"`
}

// StatsAggregator computes delivery statistics. It only reads; it never
// mutates delivery state.
type StatsAggregator struct {
	registry *Registry
	history  *HistoryLog
	dlq      *DeadLetterStore
}

func NewStatsAggregator(registry *Registry, history *HistoryLog, dlq *DeadLetterStore) *StatsAggregator {
	return &StatsAggregator{registry: registry, history: history, dlq: dlq}
}

// Collect snapshots the current statistics.
func (s *StatsAggregator) Collect(ctx context.Context) (Statistics, error) {
	total, active, err := s.registry.Counts(ctx)
	if err != nil {
		return Statistics{}, err
	}

	records := s.history.Snapshot()
	var successes int
	var latencySum int64
	for _, rec := range records {
		if rec.Status == DeliverySuccess {
			successes++
		}
		latencySum += rec.ResponseTimeMS
	}

	stats := Statistics{
		TotalSubscriptions:  total,
		ActiveSubscriptions: active,
		TotalEvents:         len(records),
		DeadLetterCount:     s.dlq.Len(),
	}
	if n := len(records); n > 0 {
		stats.SuccessRate = float64(successes*100) / float64(n)
		stats.FailureRate = float64((n-successes)*100) / float64(n)
		stats.AverageResponseTimeMS = float64(latencySum) / float64(n)
	}
	return stats, nil
}
