package webhook

import (
	"context"
	"time"

	"github.com/campaignforge/hookrelay/internal/logging"
)

// Service is the management facade over the dispatch subsystem, wired once at
// startup and shared by the REST API, the CLI-facing surface, and the event
// intake bridge.
type Service struct {
	registry   *Registry
	dispatcher *Dispatcher
	executor   *Executor
	history    *HistoryLog
	dlq        *DeadLetterStore
	stats      *StatsAggregator
	log        *logging.Logger
}

// ServiceOptions wires the service. Store and Transport are required;
// everything else has working defaults.
type ServiceOptions struct {
	Store               SubscriptionStore
	Transport           Transport
	DeadLetterPublisher DeadLetterPublisher
	Logger              *logging.Logger
	DefaultRetryPolicy  RetryPolicy
	MaxHistorySize      int
	MaxDLQSize          int
	MaxWorkers          int
	RatePerSec          float64
	DeliveryTimeout     time.Duration
	TestTimeout         time.Duration
}

func NewService(opts ServiceOptions) *Service {
	log := opts.Logger
	if log == nil {
		log = logging.New("hookrelay")
	}
	history := NewHistoryLog(opts.MaxHistorySize)
	dlq := NewDeadLetterStore(opts.MaxDLQSize, log)
	registry := NewRegistry(opts.Store, opts.DefaultRetryPolicy, log)
	executor := NewExecutor(ExecutorOptions{
		Transport:           opts.Transport,
		History:             history,
		DeadLetters:         dlq,
		DeadLetterPublisher: opts.DeadLetterPublisher,
		Logger:              log,
		Timeout:             opts.DeliveryTimeout,
		TestTimeout:         opts.TestTimeout,
	})
	dispatcher := NewDispatcher(DispatcherOptions{
		Registry:   registry,
		Executor:   executor,
		Logger:     log,
		MaxWorkers: opts.MaxWorkers,
		RatePerSec: opts.RatePerSec,
	})
	return &Service{
		registry:   registry,
		dispatcher: dispatcher,
		executor:   executor,
		history:    history,
		dlq:        dlq,
		stats:      NewStatsAggregator(registry, history, dlq),
		log:        log,
	}
}

// Register creates a subscription and returns it with the one-time secret.
func (s *Service) Register(ctx context.Context, workflowID string, cfg SubscriptionConfig) (Subscription, string, error) {
	return s.registry.Register(ctx, workflowID, cfg)
}

// Unregister removes a subscription; returns whether it existed.
func (s *Service) Unregister(ctx context.Context, id string) (bool, error) {
	return s.registry.Unregister(ctx, id)
}

// Update applies a partial update; returns false when the id is unknown.
func (s *Service) Update(ctx context.Context, id string, upd SubscriptionUpdate) (bool, error) {
	return s.registry.Update(ctx, id, upd)
}

// Get returns a subscription by id.
func (s *Service) Get(ctx context.Context, id string) (Subscription, bool, error) {
	return s.registry.Get(ctx, id)
}

// Dispatch fans evt out to matching subscriptions, returning once every
// first attempt has completed. Failures never propagate to the caller.
func (s *Service) Dispatch(ctx context.Context, evt Event) (string, int) {
	return s.dispatcher.Dispatch(ctx, evt)
}

// TestDelivery performs one immediate delivery of the reserved test event to
// the subscription. Returns ok=false when the id is unknown.
func (s *Service) TestDelivery(ctx context.Context, id string) (TestResult, bool, error) {
	sub, ok, err := s.registry.Get(ctx, id)
	if err != nil || !ok {
		return TestResult{}, false, err
	}
	return s.executor.Test(ctx, sub), true, nil
}

// History returns the most recent delivery records, optionally filtered by
// subscription id.
func (s *Service) History(subscriptionID string, limit int) []DeliveryRecord {
	return s.history.Recent(subscriptionID, limit)
}

// DeadLetters returns up to limit dead-lettered payloads, oldest first.
func (s *Service) DeadLetters(limit int) []Payload {
	return s.dlq.List(limit)
}

// RetryDeadLetter removes the payload from the dead-letter store and re-fires
// delivery (attempt 1) to every currently active subscription declaring the
// payload's event type, resolved fresh now rather than the original failing set.
// Removal is unconditional: the result is true whenever the payload was
// found, independent of the replay outcome. The replay itself is
// fire-and-forget; if it terminally fails again it re-enters the store
// through the normal dead-letter path.
func (s *Service) RetryDeadLetter(ctx context.Context, payloadID string) (bool, error) {
	p, found := s.dlq.Remove(payloadID)
	if !found {
		return false, nil
	}

	matching, err := s.registry.ListMatching(ctx, p.Event)
	if err != nil {
		return true, err
	}
	if len(matching) == 0 {
		s.log.WithContext(ctx).WithPayload(p.ID).WithEventType(p.Event).
			Warn("dead-letter replay has no active subscribers")
		return true, nil
	}

	s.log.WithContext(ctx).WithPayload(p.ID).WithEventType(p.Event).
		WithField("subscribers", len(matching)).Info("dead-letter replay started")
	replayCtx := context.WithoutCancel(ctx)
	for _, sub := range matching {
		sub := sub
		go s.executor.Deliver(replayCtx, sub, p, 1)
	}
	return true, nil
}

// DeadLetterStore exposes the dead-letter store for health reporting.
func (s *Service) DeadLetterStore() *DeadLetterStore {
	return s.dlq
}

// Statistics returns a point-in-time aggregate of delivery outcomes.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	return s.stats.Collect(ctx)
}
