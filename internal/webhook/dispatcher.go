package webhook

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/campaignforge/hookrelay/internal/logging"
	"github.com/campaignforge/hookrelay/internal/metrics"
	"github.com/campaignforge/hookrelay/internal/tracing"
)

// Dispatcher fans one event out to every matching active subscription. The
// call returns once every subscription's first attempt has completed; retries
// scheduled by those attempts run detached.
type Dispatcher struct {
	registry   *Registry
	executor   *Executor
	log        *logging.Logger
	maxWorkers int
	limiter    *rate.Limiter
}

// DispatcherOptions configures a Dispatcher. MaxWorkers 0 means one goroutine
// per matching subscription; RatePerSec 0 disables rate limiting.
type DispatcherOptions struct {
	Registry   *Registry
	Executor   *Executor
	Logger     *logging.Logger
	MaxWorkers int
	RatePerSec float64
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logging.New("hookrelay-dispatcher")
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return &Dispatcher{
		registry:   opts.Registry,
		executor:   opts.Executor,
		log:        opts.Logger,
		maxWorkers: opts.MaxWorkers,
		limiter:    limiter,
	}
}

// Dispatch delivers evt to all matching active subscriptions concurrently and
// returns the shared payload id and the number of subscriptions matched. A
// dispatch with zero subscribers is not an error; it logs and returns an
// empty payload id. One subscriber's failure never prevents the others from
// being attempted and recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (string, int) {
	ctx, span := tracing.StartSpan(ctx, "webhook.dispatch",
		attribute.String("workflow_id", evt.WorkflowID),
		attribute.String("event_type", evt.Type),
	)
	defer span.End()

	metrics.EventsDispatchedTotal.WithLabelValues(evt.Type).Inc()

	matching, err := d.registry.ListMatching(ctx, evt.Type)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		d.log.WithContext(ctx).WithWorkflow(evt.WorkflowID).WithEventType(evt.Type).
			WithError(err).Error("subscription lookup failed")
		return "", 0
	}
	if len(matching) == 0 {
		d.log.WithContext(ctx).WithWorkflow(evt.WorkflowID).WithEventType(evt.Type).
			Debug("no subscribers for event")
		return "", 0
	}

	// One payload shared by every delivery of this dispatch; its id is
	// stable across attempts and subscriptions.
	payload := NewPayload(evt)
	span.SetAttributes(
		attribute.String("payload_id", payload.ID),
		attribute.Int("subscribers", len(matching)),
	)

	workers := d.maxWorkers
	if workers <= 0 || workers > len(matching) {
		workers = len(matching)
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, sub := range matching {
		sub := sub
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					tracing.SetSpanError(ctx, fmt.Errorf("delivery panic: %v", r))
					d.log.WithContext(ctx).WithSubscription(sub.ID).WithPayload(payload.ID).
						WithField("panic", fmt.Sprint(r)).Error("delivery panicked")
				}
			}()
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					d.log.WithContext(ctx).WithSubscription(sub.ID).WithError(err).
						Warn("rate limiter wait aborted")
					return
				}
			}
			d.executor.Deliver(ctx, sub, payload, 1)
		})
	}
	p.Wait()

	return payload.ID, len(matching)
}
