// Package ingest bridges the platform's NSQ event stream into the dispatch
// subsystem, so producers that publish to the broker reach webhook
// subscribers without talking to the REST API.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campaignforge/hookrelay/internal/logging"
	"github.com/campaignforge/hookrelay/internal/tracing"
	"github.com/campaignforge/hookrelay/internal/webhook"
)

// Dispatcher is the slice of the webhook service the bridge needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt webhook.Event) (string, int)
}

// InboundEvent is the broker wire format for events entering the bridge.
// TraceHeaders carries W3C trace context injected by the producer.
type InboundEvent struct {
	WorkflowID   string            `json:"workflow_id"`
	Type         string            `json:"type"`
	Data         map[string]any    `json:"data"`
	Timestamp    time.Time         `json:"timestamp,omitempty"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// BridgeOptions configures the NSQ consumer side of the bridge.
type BridgeOptions struct {
	Topic          string
	Channel        string
	NsqdTCPAddr    string
	LookupHTTPAddr string
	MaxInFlight    int
	Dispatcher     Dispatcher
	Logger         *logging.Logger
}

// Bridge consumes events from NSQ and fans them into the dispatcher.
type Bridge struct {
	dispatcher Dispatcher
	consumer   *nsq.Consumer
	opts       BridgeOptions
	log        *logging.Logger
}

func NewBridge(opts BridgeOptions) (*Bridge, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New("hookrelay-ingest")
	}

	conf := nsq.NewConfig()
	if opts.MaxInFlight > 0 {
		conf.MaxInFlight = opts.MaxInFlight
	}
	consumer, err := nsq.NewConsumer(opts.Topic, opts.Channel, conf)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		dispatcher: opts.Dispatcher,
		consumer:   consumer,
		opts:       opts,
		log:        log,
	}
	consumer.AddHandler(b)
	return b, nil
}

// HandleMessage implements nsq.Handler. Malformed payloads are dropped, not
// requeued; the dispatcher itself never returns an error, so every message is
// finished exactly once.
func (b *Bridge) HandleMessage(m *nsq.Message) error {
	var in InboundEvent
	if err := json.Unmarshal(m.Body, &in); err != nil {
		b.log.Plain().WithError(err).Error("bad event payload, dropping")
		return nil
	}

	ctx := tracing.ExtractCarrier(context.Background(), in.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "ingest.HandleMessage",
		attribute.String("workflow_id", in.WorkflowID),
		attribute.String("event_type", in.Type),
	)
	defer span.End()

	payloadID, matched := b.dispatcher.Dispatch(ctx, webhook.Event{
		WorkflowID: in.WorkflowID,
		Type:       in.Type,
		Data:       in.Data,
		Timestamp:  in.Timestamp,
	})
	span.SetAttributes(
		attribute.String("payload_id", payloadID),
		attribute.Int("matched_subscriptions", matched),
	)

	b.log.WithContext(ctx).WithWorkflow(in.WorkflowID).WithEventType(in.Type).
		WithField("matched", matched).Debug("event bridged from broker")
	return nil
}

// Start connects the consumer. Connecting directly to nsqd forces channel
// creation, instead of the channel being lazily created on first publish; the
// lookupd connection is optional.
func (b *Bridge) Start() error {
	if err := b.consumer.ConnectToNSQD(b.opts.NsqdTCPAddr); err != nil {
		return err
	}
	if b.opts.LookupHTTPAddr != "" {
		if err := b.consumer.ConnectToNSQLookupd(b.opts.LookupHTTPAddr); err != nil {
			return err
		}
	}
	b.log.Plain().WithField("topic", b.opts.Topic).Info("event bridge started")
	return nil
}

// Stop drains the consumer and blocks until it has exited.
func (b *Bridge) Stop() {
	b.consumer.Stop()
	<-b.consumer.StopChan
}
