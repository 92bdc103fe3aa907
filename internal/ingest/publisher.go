package ingest

import (
	"encoding/json"

	"github.com/nsqio/go-nsq"

	"github.com/campaignforge/hookrelay/internal/logging"
	"github.com/campaignforge/hookrelay/internal/webhook"
)

// DLQPublisher mirrors dead-lettered payloads onto an NSQ topic so external
// consumers can alert on or archive them. It implements
// webhook.DeadLetterPublisher.
type DLQPublisher struct {
	producer *nsq.Producer
	topic    string
	log      *logging.Logger
}

func NewDLQPublisher(nsqdTCPAddr, topic string, log *logging.Logger) (*DLQPublisher, error) {
	if log == nil {
		log = logging.New("hookrelay-dlq")
	}
	producer, err := nsq.NewProducer(nsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	return &DLQPublisher{producer: producer, topic: topic, log: log}, nil
}

// Publish sends the envelope to the DLQ topic.
func (p *DLQPublisher) Publish(env webhook.DeadLetterEnvelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(p.topic, b); err != nil {
		p.log.Plain().WithPayload(env.Payload.ID).WithError(err).Error("dlq publish failed")
		return err
	}
	p.log.Plain().WithPayload(env.Payload.ID).WithField("topic", p.topic).Info("dlq published")
	return nil
}

// Stop gracefully stops the underlying producer.
func (p *DLQPublisher) Stop() {
	p.producer.Stop()
}
