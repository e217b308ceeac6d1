package eventxkafka

import (
	"context"
	"strings"

	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/IBM/sarama"
)

// KafkaPublisher writes events to one topic through a sarama.SyncProducer
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ eventx.Publisher = (*KafkaPublisher)(nil)

// NewProducerConfig returns an idempotent producer config that waits for
// all in-sync replicas.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return cfg
}

// Dial connects a sync producer to the brokers
func Dial(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, eventx.ErrorRegistry.New(eventx.ErrInvalidConfiguration).
			WithDetail("sink", "kafka").
			WithDetail("reason", "no brokers configured")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, eventx.ErrorRegistry.NewWithCause(eventx.ErrInvalidConfiguration, err).
			WithDetail("sink", "kafka").
			WithDetail("brokers", strings.Join(brokers, ","))
	}
	return New(producer, topic)
}

// New wraps an existing producer
func New(producer sarama.SyncProducer, topic string) (*KafkaPublisher, error) {
	if producer == nil || strings.TrimSpace(topic) == "" {
		return nil, eventx.ErrorRegistry.New(eventx.ErrInvalidConfiguration).
			WithDetail("sink", "kafka").
			WithDetail("reason", "producer and topic are required")
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// Publish sends the event keyed by eventx.KeyOf so events for one
// recipient stay ordered within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event eventx.Event) error {
	payload, err := eventx.ToJSON(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(eventx.KeyOf(event)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type())},
			{Key: []byte("event_id"), Value: []byte(event.ID())},
		},
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return eventx.ErrorRegistry.NewWithCause(eventx.ErrPublishFailed, ctx.Err()).
			WithDetail("sink", "kafka").
			WithDetail("event_id", event.ID())
	case err := <-done:
		if err != nil {
			return eventx.ErrorRegistry.NewWithCause(eventx.ErrPublishFailed, err).
				WithDetail("sink", "kafka").
				WithDetail("topic", p.topic).
				WithDetail("event_id", event.ID())
		}
		return nil
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
