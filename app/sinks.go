package app

import (
	"context"

	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/Abraxas-365/wabridge/eventx/providers/eventxkafka"
	"github.com/Abraxas-365/wabridge/eventx/providers/eventxsqs"
	"github.com/Abraxas-365/wabridge/logx"
)

// LogPublisher writes every event to the log
type LogPublisher struct{}

var _ eventx.Publisher = LogPublisher{}

func (LogPublisher) Publish(_ context.Context, e eventx.Event) error {
	logx.Info("event %s id=%s key=%s source=%s", e.Type(), e.ID(), eventx.KeyOf(e), e.Source())
	return nil
}

func (LogPublisher) Close() error { return nil }

// BuildSinks registers one publisher per configured sink. With no sinks the
// fan-out accepts and drops everything.
func BuildSinks(ctx context.Context, s Settings) (*eventx.Fanout, error) {
	fanout := eventx.NewFanout()
	for _, name := range s.Sinks {
		p, err := openSink(ctx, name, s)
		if err != nil {
			fanout.Close()
			return nil, err
		}
		if err := fanout.Register(name, p); err != nil {
			p.Close()
			fanout.Close()
			return nil, err
		}
	}
	if names := fanout.Names(); len(names) > 0 {
		logx.Info("event sinks: %v", names)
	}
	return fanout, nil
}

func openSink(ctx context.Context, name string, s Settings) (eventx.Publisher, error) {
	switch name {
	case SinkLog:
		return LogPublisher{}, nil
	case SinkSQS:
		if s.SQSQueueURL == "" {
			return nil, missing("SQS_QUEUE_URL", "events sink sqs")
		}
		return eventxsqs.NewFromDefaultConfig(ctx, s.SQSQueueURL)
	case SinkKafka:
		if len(s.KafkaBrokers) == 0 {
			return nil, missing("KAFKA_BROKERS", "events sink kafka")
		}
		return eventxkafka.Dial(s.KafkaBrokers, s.KafkaTopic)
	default:
		return nil, registry.New(ErrUnknownSink).WithDetail("sink", name)
	}
}
