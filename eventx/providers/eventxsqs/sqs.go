package eventxsqs

import (
	"context"
	"strings"

	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SendAPI is the part of the SQS client the publisher needs
type SendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends each event as a JSON envelope to one queue
type SQSPublisher struct {
	client   SendAPI
	queueURL string
	fifo     bool
}

var _ eventx.Publisher = (*SQSPublisher)(nil)

// NewSQSPublisher wraps an SQS client. Queues ending in ".fifo" get a
// message group ID from the event key and a deduplication ID from the event ID.
func NewSQSPublisher(client SendAPI, queueURL string) (*SQSPublisher, error) {
	if client == nil || strings.TrimSpace(queueURL) == "" {
		return nil, eventx.ErrorRegistry.New(eventx.ErrInvalidConfiguration).
			WithDetail("sink", "sqs").
			WithDetail("reason", "client and queue URL are required")
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}, nil
}

// NewFromDefaultConfig builds a publisher on the default AWS credential chain
func NewFromDefaultConfig(ctx context.Context, queueURL string) (*SQSPublisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, eventx.ErrorRegistry.NewWithCause(eventx.ErrInvalidConfiguration, err).
			WithDetail("sink", "sqs")
	}
	return NewSQSPublisher(sqs.NewFromConfig(cfg), queueURL)
}

func (p *SQSPublisher) Publish(ctx context.Context, event eventx.Event) error {
	body, err := eventx.ToJSON(event)
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.Type())},
			"source":     {DataType: aws.String("String"), StringValue: aws.String(event.Source())},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(eventx.KeyOf(event))
		input.MessageDeduplicationId = aws.String(event.ID())
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return eventx.ErrorRegistry.NewWithCause(eventx.ErrPublishFailed, err).
			WithDetail("sink", "sqs").
			WithDetail("event_id", event.ID()).
			WithDetail("event_type", event.Type())
	}
	return nil
}

func (p *SQSPublisher) Close() error { return nil }
