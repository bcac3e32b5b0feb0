package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes events to a queue for downstream consumers.
type SQSSink struct {
	client   sqsSender
	queueURL string
}

// NewSQSSink creates a sink around the provided SQS client.
func NewSQSSink(client sqsSender, queueURL string) *SQSSink {
	if client == nil {
		panic("relay: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("relay: SQS queueURL cannot be empty")
	}
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Name() string { return "sqs" }

func (s *SQSSink) Deliver(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relay: marshal event: %w", err)
	}
	attrs := map[string]types.MessageAttributeValue{
		"eventType": {DataType: aws.String("String"), StringValue: aws.String(evt.Type)},
	}
	if evt.Lead != nil {
		attrs["leadId"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(evt.Lead.ID)}
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("relay: failed to send SQS message: %w", err)
	}
	return nil
}
