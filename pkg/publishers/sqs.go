package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsPublisher queues one message per captured response. On FIFO queues
// the event id deduplicates redeliveries and captures of the same request
// stay ordered within their message group.
type sqsPublisher struct {
	id       string
	typ      string
	queueURL string
	fifo     bool
	groupID  string
	client   sqsClient
	log      Logger
}

func newSQSPublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.SQS == nil {
		return nil, fmt.Errorf("publisher %q missing sqs configuration", cfg.ID)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.SQS.Region, cfg.SQS.Credentials)
	if err != nil {
		return nil, err
	}

	return &sqsPublisher{
		id:       cfg.ID,
		typ:      TypeSQS,
		queueURL: cfg.SQS.QueueURL,
		fifo:     strings.HasSuffix(cfg.SQS.QueueURL, ".fifo"),
		groupID:  cfg.SQS.MessageGroupID,
		client:   sqs.NewFromConfig(awsCfg),
		log:      ensureLogger(log),
	}, nil
}

func (s *sqsPublisher) ID() string   { return s.id }
func (s *sqsPublisher) Type() string { return s.typ }

func (s *sqsPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: captureAttributes(evt),
	}
	if s.fifo {
		group := s.groupID
		if group == "" {
			group = evt.RequestID
		}
		input.MessageGroupId = aws.String(group)
		if evt.ID != "" {
			input.MessageDeduplicationId = aws.String(evt.ID)
		}
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		s.log.ErrorObj("sqs publisher send failed", "publisher_sqs_error", map[string]any{
			"publisher_id": s.id,
			"request_id":   evt.RequestID,
			"error":        err.Error(),
		})
		return fmt.Errorf("send capture %s to sqs: %w", evt.RequestID, err)
	}
	s.log.DebugObj("sqs publisher delivered event", "publisher_sqs_delivery", map[string]any{
		"publisher_id": s.id,
		"event_id":     evt.ID,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}

// captureAttributes lets queue consumers filter captures without parsing the body.
func captureAttributes(evt Event) map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{
		"request_id": {
			DataType:    aws.String("String"),
			StringValue: requestIDAttribute(evt),
		},
		"status_code": {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.Itoa(evt.StatusCode)),
		},
	}
	if evt.Method != "" {
		attrs["method"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(evt.Method),
		}
	}
	return attrs
}
