package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDeadLetter forwards exhausted jobs to an SQS queue so operators can
// inspect and replay them.
type SQSDeadLetter struct {
	client   sqsAPI
	queueURL string
	logger   *logging.Logger
}

// NewSQSDeadLetter creates a dead-letter sink on the provided SQS client.
func NewSQSDeadLetter(client sqsAPI, queueURL string, logger *logging.Logger) *SQSDeadLetter {
	if client == nil {
		panic("jobqueue: sqs client required")
	}
	if queueURL == "" {
		panic("jobqueue: dead letter queue URL required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SQSDeadLetter{client: client, queueURL: queueURL, logger: logger}
}

var _ DeadLetterer = (*SQSDeadLetter)(nil)

type deadLetterEnvelope struct {
	Key      string    `json:"key"`
	Payload  []byte    `json:"payload"`
	Attempts int       `json:"attempts"`
	Cause    string    `json:"cause"`
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetter sends the job and its final error to the configured queue.
func (d *SQSDeadLetter) DeadLetter(ctx context.Context, job Job, cause error) error {
	envelope := deadLetterEnvelope{
		Key:      job.Key,
		Payload:  job.Payload,
		Attempts: job.Attempts,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		envelope.Cause = cause.Error()
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("jobqueue: marshal dead letter: %w", err)
	}
	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("jobqueue: send dead letter: %w", err)
	}
	d.logger.Warn("jobqueue: job forwarded to dead letter queue", "key", job.Key, "attempts", job.Attempts)
	return nil
}
