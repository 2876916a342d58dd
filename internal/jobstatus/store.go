// Package jobstatus keeps a DynamoDB record per dispatched queue job so
// operators can see what the worker did with each wave and call job. Records
// expire after a day via the table's TTL attribute.
package jobstatus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

const recordTTL = 24 * time.Hour

// Status is the lifecycle state of a dispatched job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrRecordNotFound indicates the requested job key has no record.
var ErrRecordNotFound = errors.New("jobstatus: record not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Record captures the persisted state of one queue job dispatch.
type Record struct {
	JobKey       string `dynamodbav:"jobKey" json:"jobKey"`
	Status       Status `dynamodbav:"status" json:"status"`
	ErrorMessage string `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64  `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Store persists job records to DynamoDB. A nil Store disables tracking:
// every method is a no-op, so the worker never gates on configuration.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewStore builds a store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("jobstatus: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("jobstatus: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// MarkPending inserts a fresh pending record for the job key. A redelivered
// job hits the overwrite guard; that is reported as an error and the caller
// decides whether it matters.
func (s *Store) MarkPending(ctx context.Context, jobKey string) error {
	if s == nil {
		return nil
	}
	if jobKey == "" {
		return errors.New("jobstatus: job key required")
	}
	now := time.Now().UTC()
	record := Record{
		JobKey:    jobKey,
		Status:    StatusPending,
		CreatedAt: now.Format(time.RFC3339Nano),
		UpdatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: now.Add(recordTTL).Unix(),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("jobstatus: marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobKey)"),
	})
	if err != nil {
		return fmt.Errorf("jobstatus: persist record: %w", err)
	}
	return nil
}

// MarkCompleted updates a job record to the completed state.
func (s *Store) MarkCompleted(ctx context.Context, jobKey string) error {
	if s == nil {
		return nil
	}
	return s.update(ctx, jobKey, StatusCompleted, "")
}

// MarkFailed updates a job record to the failed state with the handler error.
func (s *Store) MarkFailed(ctx context.Context, jobKey, errMsg string) error {
	if s == nil {
		return nil
	}
	return s.update(ctx, jobKey, StatusFailed, errMsg)
}

// Get fetches a job record by key.
func (s *Store) Get(ctx context.Context, jobKey string) (*Record, error) {
	if s == nil {
		return nil, ErrRecordNotFound
	}
	if jobKey == "" {
		return nil, errors.New("jobstatus: job key required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobKey": &types.AttributeValueMemberS{Value: jobKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jobstatus: fetch record: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRecordNotFound
	}

	var record Record
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, fmt.Errorf("jobstatus: decode record: %w", err)
	}
	return &record, nil
}

func (s *Store) update(ctx context.Context, jobKey string, status Status, errMsg string) error {
	if jobKey == "" {
		return errors.New("jobstatus: job key required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobKey": &types.AttributeValueMemberS{Value: jobKey},
		},
		UpdateExpression: aws.String("SET #status = :status, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(jobKey)"),
	})
	if err != nil {
		return fmt.Errorf("jobstatus: update record %s: %w", jobKey, err)
	}
	return nil
}
