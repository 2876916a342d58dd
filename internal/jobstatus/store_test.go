package jobstatus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}

const waveKey = "shift:8b2e9a1c-0000-0000-0000-000000000001:wave:2"

func TestMarkPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "shift_jobs", nil)

	require.NoError(t, store.MarkPending(context.Background(), waveKey))
	require.NotNil(t, mock.putInput)

	var stored Record
	require.NoError(t, attributevalue.UnmarshalMap(mock.putInput.Item, &stored))
	assert.Equal(t, waveKey, stored.JobKey)
	assert.Equal(t, StatusPending, stored.Status)
	assert.NotEmpty(t, stored.CreatedAt)
	assert.Greater(t, stored.ExpiresAt, time.Now().Unix())

	require.NotNil(t, mock.putInput.ConditionExpression)
	assert.Equal(t, "attribute_not_exists(jobKey)", *mock.putInput.ConditionExpression)
}

func TestMarkCompletedAliasesReservedNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "shift_jobs", nil)

	require.NoError(t, store.MarkCompleted(context.Background(), waveKey))
	require.Len(t, mock.updateInputs, 1)

	update := mock.updateInputs[0]
	assert.Equal(t, "status", update.ExpressionAttributeNames["#status"])
	assert.Equal(t, "errorMessage", update.ExpressionAttributeNames["#error"])
	status := update.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value
	assert.Equal(t, string(StatusCompleted), status)
}

func TestMarkFailedCarriesError(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "shift_jobs", nil)

	require.NoError(t, store.MarkFailed(context.Background(), waveKey, "telnyx 502"))

	update := mock.updateInputs[0]
	msg := update.ExpressionAttributeValues[":error"].(*types.AttributeValueMemberS).Value
	assert.Equal(t, "telnyx 502", msg)
}

func TestUpdatePropagatesError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewStore(mock, "shift_jobs", nil)

	err := store.MarkCompleted(context.Background(), waveKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamo failed")
}

func TestGetRecord(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"jobKey": &types.AttributeValueMemberS{Value: waveKey},
				"status": &types.AttributeValueMemberS{Value: string(StatusPending)},
			},
		},
	}
	store := NewStore(mock, "shift_jobs", nil)

	record, err := store.Get(context.Background(), waveKey)
	require.NoError(t, err)
	assert.Equal(t, waveKey, record.JobKey)
	assert.Equal(t, StatusPending, record.Status)
}

func TestGetRecordNotFound(t *testing.T) {
	store := NewStore(&mockDynamo{getOutput: &dynamodb.GetItemOutput{}}, "shift_jobs", nil)
	_, err := store.Get(context.Background(), waveKey)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestNilStoreIsNoOp(t *testing.T) {
	var store *Store
	assert.NoError(t, store.MarkPending(context.Background(), waveKey))
	assert.NoError(t, store.MarkCompleted(context.Background(), waveKey))
	assert.NoError(t, store.MarkFailed(context.Background(), waveKey, "x"))
	_, err := store.Get(context.Background(), waveKey)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
