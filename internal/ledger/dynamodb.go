package ledger

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/pkg/errors"
)

const rowKeyAttribute = "deviceId"

// dynamoAPI is the subset of the dynamodb API the ledger depends on.
type dynamoAPI interface {
	PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error)
	GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error)
}

// DynamoDBLedger implements the Ledger interface over a DynamoDB table
// holding one row per device.
type DynamoDBLedger struct {
	client  dynamoAPI
	table   string
	timeout time.Duration
}

func NewDynamoDBLedger(sess *session.Session, table string, timeout time.Duration) *DynamoDBLedger {
	return &DynamoDBLedger{
		client:  dynamodb.New(sess),
		table:   table,
		timeout: timeout,
	}
}

func (l *DynamoDBLedger) Put(ctx context.Context, row *model.InventoryRow) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	item, err := dynamodbattribute.MarshalMap(row)
	if err != nil {
		return errors.Wrap(ErrLedger, err.Error())
	}

	_, err = l.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item:      item,
	})
	if err != nil {
		return errors.Wrap(ErrLedger, err.Error())
	}

	return nil
}

func (l *DynamoDBLedger) Get(ctx context.Context, deviceID string) (*model.InventoryRow, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out, err := l.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			rowKeyAttribute: {S: aws.String(deviceID)},
		},
	})
	if err != nil {
		return nil, errors.Wrap(ErrLedger, err.Error())
	}

	if len(out.Item) == 0 {
		return nil, errors.Wrap(ErrRowNotFound, deviceID)
	}

	row := &model.InventoryRow{}
	if err := dynamodbattribute.UnmarshalMap(out.Item, row); err != nil {
		return nil, errors.Wrap(ErrLedger, err.Error())
	}

	return row, nil
}
