package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"checkout-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Secondary indexes expected on the ledger table.
const (
	ClientIndex      = "client_id-index"
	RemoteOrderIndex = "remote_order_id-index"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoOrderLedger.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoOrderLedger stores ledger rows in a DynamoDB table keyed by local_id.
type DynamoOrderLedger struct {
	client DynamoAPI
	table  string
}

func NewDynamoOrderLedger(client DynamoAPI, table string) *DynamoOrderLedger {
	return &DynamoOrderLedger{client: client, table: table}
}

type ddbOrder struct {
	LocalID         string  `dynamodbav:"local_id"`
	RemoteOrderID   *string `dynamodbav:"remote_order_id,omitempty"`
	PaymentID       *string `dynamodbav:"payment_id,omitempty"`
	Status          string  `dynamodbav:"status"`
	PaymentStatus   string  `dynamodbav:"payment_status"`
	TotalAmount     float64 `dynamodbav:"total_amount"`
	Currency        string  `dynamodbav:"currency"`
	CountryCode     string  `dynamodbav:"country_code"`
	Items           string  `dynamodbav:"items"`
	ShippingAddress string  `dynamodbav:"shipping_address"`
	ClientID        string  `dynamodbav:"client_id"`
	CustomerEmail   string  `dynamodbav:"customer_email"`
	CustomerName    string  `dynamodbav:"customer_name"`
	FailureReason   string  `dynamodbav:"failure_reason,omitempty"`
	CreatedAt       string  `dynamodbav:"created_at"`
	UpdatedAt       string  `dynamodbav:"updated_at"`
}

func toDDB(o *models.LocalOrder) ddbOrder {
	return ddbOrder{
		LocalID:         o.LocalID,
		RemoteOrderID:   o.RemoteOrderID,
		PaymentID:       o.PaymentID,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		CountryCode:     o.CountryCode,
		Items:           o.ItemsJSON,
		ShippingAddress: o.ShippingAddressJSON,
		ClientID:        o.ClientID,
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		FailureReason:   o.FailureReason,
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromDDB(d ddbOrder) models.LocalOrder {
	o := models.LocalOrder{
		LocalID:             d.LocalID,
		RemoteOrderID:       d.RemoteOrderID,
		PaymentID:           d.PaymentID,
		Status:              d.Status,
		PaymentStatus:       d.PaymentStatus,
		TotalAmount:         d.TotalAmount,
		Currency:            d.Currency,
		CountryCode:         d.CountryCode,
		ItemsJSON:           d.Items,
		ShippingAddressJSON: d.ShippingAddress,
		ClientID:            d.ClientID,
		CustomerEmail:       d.CustomerEmail,
		CustomerName:        d.CustomerName,
		FailureReason:       d.FailureReason,
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, d.UpdatedAt)
	return o
}

// Record puts the order only if no row with the same local_id exists.
func (d *DynamoOrderLedger) Record(ctx context.Context, order *models.LocalOrder) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	item, err := attributevalue.MarshalMap(toDDB(order))
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(local_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("order %s already recorded: %w", order.LocalID, err)
		}
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (d *DynamoOrderLedger) AttachPaymentStatus(ctx context.Context, localID, paymentStatus string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"local_id": localID})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &d.table,
		Key:                 key,
		UpdateExpression:    aws.String("SET payment_status = :ps, updated_at = :ua"),
		ConditionExpression: aws.String("attribute_exists(local_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ps": &types.AttributeValueMemberS{Value: paymentStatus},
			":ua": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("dynamodb UpdateItem failed: %w", err)
	}
	return nil
}

func (d *DynamoOrderLedger) FindByLocalID(ctx context.Context, localID string) (*models.LocalOrder, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"local_id": localID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &d.table, Key: key})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrOrderNotFound
	}
	var row ddbOrder
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	o := fromDDB(row)
	return &o, nil
}

func (d *DynamoOrderLedger) FindByRemoteOrderID(ctx context.Context, remoteOrderID string) (*models.LocalOrder, error) {
	rows, err := d.queryIndex(ctx, RemoteOrderIndex, "remote_order_id", remoteOrderID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrOrderNotFound
	}
	return &rows[0], nil
}

// FindByClientID queries the client index and pages in memory, newest first.
func (d *DynamoOrderLedger) FindByClientID(ctx context.Context, clientID string, page, limit int) ([]models.LocalOrder, int64, error) {
	rows, err := d.queryIndex(ctx, ClientIndex, "client_id", clientID)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(rows))

	offset := (page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []models.LocalOrder{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], total, nil
}

func (d *DynamoOrderLedger) queryIndex(ctx context.Context, index, attr, value string) ([]models.LocalOrder, error) {
	var rows []models.LocalOrder
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &d.table,
			IndexName:              aws.String(index),
			KeyConditionExpression: aws.String("#k = :v"),
			ExpressionAttributeNames: map[string]string{
				"#k": attr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberS{Value: value},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb Query %s failed: %w", index, err)
		}
		var page []ddbOrder
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		for _, p := range page {
			rows = append(rows, fromDDB(p))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}
