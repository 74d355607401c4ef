package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

const (
	alertIDIndex = "alertId-index"
	statusIndex  = "status-index"

	defaultRetryableLimit = 100
)

type NotificationResultRepository interface {
	// Save upserts by notification id; a retry overwrites the earlier record.
	Save(ctx context.Context, result *domain.NotificationResult) error
	ListByAlert(ctx context.Context, alertID string) ([]domain.NotificationResult, error)
	ListRetryable(ctx context.Context, limit int) ([]domain.NotificationResult, error)
}

type notificationResultItem struct {
	NotificationID    string `dynamodbav:"notificationId"`
	AlertID           string `dynamodbav:"alertId"`
	RecipientUserID   string `dynamodbav:"recipientUserId,omitempty"`
	Recipient         string `dynamodbav:"recipient"`
	Channel           string `dynamodbav:"channel"`
	Priority          string `dynamodbav:"priority,omitempty"`
	Status            string `dynamodbav:"status"`
	Subject           string `dynamodbav:"subject,omitempty"`
	Message           string `dynamodbav:"message"`
	SentAt            string `dynamodbav:"sentAt"`
	DeliveredAt       string `dynamodbav:"deliveredAt,omitempty"`
	ReadAt            string `dynamodbav:"readAt,omitempty"`
	FailureReason     string `dynamodbav:"failureReason,omitempty"`
	ProviderMessageID string `dynamodbav:"providerMessageId,omitempty"`
	RetryCount        int    `dynamodbav:"retryCount"`
}

type DynamoNotificationResultRepo struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoNotificationResultRepo(client DynamoDBAPI, tableName string) *DynamoNotificationResultRepo {
	return &DynamoNotificationResultRepo{client: client, tableName: tableName}
}

func (r *DynamoNotificationResultRepo) Save(ctx context.Context, result *domain.NotificationResult) error {
	if result == nil {
		return fmt.Errorf("%w: notification result is required", domain.ErrValidation)
	}
	if result.NotificationID == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	item, err := attributevalue.MarshalMap(notificationResultItemFromDomain(result))
	if err != nil {
		return fmt.Errorf("failed to marshal notification result: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put notification result: %w", err)
	}
	return nil
}

func (r *DynamoNotificationResultRepo) ListByAlert(ctx context.Context, alertID string) ([]domain.NotificationResult, error) {
	keyCond := expression.Key("alertId").Equal(expression.Value(alertID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build alert query: %w", err)
	}

	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(alertIDIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, 0)
}

// ListRetryable returns failed results whose retry budget is not exhausted.
func (r *DynamoNotificationResultRepo) ListRetryable(ctx context.Context, limit int) ([]domain.NotificationResult, error) {
	if limit < 1 {
		limit = defaultRetryableLimit
	}

	keyCond := expression.Key("status").Equal(expression.Value(string(domain.StatusFailed)))
	filter := expression.Name("retryCount").LessThan(expression.Value(domain.MaxRetryCount))
	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCond).
		WithFilter(filter).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build retryable query: %w", err)
	}

	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(statusIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, limit)
}

// query follows LastEvaluatedKey until exhausted or limit (when > 0) items are collected.
func (r *DynamoNotificationResultRepo) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]domain.NotificationResult, error) {
	results := make([]domain.NotificationResult, 0)
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query notification results: %w", err)
		}

		var items []notificationResultItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification results: %w", err)
		}
		for i := range items {
			results = append(results, items[i].toDomain())
			if limit > 0 && len(results) >= limit {
				return results, nil
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			return results, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func notificationResultItemFromDomain(r *domain.NotificationResult) notificationResultItem {
	return notificationResultItem{
		NotificationID:    r.NotificationID,
		AlertID:           r.AlertID,
		RecipientUserID:   r.RecipientUserID,
		Recipient:         r.Recipient,
		Channel:           string(r.Channel),
		Priority:          string(r.Priority),
		Status:            string(r.Status),
		Subject:           r.Subject,
		Message:           r.Message,
		SentAt:            formatTime(r.SentAt),
		DeliveredAt:       formatOptionalTime(r.DeliveredAt),
		ReadAt:            formatOptionalTime(r.ReadAt),
		FailureReason:     r.FailureReason,
		ProviderMessageID: r.ProviderMessageID,
		RetryCount:        r.RetryCount,
	}
}

func (i notificationResultItem) toDomain() domain.NotificationResult {
	return domain.NotificationResult{
		NotificationID:    i.NotificationID,
		AlertID:           i.AlertID,
		RecipientUserID:   i.RecipientUserID,
		Recipient:         i.Recipient,
		Channel:           domain.Channel(i.Channel),
		Priority:          domain.Priority(i.Priority),
		Status:            domain.Status(i.Status),
		Subject:           i.Subject,
		Message:           i.Message,
		SentAt:            parseTime(i.SentAt),
		DeliveredAt:       parseOptionalTime(i.DeliveredAt),
		ReadAt:            parseOptionalTime(i.ReadAt),
		FailureReason:     i.FailureReason,
		ProviderMessageID: i.ProviderMessageID,
		RetryCount:        i.RetryCount,
	}
}
