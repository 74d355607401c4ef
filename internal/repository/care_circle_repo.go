package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

type CareCircleRepository interface {
	// GetMember returns nil, nil when secondaryUserID is not in primaryUserID's circle.
	GetMember(ctx context.Context, primaryUserID, secondaryUserID string) (*domain.CareCircleMember, error)
	ListMembers(ctx context.Context, primaryUserID string) ([]domain.CareCircleMember, error)
}

// careCircleItem is keyed by primaryUserId (partition) and secondaryUserId (sort).
type careCircleItem struct {
	PrimaryUserID   string               `dynamodbav:"primaryUserId"`
	SecondaryUserID string               `dynamodbav:"secondaryUserId"`
	Relationship    string               `dynamodbav:"relationship"`
	Permissions     domain.PermissionSet `dynamodbav:"permissions"`
	CreatedAt       string               `dynamodbav:"createdAt,omitempty"`
	UpdatedAt       string               `dynamodbav:"updatedAt,omitempty"`
}

type DynamoCareCircleRepo struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoCareCircleRepo(client DynamoDBAPI, tableName string) *DynamoCareCircleRepo {
	return &DynamoCareCircleRepo{client: client, tableName: tableName}
}

func (r *DynamoCareCircleRepo) GetMember(ctx context.Context, primaryUserID, secondaryUserID string) (*domain.CareCircleMember, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"primaryUserId":   &types.AttributeValueMemberS{Value: primaryUserID},
			"secondaryUserId": &types.AttributeValueMemberS{Value: secondaryUserID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get care circle member: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	var item careCircleItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal care circle member: %w", err)
	}

	member := item.toDomain()
	return &member, nil
}

func (r *DynamoCareCircleRepo) ListMembers(ctx context.Context, primaryUserID string) ([]domain.CareCircleMember, error) {
	keyCond := expression.Key("primaryUserId").Equal(expression.Value(primaryUserID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build care circle query: %w", err)
	}

	members := make([]domain.CareCircleMember, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query care circle members: %w", err)
		}

		var items []careCircleItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal care circle members: %w", err)
		}
		for i := range items {
			members = append(members, items[i].toDomain())
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return members, nil
}

// Save writes a membership item in the layout GetMember and ListMembers read.
func (r *DynamoCareCircleRepo) Save(ctx context.Context, member domain.CareCircleMember) error {
	item, err := attributevalue.MarshalMap(careCircleItemFromDomain(member))
	if err != nil {
		return fmt.Errorf("failed to marshal care circle member: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put care circle member: %w", err)
	}
	return nil
}

func careCircleItemFromDomain(m domain.CareCircleMember) careCircleItem {
	return careCircleItem{
		PrimaryUserID:   m.PrimaryUserID,
		SecondaryUserID: m.SecondaryUserID,
		Relationship:    m.Relationship,
		Permissions:     m.Permissions,
		CreatedAt:       formatTime(m.CreatedAt),
		UpdatedAt:       formatTime(m.UpdatedAt),
	}
}

func (i careCircleItem) toDomain() domain.CareCircleMember {
	return domain.CareCircleMember{
		PrimaryUserID:   i.PrimaryUserID,
		SecondaryUserID: i.SecondaryUserID,
		Relationship:    i.Relationship,
		Permissions:     i.Permissions,
		CreatedAt:       parseTime(i.CreatedAt),
		UpdatedAt:       parseTime(i.UpdatedAt),
	}
}
