package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

type UserRepository interface {
	// GetUser returns domain.ErrNotFound when the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

type userItem struct {
	UserID      string              `dynamodbav:"userId"`
	Profile     userProfileItem     `dynamodbav:"profile"`
	Preferences userPreferencesItem `dynamodbav:"preferences,omitempty"`
}

type userProfileItem struct {
	Name  string `dynamodbav:"name,omitempty"`
	Phone string `dynamodbav:"phone,omitempty"`
	Email string `dynamodbav:"email,omitempty"`
}

type userPreferencesItem struct {
	NotificationChannels []string `dynamodbav:"notificationChannels,omitempty"`
}

type DynamoUserRepo struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoUserRepo(client DynamoDBAPI, tableName string) *DynamoUserRepo {
	return &DynamoUserRepo{client: client, tableName: tableName}
}

func (r *DynamoUserRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, userID)
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return item.toDomain(), nil
}

func (i userItem) toDomain() *domain.User {
	channels := make([]domain.Channel, 0, len(i.Preferences.NotificationChannels))
	for _, raw := range i.Preferences.NotificationChannels {
		// Unknown channels stored by older clients are ignored rather than failing the lookup.
		if ch, err := domain.ParseChannelFromString(raw); err == nil {
			channels = append(channels, ch)
		}
	}

	return &domain.User{
		ID: i.UserID,
		Profile: domain.UserProfile{
			Name:  i.Profile.Name,
			Phone: i.Profile.Phone,
			Email: i.Profile.Email,
		},
		Preferences: domain.UserPreferences{
			NotificationChannels: channels,
		},
	}
}
