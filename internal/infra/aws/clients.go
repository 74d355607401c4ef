package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type Options struct {
	Region string
	// DynamoDBEndpoint points the DynamoDB client at a local emulator when set.
	DynamoDBEndpoint string
}

// Clients holds the AWS service clients shared by repositories and providers.
type Clients struct {
	DynamoDB *dynamodb.Client
	SNS      *sns.Client
	SES      *sesv2.Client
}

func NewClients(ctx context.Context, opts Options) (*Clients, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(loadCtx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if opts.DynamoDBEndpoint != "" {
				o.BaseEndpoint = aws.String(opts.DynamoDBEndpoint)
			}
			o.RetryMaxAttempts = 3
			o.RetryMode = aws.RetryModeAdaptive
		}),
		// Provider-level retries are owned by the dispatcher, so SDK retries stay minimal.
		SNS: sns.NewFromConfig(cfg, func(o *sns.Options) {
			o.RetryMaxAttempts = 1
		}),
		SES: sesv2.NewFromConfig(cfg, func(o *sesv2.Options) {
			o.RetryMaxAttempts = 1
		}),
	}, nil
}
