package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const defaultEmailSubject = "Health alert"

// SESAPI is the subset of the SES v2 client used to send email.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESProvider struct {
	client SESAPI
	from   string
}

func NewSESProvider(client SESAPI, fromAddress string) (*SESProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is required")
	}
	from := strings.TrimSpace(fromAddress)
	if from == "" {
		return nil, fmt.Errorf("ses sender address is required")
	}
	return &SESProvider{client: client, from: from}, nil
}

func (p *SESProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if err := msg.Validate(); err != nil {
		return nil, &ProviderError{Provider: "ses", Message: "invalid message", Cause: err}
	}

	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = defaultEmailSubject
	}

	out, err := p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.from),
		Destination: &types.Destination{
			ToAddresses: []string{strings.TrimSpace(msg.Recipient)},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return nil, classifyAWSError("ses", err)
	}

	return &ProviderResponse{
		StatusCode: 200,
		MessageID:  aws.ToString(out.MessageId),
	}, nil
}
