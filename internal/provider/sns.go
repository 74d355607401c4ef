package provider

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

const (
	snsSMSTypeAttribute  = "AWS.SNS.SMS.SMSType"
	snsSenderIDAttribute = "AWS.SNS.SMS.SenderID"

	// SMS bodies beyond this are split by carriers; the body is cut so one alert stays one text.
	maxSMSLength = 1600
)

// SNSAPI is the subset of the SNS client used for direct-to-phone publishing.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider delivers SMS (and push, when no push gateway is configured) to phone numbers.
type SNSProvider struct {
	client   SNSAPI
	senderID string
}

func NewSNSProvider(client SNSAPI, senderID string) (*SNSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("sns client is required")
	}
	return &SNSProvider{client: client, senderID: strings.TrimSpace(senderID)}, nil
}

func (p *SNSProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if err := msg.Validate(); err != nil {
		return nil, &ProviderError{Provider: "sns", Message: "invalid message", Cause: err}
	}

	body := truncateUTF8(msg.Body, maxSMSLength)

	attrs := map[string]types.MessageAttributeValue{
		snsSMSTypeAttribute: {
			DataType:    aws.String("String"),
			StringValue: aws.String(smsType(msg.Priority)),
		},
	}
	if p.senderID != "" {
		attrs[snsSenderIDAttribute] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(p.senderID),
		}
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(strings.TrimSpace(msg.Recipient)),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return nil, classifyAWSError("sns", err)
	}

	return &ProviderResponse{
		StatusCode: 200,
		MessageID:  aws.ToString(out.MessageId),
	}, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Alerts are time-sensitive; only low-priority traffic goes out as promotional.
func smsType(priority domain.Priority) string {
	if priority == domain.PriorityLow {
		return "Promotional"
	}
	return "Transactional"
}
