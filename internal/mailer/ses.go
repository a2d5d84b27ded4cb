package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used by SESTransport.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures an SESTransport.
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	From      string
	FromName  string
}

// SESTransport sends through Amazon SES.
type SESTransport struct {
	cfg    SESConfig
	client SESAPI
}

var _ Transport = (*SESTransport)(nil)

// NewSESTransport builds an SES client from static credentials, or from the
// default AWS credential chain when none are given.
func NewSESTransport(ctx context.Context, cfg SESConfig) (*SESTransport, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return NewSESTransportWithClient(cfg, sesv2.NewFromConfig(awsCfg)), nil
}

// NewSESTransportWithClient wraps an existing client.
func NewSESTransportWithClient(cfg SESConfig, client SESAPI) *SESTransport {
	return &SESTransport{cfg: cfg, client: client}
}

// Name implements Transport.
func (t *SESTransport) Name() string { return "ses" }

// Send implements Transport.
func (t *SESTransport) Send(ctx context.Context, msg *Message) (string, error) {
	from := msg.From
	if from == "" {
		from = t.cfg.From
	}
	if from == "" {
		return "", fmt.Errorf("ses: sender address not configured")
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = t.cfg.FromName
	}
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, from)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(msg.PlainText()), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses: send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
