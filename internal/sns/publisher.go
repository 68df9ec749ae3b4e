// Package sns fans birthday greetings out through an SNS topic so that
// downstream subscribers (email, push, chat) can each deliver them.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	Region   string
	TopicARN string
	// Endpoint overrides the AWS endpoint (LocalStack)
	Endpoint string
	// Clock stamps sent_at; defaults to the system clock
	Clock birthday.Clock
}

// Publisher publishes one event per greeting to the topic
type Publisher struct {
	client   snsAPI
	topicARN string
	now      func() time.Time
	logger   *zap.Logger
}

func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("sns publisher requires a topic ARN")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("sns publisher initialized", zap.String("topic_arn", cfg.TopicARN))

	return &Publisher{
		client:   client,
		topicARN: cfg.TopicARN,
		now:      nowFunc(cfg.Clock),
		logger:   logger,
	}, nil
}

func (p *Publisher) Send(ctx context.Context, user *db.User) error {
	event := birthday.NewEvent(user, p.now())

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(event.Subject),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Type),
			},
			"timezone": {
				DataType:    aws.String("String"),
				StringValue: aws.String(user.Timezone),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	p.logger.Info("birthday event published to SNS",
		zap.String("user_id", user.ID.String()),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

func (p *Publisher) Name() string { return "sns" }

func nowFunc(c birthday.Clock) func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}
