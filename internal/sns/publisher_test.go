package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func newTestPublisher(client snsAPI) *Publisher {
	return &Publisher{
		client:   client,
		topicARN: "arn:aws:sns:us-east-1:000000000000:birthdays",
		now:      func() time.Time { return time.Date(2024, 5, 30, 2, 0, 0, 0, time.UTC) },
		logger:   zap.NewNop(),
	}
}

func TestPublisher_Send(t *testing.T) {
	fake := &fakeSNS{}
	p := newTestPublisher(fake)
	user := &db.User{ID: uuid.New(), Name: "Sari", Email: "sari@example.com", Timezone: "Asia/Jakarta"}

	if err := p.Send(context.Background(), user); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if aws.ToString(fake.input.TopicArn) != p.topicARN {
		t.Errorf("topic = %s", aws.ToString(fake.input.TopicArn))
	}
	if got := aws.ToString(fake.input.MessageAttributes["event"].StringValue); got != birthday.EventGreeting {
		t.Errorf("event attribute = %s", got)
	}
	if got := aws.ToString(fake.input.MessageAttributes["timezone"].StringValue); got != "Asia/Jakarta" {
		t.Errorf("timezone attribute = %s", got)
	}

	var event birthday.Event
	if err := json.Unmarshal([]byte(aws.ToString(fake.input.Message)), &event); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if event.UserID != user.ID.String() || event.Body != birthday.Greeting(user) {
		t.Errorf("unexpected event: %+v", event)
	}
	if !event.SentAt.Equal(time.Date(2024, 5, 30, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("sent_at = %v", event.SentAt)
	}
}

func TestPublisher_SendError(t *testing.T) {
	p := newTestPublisher(&fakeSNS{err: errors.New("throttled")})

	err := p.Send(context.Background(), &db.User{ID: uuid.New(), Name: "Sari"})
	if err == nil {
		t.Fatal("expected publish error")
	}
	if p.Name() != "sns" {
		t.Errorf("name = %s", p.Name())
	}
}

func TestNewPublisher_RequiresTopic(t *testing.T) {
	if _, err := NewPublisher(context.Background(), Config{Region: "us-east-1"}, zap.NewNop()); err == nil {
		t.Fatal("expected error without topic ARN")
	}
}

func TestNewPublisher_StampsWithClock(t *testing.T) {
	simulated := time.Date(2024, 5, 30, 2, 0, 0, 0, time.UTC)

	p, err := NewPublisher(context.Background(), Config{
		Region:   "us-east-1",
		TopicARN: "arn:aws:sns:us-east-1:000000000000:birthdays",
		Clock:    birthday.NewFixedClock(simulated),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}

	fake := &fakeSNS{}
	p.client = fake
	if err := p.Send(context.Background(), &db.User{ID: uuid.New(), Name: "Sari", Timezone: "Asia/Jakarta"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var event birthday.Event
	if err := json.Unmarshal([]byte(aws.ToString(fake.input.Message)), &event); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if !event.SentAt.Equal(simulated) {
		t.Errorf("sent_at = %v, want %v", event.SentAt, simulated)
	}
}
