package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
)

type fakeSQS struct {
	sent []*sqs.SendMessageInput
	err  error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func newTestProducer(client sqsAPI) *Producer {
	return &Producer{
		client:   client,
		queueURL: "http://localhost:4566/000000000000/birthdays",
		now:      func() time.Time { return time.Date(2024, 5, 30, 2, 0, 0, 0, time.UTC) },
		logger:   zap.NewNop(),
	}
}

func TestProducer_Send(t *testing.T) {
	fake := &fakeSQS{}
	p := newTestProducer(fake)
	user := &db.User{ID: uuid.New(), Name: "Sari", Email: "sari@example.com", Timezone: "Asia/Jakarta"}

	if err := p.Send(context.Background(), user); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.sent))
	}

	in := fake.sent[0]
	if aws.ToString(in.QueueUrl) != p.queueURL {
		t.Errorf("queue = %s", aws.ToString(in.QueueUrl))
	}

	var event birthday.Event
	if err := json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &event); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if event.Type != birthday.EventGreeting || event.Email != user.Email || event.Timezone != "Asia/Jakarta" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestProducer_SendError(t *testing.T) {
	p := newTestProducer(&fakeSQS{err: errors.New("queue does not exist")})

	if err := p.Send(context.Background(), &db.User{ID: uuid.New()}); err == nil {
		t.Fatal("expected error")
	}
	if p.Name() != "sqs" {
		t.Errorf("name = %s", p.Name())
	}
}

func TestNewProducer_RequiresQueue(t *testing.T) {
	if _, err := NewProducer(context.Background(), Config{Region: "us-east-1"}, zap.NewNop()); err == nil {
		t.Fatal("expected error without queue URL")
	}
}

func TestNewProducer_StampsWithClock(t *testing.T) {
	simulated := time.Date(2024, 5, 30, 2, 0, 0, 0, time.UTC)

	p, err := NewProducer(context.Background(), Config{
		Region:   "us-east-1",
		QueueURL: "http://localhost:4566/000000000000/birthdays",
		Clock:    birthday.NewFixedClock(simulated),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProducer failed: %v", err)
	}

	fake := &fakeSQS{}
	p.client = fake
	if err := p.Send(context.Background(), &db.User{ID: uuid.New(), Name: "Sari", Timezone: "Asia/Jakarta"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var event birthday.Event
	if err := json.Unmarshal([]byte(aws.ToString(fake.sent[0].MessageBody)), &event); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !event.SentAt.Equal(simulated) {
		t.Errorf("sent_at = %v, want %v", event.SentAt, simulated)
	}
}
