package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
)

// Sender delivers one birthday greeting to a user.
// Implementations: log, SES email, SNS topic, SQS queue, webhook.
type Sender interface {
	Send(ctx context.Context, user *db.User) error
	Name() string
}

// LogSender writes the greeting to the log (development default)
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, user *db.User) error {
	s.logger.Info("birthday greeting",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
		zap.String("timezone", user.Timezone),
		zap.String("message", birthday.Greeting(user)),
	)
	return nil
}

func (s *LogSender) Name() string { return "log" }

// FallbackSender tries each sender in order and stops at the first success.
// To the delivery pass it is still a single sender: one call, one outcome.
type FallbackSender struct {
	senders []Sender
	logger  *zap.Logger
}

// NewFallbackSender chains senders; at least one is required
func NewFallbackSender(logger *zap.Logger, senders ...Sender) (*FallbackSender, error) {
	if len(senders) == 0 {
		return nil, errors.New("fallback sender needs at least one sender")
	}
	return &FallbackSender{senders: senders, logger: logger}, nil
}

func (f *FallbackSender) Send(ctx context.Context, user *db.User) error {
	var errs []error
	for _, sender := range f.senders {
		err := sender.Send(ctx, user)
		if err == nil {
			return nil
		}

		f.logger.Warn("sender failed, trying next",
			zap.String("sender", sender.Name()),
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", sender.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func (f *FallbackSender) Name() string {
	if len(f.senders) == 1 {
		return f.senders[0].Name()
	}
	return "fallback"
}
