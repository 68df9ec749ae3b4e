package birthday

import (
	"time"

	"github.com/lalithlochan/birthdays/internal/db"
)

// EventGreeting is the event type published to queue and topic channels.
const EventGreeting = "birthday.greeting"

// Event is the message body handed to SNS and SQS consumers.
type Event struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Timezone string    `json:"timezone"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

func NewEvent(user *db.User, at time.Time) Event {
	return Event{
		Type:     EventGreeting,
		UserID:   user.ID.String(),
		Name:     user.Name,
		Email:    user.Email,
		Timezone: user.Timezone,
		Subject:  GreetingSubject,
		Body:     Greeting(user),
		SentAt:   at.UTC(),
	}
}
