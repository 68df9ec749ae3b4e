package birthday

import "github.com/lalithlochan/birthdays/internal/db"

const GreetingSubject = "Happy Birthday!"

// Greeting renders the message body for user
func Greeting(user *db.User) string {
	return "🎉 Happy Birthday, " + user.Name + "! 🎂"
}
