package birthday

import (
	"fmt"
	"time"
)

// Greetings go out at this local wall-clock time.
const (
	DeliveryHour   = 9
	DeliveryMinute = 0
)

// IsBirthday reports whether birthday falls on day's UTC month and day.
// Feb 29 birthdays only match in leap years.
func IsBirthday(birthday, day time.Time) bool {
	b, d := birthday.UTC(), day.UTC()
	return b.Month() == d.Month() && b.Day() == d.Day()
}

// LocalTime converts now into the IANA zone tz
func LocalTime(now time.Time, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, tz, err)
	}
	return now.In(loc), nil
}

// IsDeliveryTime reports whether local is inside the delivery minute
func IsDeliveryTime(local time.Time) bool {
	return local.Hour() == DeliveryHour && local.Minute() == DeliveryMinute
}

// ValidTimezone reports whether tz names a loadable location
func ValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
