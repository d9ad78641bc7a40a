package service

import "time"

// Clock returns the current time.  Passing nil to a constructor selects the
// system clock in UTC.
type Clock func() time.Time

func orSystemClock(c Clock) Clock {
	if c != nil {
		return c
	}
	return func() time.Time { return time.Now().UTC() }
}
