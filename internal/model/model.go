package model

import "time"

// Event is a single full-day calendar entry as handed to the exporter.
// It only lives for the duration of one export call.
type Event struct {
	Title       string
	Description string

	// Date is the day of the event; any time-of-day is ignored.
	Date time.Time
}
