package calendar

import "time"

// DefaultReminderDuration is the length of a new reminder.
const DefaultReminderDuration = time.Hour

// NewReminder builds a one-hour timed event starting at start in loc.
func NewReminder(summary, location string, start time.Time, loc *time.Location) EventInput {
	return EventInput{
		Summary:  summary,
		Location: location,
		Start:    At(start, loc),
		End:      At(start.Add(DefaultReminderDuration), loc),
	}
}

// Reschedule moves prev to start and keeps its duration. All-day or
// unparsable events get DefaultReminderDuration.
func Reschedule(prev Event, summary, location string, start time.Time, loc *time.Location) EventInput {
	d := DefaultReminderDuration
	if prev.Start.DateTime != "" && prev.End.DateTime != "" {
		s, errStart := prev.Start.Time()
		e, errEnd := prev.End.Time()
		if errStart == nil && errEnd == nil && !e.Before(s) {
			d = e.Sub(s)
		}
	}
	return EventInput{
		Summary:  summary,
		Location: location,
		Start:    At(start, loc),
		End:      At(start.Add(d), loc),
	}
}
