package calendar

import (
	"fmt"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

const dateLayout = "2006-01-02"

// EventTime is either a timed instant (DateTime plus TimeZone) or an
// all-day date.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
	Date     string `json:"date,omitempty"`
}

// At returns a timed EventTime in loc. A nil loc means UTC. time.Local has
// no IANA name, so its TimeZone is left empty and the offset in DateTime
// is authoritative.
func At(t time.Time, loc *time.Location) EventTime {
	if loc == nil {
		loc = time.UTC
	}
	et := EventTime{DateTime: t.In(loc).Format(time.RFC3339)}
	if loc != time.Local {
		et.TimeZone = loc.String()
	}
	return et
}

// On returns an all-day EventTime.
func On(t time.Time) EventTime {
	return EventTime{Date: t.Format(dateLayout)}
}

// IsZero reports whether neither form is set.
func (t EventTime) IsZero() bool {
	return t.DateTime == "" && t.Date == ""
}

// AllDay reports whether t is a date without a time of day.
func (t EventTime) AllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// Time parses t. All-day dates resolve to midnight UTC.
func (t EventTime) Time() (time.Time, error) {
	switch {
	case t.DateTime != "":
		return time.Parse(time.RFC3339, t.DateTime)
	case t.Date != "":
		return time.Parse(dateLayout, t.Date)
	default:
		return time.Time{}, fmt.Errorf("event time is empty")
	}
}

func (t EventTime) toAPI() *calendar.EventDateTime {
	if t.IsZero() {
		return nil
	}
	return &calendar.EventDateTime{DateTime: t.DateTime, TimeZone: t.TimeZone, Date: t.Date}
}

func eventTimeFromAPI(dt *calendar.EventDateTime) EventTime {
	if dt == nil {
		return EventTime{}
	}
	return EventTime{DateTime: dt.DateTime, TimeZone: dt.TimeZone, Date: dt.Date}
}

// Event is a calendar event as returned by the provider.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
	Status      string    `json:"status,omitempty"`
}

func eventFromAPI(e *calendar.Event) Event {
	return Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       eventTimeFromAPI(e.Start),
		End:         eventTimeFromAPI(e.End),
		HTMLLink:    e.HtmlLink,
		Status:      e.Status,
	}
}

// EventInput holds the fields sent on create and update. Empty fields are
// omitted from the request body; an update replaces the event with what
// is supplied.
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       EventTime
	End         EventTime
}

func (in EventInput) toAPI() *calendar.Event {
	return &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       in.Start.toAPI(),
		End:         in.End.toAPI(),
	}
}

// ListOptions bounds a listing. Zero bounds default to the current month
// and a zero MaxResults to DefaultMaxResults.
type ListOptions struct {
	Start      time.Time
	End        time.Time
	MaxResults int64
}
