package vehicle

import (
	"context"
	"time"
)

const (
	calendarColor    = "ff9a9cff"
	calendarUUID     = "333239059961778"
	defaultEventName = "Event name"
)

// CalendarEvent describes a single event to sync to the vehicle's calendar.
type CalendarEvent struct {
	Name     string
	Location string
	Start    time.Time
	End      time.Time

	// AccountName labels the calendar the event belongs to.
	AccountName string
	// PhoneName is the Bluetooth name of the phone the vehicle associates the calendar with.
	PhoneName string
}

type calendarEventData struct {
	AllDay    bool   `json:"allday"`
	Color     string `json:"color"`
	End       int64  `json:"end"`
	Start     int64  `json:"start"`
	Cancelled bool   `json:"cancelled"`
	Tentative bool   `json:"tentative"`
	Location  string `json:"location"`
	Name      string `json:"name"`
	Organizer string `json:"organizer"`
}

type calendar struct {
	Color  string              `json:"color"`
	Events []calendarEventData `json:"events"`
	Name   string              `json:"name"`
}

type calendarData struct {
	AccessDisabled bool       `json:"access_disabled"`
	Calendars      []calendar `json:"calendars"`
	PhoneName      string     `json:"phone_name"`
	UUID           string     `json:"uuid"`
}

// CalendarEntry is the body of command/upcoming_calendar_entries.
type CalendarEntry struct {
	CalendarData calendarData `json:"calendar_data"`
}

// NewCalendarEntry builds a single-event calendar payload. Zero Start or End times default to
// the current time and an empty Name defaults to "Event name". Times are sent as milliseconds
// since the Unix epoch.
func NewCalendarEntry(event CalendarEvent) *CalendarEntry {
	now := time.Now()
	if event.Start.IsZero() {
		event.Start = now
	}
	if event.End.IsZero() {
		event.End = now
	}
	if event.Name == "" {
		event.Name = defaultEventName
	}
	return &CalendarEntry{
		CalendarData: calendarData{
			Calendars: []calendar{
				{
					Color: calendarColor,
					Events: []calendarEventData{
						{
							Color:    calendarColor,
							End:      event.End.UnixMilli(),
							Start:    event.Start.UnixMilli(),
							Location: event.Location,
							Name:     event.Name,
						},
					},
					Name: event.AccountName,
				},
			},
			PhoneName: event.PhoneName,
			UUID:      calendarUUID,
		},
	}
}

// Calendar pushes entry to the vehicle.
func (v *Vehicle) Calendar(ctx context.Context, entry *CalendarEntry) (*CommandResult, error) {
	return v.command(ctx, "command/upcoming_calendar_entries", entry)
}
