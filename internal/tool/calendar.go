package tool

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/hal9000y/workspace-agent/internal/gservice"
	"github.com/hal9000y/workspace-agent/internal/validate"
)

// PrimaryCalendar is the alias of the user's own calendar.
const PrimaryCalendar = "primary"

// EventTypes lists the event kinds accepted by get_events.
var EventTypes = []string{"birthday", "default", "focusTime", "fromGmail", "outOfOffice", "workingLocation"}

type calendarSvc interface {
	ListCalendars(ctx context.Context) (*calendar.CalendarList, error)
	GetCalendar(ctx context.Context, calendarID string) (*calendar.CalendarListEntry, error)
	ListEvents(ctx context.Context, calendarID string, f gservice.EventsFilter) (*calendar.Events, error)
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
}

type CalendarRequest struct {
	CalendarID string `json:"calendar_id"`
}

type CalendarSummary struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
	AccessRole  string `json:"access_role,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
}

type CalendarListResponse struct {
	Calendars []CalendarSummary `json:"calendars"`
}

type EventQuery struct {
	EventType   string `json:"event_types"`
	MaxResults  int64  `json:"max_results"`
	TimeMin     string `json:"time_min"`
	TimeMax     string `json:"time_max"`
	ShowDeleted bool   `json:"show_deleted"`
	CalendarID  string `json:"calendar_id"`
}

type EventCreate struct {
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Attendees  []string `json:"attendees"`
	Summary    string   `json:"summary"`
	CalendarID string   `json:"calendar_id"`
}

type EventSummary struct {
	ID        string   `json:"id"`
	Summary   string   `json:"summary,omitempty"`
	Status    string   `json:"status,omitempty"`
	EventType string   `json:"event_type,omitempty"`
	Start     string   `json:"start,omitempty"`
	End       string   `json:"end,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
	Link      string   `json:"link,omitempty"`
}

type EventListResponse struct {
	Events []EventSummary `json:"events"`
}

// NewCalendar creates the calendar tools.
func NewCalendar(svc calendarSvc) *Calendar {
	return &Calendar{svc: svc}
}

// Calendar implements the Google Calendar tools.
type Calendar struct {
	svc calendarSvc
}

func (c *Calendar) Tools() []Tool {
	calendarID := Param{Name: "calendar_id", Kind: KindString, Default: PrimaryCalendar, Description: "Calendar identifier, primary for the user's own calendar"}

	return []Tool{
		{
			Name:        "get_calendars",
			Title:       "List calendars",
			Description: "List the calendars of the signed-in user",
			Handler:     Func(c.GetCalendars),
		},
		{
			Name:        "get_my_calendar",
			Title:       "Get calendar",
			Description: "Get a single calendar",
			Schema:      Schema{Params: []Param{calendarID}},
			Handler:     Func(c.GetMyCalendar),
		},
		{
			Name:        "get_events",
			Title:       "List events",
			Description: "List calendar events, optionally within a UTC time window",
			Schema: Schema{Params: []Param{
				{Name: "event_types", Kind: KindString, Default: "default", Enum: EventTypes, Description: "Kind of events to list"},
				{Name: "max_results", Kind: KindInteger, Default: int64(10), Min: 1, Max: 2500, Description: "Maximum number of events"},
				{Name: "time_min", Kind: KindString, Rule: validate.Timestamp, Description: "Lower bound of event end time, YYYY-MM-DDTHH:MM:SSZ"},
				{Name: "time_max", Kind: KindString, Rule: validate.Timestamp, Description: "Upper bound of event start time, YYYY-MM-DDTHH:MM:SSZ"},
				{Name: "show_deleted", Kind: KindBoolean, Default: false, Description: "Include cancelled events"},
				calendarID,
			}},
			Handler: Func(c.GetEvents),
		},
		{
			Name:        "post_event",
			Title:       "Create event",
			Description: "Create a calendar event between two UTC timestamps",
			Schema: Schema{
				Params: []Param{
					{Name: "start_time", Kind: KindString, Required: true, Rule: validate.Timestamp, Description: "Start, YYYY-MM-DDTHH:MM:SSZ"},
					{Name: "end_time", Kind: KindString, Required: true, Rule: validate.Timestamp, Description: "End, YYYY-MM-DDTHH:MM:SSZ"},
					{Name: "attendees", Kind: KindStringList, Rule: validate.Email, Description: "Attendee mail addresses"},
					{Name: "summary", Kind: KindString, Description: "Event title"},
					calendarID,
				},
				Check: endAfterStart,
			},
			Handler: Func(c.PostEvent),
		},
	}
}

func endAfterStart(args map[string]any) error {
	start, _ := time.Parse(time.RFC3339, args["start_time"].(string))
	end, _ := time.Parse(time.RFC3339, args["end_time"].(string))
	if !end.After(start) {
		return validate.Errorf("end_time", "must be after start_time")
	}

	return nil
}

func (c *Calendar) GetCalendars(ctx context.Context, _ struct{}) (any, error) {
	list, err := c.svc.ListCalendars(ctx)
	if err != nil {
		return nil, external("calendarList.list", err)
	}

	res := CalendarListResponse{Calendars: make([]CalendarSummary, 0, len(list.Items))}
	for _, item := range list.Items {
		res.Calendars = append(res.Calendars, calendarSummary(item))
	}

	return res, nil
}

func (c *Calendar) GetMyCalendar(ctx context.Context, in CalendarRequest) (any, error) {
	entry, err := c.svc.GetCalendar(ctx, in.CalendarID)
	if err != nil {
		return nil, external("calendarList.get", err)
	}

	return calendarSummary(entry), nil
}

func (c *Calendar) GetEvents(ctx context.Context, in EventQuery) (any, error) {
	events, err := c.svc.ListEvents(ctx, in.CalendarID, gservice.EventsFilter{
		EventTypes:  []string{in.EventType},
		MaxResults:  in.MaxResults,
		TimeMin:     in.TimeMin,
		TimeMax:     in.TimeMax,
		ShowDeleted: in.ShowDeleted,
	})
	if err != nil {
		return nil, external("events.list", err)
	}

	res := EventListResponse{Events: make([]EventSummary, 0, len(events.Items))}
	for _, e := range events.Items {
		res.Events = append(res.Events, eventSummary(e))
	}

	return res, nil
}

func (c *Calendar) PostEvent(ctx context.Context, in EventCreate) (any, error) {
	event := &calendar.Event{
		Summary: in.Summary,
		Start:   &calendar.EventDateTime{DateTime: in.StartTime},
		End:     &calendar.EventDateTime{DateTime: in.EndTime},
	}
	for _, a := range in.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: a})
	}

	created, err := c.svc.InsertEvent(ctx, in.CalendarID, event)
	if err != nil {
		return nil, external("events.insert", err)
	}

	return eventSummary(created), nil
}

func calendarSummary(e *calendar.CalendarListEntry) CalendarSummary {
	return CalendarSummary{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		TimeZone:    e.TimeZone,
		AccessRole:  e.AccessRole,
		Primary:     e.Primary,
	}
}

func eventSummary(e *calendar.Event) EventSummary {
	s := EventSummary{
		ID:        e.Id,
		Summary:   e.Summary,
		Status:    e.Status,
		EventType: e.EventType,
		Start:     eventTime(e.Start),
		End:       eventTime(e.End),
		Link:      e.HtmlLink,
	}
	for _, a := range e.Attendees {
		s.Attendees = append(s.Attendees, a.Email)
	}

	return s
}

// eventTime prefers the timestamp and falls back to the all-day date.
func eventTime(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}

	return t.Date
}
