// Package gservice wraps the Gmail and Calendar REST clients behind an OAuth token.
package gservice

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUserID = "me"

// Scopes lists the OAuth scopes required by every Google call.
var Scopes = []string{
	gmail.GmailModifyScope,
	calendar.CalendarScope,
}

type tokenSource interface {
	OAuthToken() (*oauth2.Token, error)
}

// EventsFilter narrows an events listing.
type EventsFilter struct {
	EventTypes  []string
	MaxResults  int64
	TimeMin     string
	TimeMax     string
	ShowDeleted bool
}

// NewGoogle creates a Google wrapper that authenticates with tok.
func NewGoogle(cfg *oauth2.Config, tok tokenSource) *Google {
	return &Google{
		cfg: cfg,
		tok: tok,
	}
}

// Google gives access to the Gmail and Calendar APIs of the signed-in user.
type Google struct {
	cfg *oauth2.Config
	tok tokenSource

	// httpClient overrides the OAuth client, used by tests.
	httpClient *http.Client
	endpoint   string
}

// WithEndpoint points both services at a fake server using client.
func (g *Google) WithEndpoint(client *http.Client, endpoint string) *Google {
	g.httpClient = client
	g.endpoint = endpoint
	return g
}

func (g *Google) Profile(ctx context.Context) (*gmail.Profile, error) {
	svc, err := g.gmailSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("gmailSvc failed: %w", err)
	}

	profile, err := svc.Users.GetProfile(gmailUserID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("users.GetProfile failed: %w", err)
	}

	return profile, nil
}

// CreateDraft stores an RFC 2822 message, base64url encoded in raw, as a draft.
func (g *Google) CreateDraft(ctx context.Context, raw string) (*gmail.Draft, error) {
	svc, err := g.gmailSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("gmailSvc failed: %w", err)
	}

	draft, err := svc.Users.Drafts.Create(gmailUserID, &gmail.Draft{
		Message: &gmail.Message{Raw: raw},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drafts.Create failed: %w", err)
	}

	return draft, nil
}

// SendMessage sends an RFC 2822 message, base64url encoded in raw.
func (g *Google) SendMessage(ctx context.Context, raw string) (*gmail.Message, error) {
	svc, err := g.gmailSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("gmailSvc failed: %w", err)
	}

	msg, err := svc.Users.Messages.Send(gmailUserID, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("messages.Send failed: %w", err)
	}

	return msg, nil
}

func (g *Google) ListMessages(ctx context.Context, q string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error) {
	svc, err := g.gmailSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("gmailSvc failed: %w", err)
	}

	result, err := svc.Users.Messages.List(gmailUserID).
		Q(q).
		MaxResults(maxResults).
		IncludeSpamTrash(includeSpamTrash).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("messages.List failed: %w", err)
	}

	return result, nil
}

func (g *Google) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	svc, err := g.gmailSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("gmailSvc failed: %w", err)
	}

	msg, err := svc.Users.Messages.Get(gmailUserID, msgID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("messages.Get failed: %w", err)
	}

	return msg, nil
}

func (g *Google) ListCalendars(ctx context.Context) (*calendar.CalendarList, error) {
	svc, err := g.calendarSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendarSvc failed: %w", err)
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendarList.List failed: %w", err)
	}

	return list, nil
}

func (g *Google) GetCalendar(ctx context.Context, calendarID string) (*calendar.CalendarListEntry, error) {
	svc, err := g.calendarSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendarSvc failed: %w", err)
	}

	entry, err := svc.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendarList.Get failed: %w", err)
	}

	return entry, nil
}

func (g *Google) ListEvents(ctx context.Context, calendarID string, f EventsFilter) (*calendar.Events, error) {
	svc, err := g.calendarSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendarSvc failed: %w", err)
	}

	call := svc.Events.List(calendarID).ShowDeleted(f.ShowDeleted)
	if len(f.EventTypes) > 0 {
		call = call.EventTypes(f.EventTypes...)
	}
	if f.MaxResults > 0 {
		call = call.MaxResults(f.MaxResults)
	}
	if f.TimeMin != "" {
		call = call.TimeMin(f.TimeMin)
	}
	if f.TimeMax != "" {
		call = call.TimeMax(f.TimeMax)
	}

	events, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("events.List failed: %w", err)
	}

	return events, nil
}

func (g *Google) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	svc, err := g.calendarSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendarSvc failed: %w", err)
	}

	created, err := svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("events.Insert failed: %w", err)
	}

	return created, nil
}

func (g *Google) gmailSvc(ctx context.Context) (*gmail.Service, error) {
	opts, err := g.options(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}

func (g *Google) calendarSvc(ctx context.Context) (*calendar.Service, error) {
	opts, err := g.options(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar.NewService failed: %w", err)
	}

	return svc, nil
}

func (g *Google) options(ctx context.Context) ([]option.ClientOption, error) {
	if g.httpClient != nil {
		return []option.ClientOption{
			option.WithHTTPClient(g.httpClient),
			option.WithEndpoint(g.endpoint),
		}, nil
	}

	t, err := g.tok.OAuthToken()
	if err != nil {
		return nil, fmt.Errorf("tok.OAuthToken failed: %w", err)
	}

	return []option.ClientOption{option.WithHTTPClient(g.cfg.Client(ctx, t))}, nil
}
