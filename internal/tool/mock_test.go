package tool_test

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/workspace-agent/internal/gservice"
)

type googleSvcMock struct {
	ProfileFunc       func(ctx context.Context) (*gmail.Profile, error)
	CreateDraftFunc   func(ctx context.Context, raw string) (*gmail.Draft, error)
	SendMessageFunc   func(ctx context.Context, raw string) (*gmail.Message, error)
	ListMessagesFunc  func(ctx context.Context, q string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error)
	GetMessageFunc    func(ctx context.Context, msgID string) (*gmail.Message, error)
	ListCalendarsFunc func(ctx context.Context) (*calendar.CalendarList, error)
	GetCalendarFunc   func(ctx context.Context, calendarID string) (*calendar.CalendarListEntry, error)
	ListEventsFunc    func(ctx context.Context, calendarID string, f gservice.EventsFilter) (*calendar.Events, error)
	InsertEventFunc   func(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
}

func (m *googleSvcMock) Profile(ctx context.Context) (*gmail.Profile, error) {
	return m.ProfileFunc(ctx)
}

func (m *googleSvcMock) CreateDraft(ctx context.Context, raw string) (*gmail.Draft, error) {
	return m.CreateDraftFunc(ctx, raw)
}

func (m *googleSvcMock) SendMessage(ctx context.Context, raw string) (*gmail.Message, error) {
	return m.SendMessageFunc(ctx, raw)
}

func (m *googleSvcMock) ListMessages(ctx context.Context, q string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error) {
	return m.ListMessagesFunc(ctx, q, maxResults, includeSpamTrash)
}

func (m *googleSvcMock) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	return m.GetMessageFunc(ctx, msgID)
}

func (m *googleSvcMock) ListCalendars(ctx context.Context) (*calendar.CalendarList, error) {
	return m.ListCalendarsFunc(ctx)
}

func (m *googleSvcMock) GetCalendar(ctx context.Context, calendarID string) (*calendar.CalendarListEntry, error) {
	return m.GetCalendarFunc(ctx, calendarID)
}

func (m *googleSvcMock) ListEvents(ctx context.Context, calendarID string, f gservice.EventsFilter) (*calendar.Events, error) {
	return m.ListEventsFunc(ctx, calendarID, f)
}

func (m *googleSvcMock) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	return m.InsertEventFunc(ctx, calendarID, event)
}

func connect(ctx context.Context, t *testing.T, server *mcp.Server, opts *mcp.ClientOptions) *mcp.ClientSession {
	t.Helper()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, opts)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}
