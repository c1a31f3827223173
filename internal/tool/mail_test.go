package tool_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/workspace-agent/internal/approval"
	"github.com/hal9000y/workspace-agent/internal/fetch"
	"github.com/hal9000y/workspace-agent/internal/tool"
	"github.com/hal9000y/workspace-agent/internal/validate"
)

func newMailMessage(id string) *gmail.Message {
	return &gmail.Message{
		Id: id,
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Report " + id},
				{Name: "Date", Value: "Fri, 5 Jan 2024 08:00:00 +0000"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("body " + id))}},
			},
		},
	}
}

func newMailRegistry(t *testing.T, svc *googleSvcMock) *tool.Registry {
	t.Helper()

	reg, err := tool.NewWorkspace(svc, fetch.New(svc), approval.NewGate())
	require.NoError(t, err)

	return reg
}

func TestGetMailList(t *testing.T) {
	var gotQuery string
	var gotMax int64
	svc := &googleSvcMock{
		ListMessagesFunc: func(_ context.Context, q string, maxResults int64, _ bool) (*gmail.ListMessagesResponse, error) {
			gotQuery, gotMax = q, maxResults
			return &gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "m-1"}, {Id: "m-2"}, {Id: "m-3"}}}, nil
		},
		GetMessageFunc: func(_ context.Context, msgID string) (*gmail.Message, error) {
			if msgID == "m-2" {
				return nil, fmt.Errorf("simulated error: %s", msgID)
			}
			return newMailMessage(msgID), nil
		},
	}
	reg := newMailRegistry(t, svc)

	res, err := reg.Dispatch(context.Background(), "get_mail_list", map[string]any{
		"recipients": []any{"a@x.com", "b@y.com"},
		"mail_state": "unread",
		"start_date": "2024/01/01",
	})
	require.NoError(t, err)

	assert.Equal(t, "(from:a@x.com OR from:b@y.com) is:unread in:inbox after:2024/01/01", gotQuery)
	assert.Equal(t, int64(10), gotMax)

	list := res.(tool.MailListResponse)
	assert.Equal(t, gotQuery, list.Query)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, []*fetch.Detail{
		{ID: "m-1", Subject: "Report m-1", Body: "body m-1", Date: "Fri, 5 Jan 2024 08:00:00"},
		{ID: "m-3", Subject: "Report m-3", Body: "body m-3", Date: "Fri, 5 Jan 2024 08:00:00"},
	}, list.Mails)
	require.Len(t, list.Failed, 1)
	assert.Equal(t, "m-2", list.Failed[0].ID)
	assert.Contains(t, list.Failed[0].Error, "simulated error: m-2")
	assert.Equal(t, "1 of 3 detail fetches failed: m-2", list.Partial)
}

func TestGetMailListValidation(t *testing.T) {
	called := false
	svc := &googleSvcMock{
		ListMessagesFunc: func(context.Context, string, int64, bool) (*gmail.ListMessagesResponse, error) {
			called = true
			return &gmail.ListMessagesResponse{}, nil
		},
	}
	reg := newMailRegistry(t, svc)

	cases := []struct {
		args  map[string]any
		field string
	}{
		{args: map[string]any{"start_date": "2024/1/5"}, field: "start_date"},
		{args: map[string]any{"end_date": "2024-01-05"}, field: "end_date"},
		{args: map[string]any{"folder": "spam"}, field: "folder"},
		{args: map[string]any{"mail_state": "archived"}, field: "mail_state"},
		{args: map[string]any{"recipients": "not-an-address"}, field: "recipients"},
		{args: map[string]any{"mail_subject": `say "hi"`}, field: "mail_subject"},
		{args: map[string]any{"max_result": 0}, field: "max_result"},
	}

	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			_, err := reg.Dispatch(context.Background(), "get_mail_list", tc.args)
			var vErr *validate.Error
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
	assert.False(t, called, "remote service must not be called on invalid input")
}

func TestGetMailListEmpty(t *testing.T) {
	svc := &googleSvcMock{
		ListMessagesFunc: func(_ context.Context, q string, _ int64, spam bool) (*gmail.ListMessagesResponse, error) {
			assert.Equal(t, "in:sent", q)
			assert.True(t, spam)
			return &gmail.ListMessagesResponse{}, nil
		},
	}

	res, err := newMailRegistry(t, svc).Dispatch(context.Background(), "get_mail_list", map[string]any{
		"folder":             "sent",
		"include_spam_trash": true,
	})
	require.NoError(t, err)
	assert.Equal(t, tool.MailListResponse{Query: "in:sent", Mails: []*fetch.Detail{}}, res)
}

func decodeRaw(t *testing.T, raw string) string {
	t.Helper()

	b, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)

	return string(b)
}

func TestCreateDraft(t *testing.T) {
	var raw string
	svc := &googleSvcMock{
		CreateDraftFunc: func(_ context.Context, r string) (*gmail.Draft, error) {
			raw = r
			return &gmail.Draft{Id: "d-1", Message: &gmail.Message{Id: "m-9"}}, nil
		},
	}

	res, err := newMailRegistry(t, svc).Dispatch(context.Background(), "create_draft", map[string]any{
		"mail_content": "See you at 10.",
		"mail_subject": "Meeting",
	})
	require.NoError(t, err)
	assert.Equal(t, tool.DraftResponse{DraftID: "d-1", MessageID: "m-9"}, res)

	msg := decodeRaw(t, raw)
	assert.NotContains(t, msg, "To:")
	assert.Contains(t, msg, "Subject: Meeting\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nSee you at 10."))
}

func TestSendMail(t *testing.T) {
	cases := []struct {
		name     string
		approval bool
		asker    approval.Asker
		sent     int
		status   string
	}{
		{name: "no_approval_flow", sent: 1, status: "sent"},
		{
			name:     "approved",
			approval: true,
			asker: approval.AskerFunc(func(_ context.Context, req approval.Request) (approval.Outcome, error) {
				if !strings.Contains(req.Message, "Recipient: bob@example.com") {
					return nil, errors.New("unexpected prompt: " + req.Message)
				}
				return approval.Accepted{Confirmed: true}, nil
			}),
			sent:   1,
			status: "sent",
		},
		{
			name:     "accepted_not_confirmed",
			approval: true,
			asker: approval.AskerFunc(func(context.Context, approval.Request) (approval.Outcome, error) {
				return approval.Accepted{Notes: "wrong person"}, nil
			}),
			status: "unconfirmed",
		},
		{
			name:     "declined",
			approval: true,
			asker: approval.AskerFunc(func(context.Context, approval.Request) (approval.Outcome, error) {
				return approval.Declined{}, nil
			}),
			status: "declined",
		},
		{
			name:     "cancelled",
			approval: true,
			asker: approval.AskerFunc(func(context.Context, approval.Request) (approval.Outcome, error) {
				return approval.Cancelled{Reason: "dismissed"}, nil
			}),
			status: "cancelled",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sent := 0
			svc := &googleSvcMock{
				SendMessageFunc: func(_ context.Context, raw string) (*gmail.Message, error) {
					sent++
					assert.Contains(t, decodeRaw(t, raw), "To: bob@example.com\r\n")
					return &gmail.Message{Id: "m-1", ThreadId: "t-1"}, nil
				},
			}

			ctx := context.Background()
			if tc.asker != nil {
				ctx = approval.WithAsker(ctx, tc.asker)
			}

			res, err := newMailRegistry(t, svc).Dispatch(ctx, "send_mail", map[string]any{
				"mail_content":  "Hello Bob",
				"mail_subject":  "Hi",
				"mail_dest":     "bob@example.com",
				"approval_flow": tc.approval,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.sent, sent)

			switch r := res.(type) {
			case tool.SendMailResponse:
				assert.Equal(t, tool.SendMailResponse{Status: "sent", MessageID: "m-1", ThreadID: "t-1"}, r)
			case *approval.Rejected:
				assert.Equal(t, tc.status, r.Status)
				assert.Equal(t, tool.MailNotSent, r.Message)
			default:
				t.Fatalf("unexpected result %T", res)
			}
		})
	}
}

func TestSendMailRejectsHeaderInjection(t *testing.T) {
	reg := newMailRegistry(t, &googleSvcMock{})

	_, err := reg.Dispatch(context.Background(), "send_mail", map[string]any{
		"mail_content": "x",
		"mail_subject": "Hi\r\nBcc: eve@example.com",
		"mail_dest":    "bob@example.com",
	})
	var vErr *validate.Error
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "mail_subject", vErr.Field)
}
