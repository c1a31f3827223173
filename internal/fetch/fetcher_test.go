package fetch_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/workspace-agent/internal/fetch"
	"github.com/hal9000y/workspace-agent/internal/format"
)

type getterMock struct {
	GetMessageFunc func(ctx context.Context, msgID string) (*gmail.Message, error)
}

func (m *getterMock) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	return m.GetMessageFunc(ctx, msgID)
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func newMessage(id, subject, date, body string) *gmail.Message {
	return &gmail.Message{
		Id: id,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "Date", Value: date},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode(body)}},
			},
		},
	}
}

func TestFetchAllPartialFailure(t *testing.T) {
	getter := &getterMock{
		GetMessageFunc: func(_ context.Context, msgID string) (*gmail.Message, error) {
			if msgID == "B" {
				return nil, errors.New("simulated error: B")
			}
			return newMessage(msgID, "subject "+msgID, "Mon, 1 Jan 2024 10:00:00 +0000", "body "+msgID), nil
		},
	}

	results, err := fetch.New(getter).FetchAll(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, &fetch.Detail{
		ID:      "A",
		Subject: "subject A",
		Body:    "body A",
		Date:    "Mon, 1 Jan 2024 10:00:00",
	}, results["A"].Detail)
	assert.Equal(t, "body C", results["C"].Detail.Body)

	require.Error(t, results["B"].Err)
	assert.Nil(t, results["B"].Detail)
	assert.Contains(t, results["B"].Err.Error(), "simulated error: B")

	pf := results.PartialFailure()
	require.NotNil(t, pf)
	assert.Equal(t, []string{"A", "C"}, pf.Succeeded)
	assert.Contains(t, pf.Failed, "B")
	assert.Equal(t, "1 of 3 detail fetches failed: B", pf.Error())

	ordered := results.Ordered([]string{"C", "A", "B"})
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{ordered[0].ID, ordered[1].ID, ordered[2].ID})
}

func TestFetchAllKeySetEqualsRequest(t *testing.T) {
	var calls atomic.Int32
	getter := &getterMock{
		GetMessageFunc: func(_ context.Context, msgID string) (*gmail.Message, error) {
			calls.Add(1)
			return newMessage(msgID, "s", "d", "b"), nil
		},
	}

	results, err := fetch.New(getter).FetchAll(context.Background(), []string{"x", "y", "x"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.Nil(t, results.PartialFailure())

	empty, err := fetch.New(getter).FetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	getter := &getterMock{
		GetMessageFunc: func(_ context.Context, msgID string) (*gmail.Message, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return newMessage(msgID, "s", "d", "b"), nil
		},
	}

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("m-%02d", i)
	}

	results, err := fetch.New(getter, fetch.WithConcurrency(3)).FetchAll(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, results, 20)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestFetchAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	getter := &getterMock{
		GetMessageFunc: func(ctx context.Context, msgID string) (*gmail.Message, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	results, err := fetch.New(getter, fetch.WithConcurrency(1)).FetchAll(ctx, []string{"a", "b", "c"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestFetchAllRateLimited(t *testing.T) {
	getter := &getterMock{
		GetMessageFunc: func(_ context.Context, msgID string) (*gmail.Message, error) {
			return newMessage(msgID, "s", "d", "b"), nil
		},
	}

	start := time.Now()
	results, err := fetch.New(getter, fetch.WithRate(50, 1)).FetchAll(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestParseMessage(t *testing.T) {
	headers := []*gmail.MessagePartHeader{
		{Name: "Subject", Value: "Hi"},
		{Name: "Date", Value: " Tue, 2 Jan 2024 09:00:00 +0100"},
	}

	cases := []struct {
		name     string
		payload  *gmail.MessagePart
		expected *fetch.Detail
		errMsg   string
	}{
		{
			name: "nested_part",
			payload: &gmail.MessagePart{
				Headers: headers,
				Parts: []*gmail.MessagePart{{
					MimeType: "multipart/alternative",
					Body:     &gmail.MessagePartBody{},
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("nested body")}},
					},
				}},
			},
			expected: &fetch.Detail{ID: "m1", Subject: "Hi", Date: "Tue, 2 Jan 2024 09:00:00", Body: "nested body"},
		},
		{
			name: "single_part_padded",
			payload: &gmail.MessagePart{
				Headers:  headers,
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("ab"))},
			},
			expected: &fetch.Detail{ID: "m1", Subject: "Hi", Date: "Tue, 2 Jan 2024 09:00:00", Body: "ab"},
		},
		{
			name: "html_converted",
			payload: &gmail.MessagePart{
				Headers: headers,
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>Hello <b>there</b></p>")}},
				},
			},
			expected: &fetch.Detail{ID: "m1", Subject: "Hi", Date: "Tue, 2 Jan 2024 09:00:00", Body: "Hello there"},
		},
		{
			name:     "no_body",
			payload:  &gmail.MessagePart{Headers: headers},
			expected: &fetch.Detail{ID: "m1", Subject: "Hi", Date: "Tue, 2 Jan 2024 09:00:00"},
		},
		{
			name:    "missing_date",
			payload: &gmail.MessagePart{Headers: headers[:1]},
			errMsg:  "missing header: Date",
		},
		{
			name: "bad_base64",
			payload: &gmail.MessagePart{
				Headers: headers,
				Body:    &gmail.MessagePartBody{Data: "!!!"},
			},
			errMsg: "decodeBase64URL failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := fetch.ParseMessage(&gmail.Message{Id: "m1", Payload: tc.payload}, format.Converter{})
			if tc.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, d)
		})
	}
}
