package web_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/workspace-agent/internal/agent"
	"github.com/hal9000y/workspace-agent/internal/approval"
	"github.com/hal9000y/workspace-agent/internal/web"
)

type runnerMock struct {
	RunFunc func(ctx context.Context, threadID, query string) (*agent.Result, error)
}

func (m *runnerMock) Run(ctx context.Context, threadID, query string) (*agent.Result, error) {
	return m.RunFunc(ctx, threadID, query)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) web.Frame {
	t.Helper()

	var f web.Frame
	require.NoError(t, conn.ReadJSON(&f))

	return f
}

func TestIndexAndMounts(t *testing.T) {
	h := web.NewHandler(&runnerMock{}, web.WithMount("/oauth", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "<title>Workspace Agent</title>")

	resp, err = http.Get(srv.URL + "/oauth")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestWebsocketQueries(t *testing.T) {
	runner := &runnerMock{RunFunc: func(_ context.Context, threadID, query string) (*agent.Result, error) {
		if query == "fail" {
			return nil, agent.ErrStepLimit
		}
		return &agent.Result{Answer: threadID + ": " + query}, nil
	}}
	srv := httptest.NewServer(web.NewHandler(runner))
	defer srv.Close()

	conn := dial(t, srv, "?thread=t-42")
	assert.Equal(t, web.Frame{Type: web.FrameThread, ID: "t-42"}, readFrame(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plain text")))
	assert.Equal(t, web.Frame{Type: web.FrameAnswer, Text: "t-42: plain text"}, readFrame(t, conn))

	require.NoError(t, conn.WriteJSON(web.Frame{Type: web.FrameQuery, Text: "json query"}))
	assert.Equal(t, web.Frame{Type: web.FrameAnswer, Text: "t-42: json query"}, readFrame(t, conn))

	require.NoError(t, conn.WriteJSON(web.Frame{Type: web.FrameQuery, Text: "fail"}))
	assert.Equal(t, web.Frame{Type: web.FrameError, Text: "step limit reached"}, readFrame(t, conn))

	require.NoError(t, conn.WriteJSON(web.Frame{Type: "bogus"}))
	assert.Equal(t, web.FrameError, readFrame(t, conn).Type)
}

func TestWebsocketNewThread(t *testing.T) {
	srv := httptest.NewServer(web.NewHandler(&runnerMock{}))
	defer srv.Close()

	f := readFrame(t, dial(t, srv, ""))
	assert.Equal(t, web.FrameThread, f.Type)
	assert.Len(t, f.ID, 36)
}

func TestWebsocketApproval(t *testing.T) {
	cases := []struct {
		name     string
		answer   web.Frame
		expected approval.Outcome
	}{
		{
			name:     "confirmed",
			answer:   web.Frame{Type: web.FrameApproval, Action: approval.ActionAccept, Confirm: true},
			expected: approval.Accepted{Confirmed: true},
		},
		{
			name:     "unconfirmed_with_notes",
			answer:   web.Frame{Type: web.FrameApproval, Action: approval.ActionAccept, Notes: "fix subject"},
			expected: approval.Accepted{Notes: "fix subject"},
		},
		{
			name:     "declined",
			answer:   web.Frame{Type: web.FrameApproval, Action: approval.ActionDecline},
			expected: approval.Declined{},
		},
		{
			name:     "cancelled",
			answer:   web.Frame{Type: web.FrameApproval, Action: approval.ActionCancel},
			expected: approval.Cancelled{Reason: "dismissed by user"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := make(chan approval.Outcome, 1)
			runner := &runnerMock{RunFunc: func(ctx context.Context, _, _ string) (*agent.Result, error) {
				out, err := approval.AskerFrom(ctx).Ask(ctx, approval.Request{Message: "Send the mail?"})
				if err != nil {
					return nil, err
				}
				got <- out
				return &agent.Result{Answer: out.String()}, nil
			}}
			srv := httptest.NewServer(web.NewHandler(runner))
			defer srv.Close()

			conn := dial(t, srv, "?thread=t-1")
			readFrame(t, conn)

			require.NoError(t, conn.WriteJSON(web.Frame{Type: web.FrameQuery, Text: "send it"}))

			req := readFrame(t, conn)
			assert.Equal(t, web.FrameApprovalRequest, req.Type)
			assert.Equal(t, "Send the mail?", req.Message)
			require.NotEmpty(t, req.ID)

			answer := tc.answer
			answer.ID = req.ID
			require.NoError(t, conn.WriteJSON(answer))

			assert.Equal(t, tc.expected, <-got)
			assert.Equal(t, web.Frame{Type: web.FrameAnswer, Text: tc.expected.String()}, readFrame(t, conn))
		})
	}
}

func TestWebsocketUnknownApproval(t *testing.T) {
	srv := httptest.NewServer(web.NewHandler(&runnerMock{}))
	defer srv.Close()

	conn := dial(t, srv, "?thread=t-1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(web.Frame{Type: web.FrameApproval, ID: "nope", Action: approval.ActionAccept}))
	assert.Equal(t, web.Frame{Type: web.FrameError, Text: `no pending approval "nope"`}, readFrame(t, conn))
}

func TestWebsocketCloseCancelsApproval(t *testing.T) {
	got := make(chan approval.Outcome, 1)
	asked := make(chan struct{})
	runner := &runnerMock{RunFunc: func(ctx context.Context, _, _ string) (*agent.Result, error) {
		close(asked)
		out, err := approval.AskerFrom(ctx).Ask(ctx, approval.Request{Message: "Send?"})
		if err != nil {
			got <- approval.Cancelled{Reason: err.Error()}
			return nil, err
		}
		got <- out
		return &agent.Result{}, nil
	}}
	srv := httptest.NewServer(web.NewHandler(runner))
	defer srv.Close()

	conn := dial(t, srv, "?thread=t-1")
	readFrame(t, conn)
	require.NoError(t, conn.WriteJSON(web.Frame{Type: web.FrameQuery, Text: "send"}))
	<-asked
	readFrame(t, conn)
	require.NoError(t, conn.Close())

	select {
	case out := <-got:
		assert.IsType(t, approval.Cancelled{}, out)
	case <-time.After(5 * time.Second):
		t.Fatal("pending approval was not cancelled")
	}
}

func TestWebsocketBaseContextEndsSessions(t *testing.T) {
	runErr := make(chan error, 1)
	asked := make(chan struct{})
	runner := &runnerMock{RunFunc: func(ctx context.Context, _, _ string) (*agent.Result, error) {
		close(asked)
		_, err := approval.AskerFrom(ctx).Ask(ctx, approval.Request{Message: "Send?"})
		runErr <- err
		return nil, err
	}}

	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(web.NewHandler(runner, web.WithBaseContext(base)))
	defer srv.Close()

	conn := dial(t, srv, "?thread=t-1")
	readFrame(t, conn)
	require.NoError(t, conn.WriteJSON(web.Frame{Type: web.FrameQuery, Text: "send"}))
	<-asked
	assert.Equal(t, web.FrameApprovalRequest, readFrame(t, conn).Type)

	cancel()

	select {
	case err := <-runErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run outlived the base context")
	}

	// The server side closes the socket; reads fail before the deadline.
	var err error
	for err == nil {
		var f web.Frame
		err = conn.ReadJSON(&f)
	}
	var nErr net.Error
	assert.False(t, errors.As(err, &nErr) && nErr.Timeout(), "connection still open: %v", err)
}
