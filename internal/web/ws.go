package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hal9000y/workspace-agent/internal/approval"
)

// Frame types exchanged over the websocket.
const (
	FrameQuery           = "query"
	FrameApproval        = "approval"
	FrameThread          = "thread"
	FrameAnswer          = "answer"
	FrameApprovalRequest = "approval_request"
	FrameError           = "error"
)

// queueSize bounds queries accepted while a previous one is still running.
const queueSize = 8

// Frame is one JSON message on the websocket. Plain text from the client is
// read as a query.
type Frame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func parseFrame(data []byte) Frame {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
		return Frame{Type: FrameQuery, Text: string(data)}
	}

	return f
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	threadID := r.URL.Query().Get("thread")
	if threadID == "" {
		threadID = uuid.NewString()
	}

	sess := &session{
		conn:     conn,
		runner:   s.runner,
		threadID: threadID,
		logger:   s.logger.With(zap.String("thread", threadID)),
		queries:  make(chan string, queueSize),
	}
	sess.broker = approval.NewBroker(sess.requestApproval)

	sess.serve(s.baseCtx)
}

// session serves one websocket connection bound to one thread. Queries run
// one at a time in arrival order; approval answers are read concurrently.
type session struct {
	conn     *websocket.Conn
	runner   Runner
	threadID string
	logger   *zap.Logger
	broker   *approval.Broker
	queries  chan string

	writeMu sync.Mutex
}

func (s *session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	s.logger.Info("websocket connected")

	if err := s.write(Frame{Type: FrameThread, ID: s.threadID}); err != nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.work(ctx)
	}()

	s.read()

	cancel()
	s.broker.CancelAll("connection closed")
	close(s.queries)
	wg.Wait()

	s.logger.Info("websocket closed")
}

func (s *session) read() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		f := parseFrame(data)
		switch f.Type {
		case FrameQuery:
			text := strings.TrimSpace(f.Text)
			if text == "" {
				continue
			}
			select {
			case s.queries <- text:
			default:
				_ = s.write(Frame{Type: FrameError, Text: "too many pending queries"})
			}

		case FrameApproval:
			out := approval.FromAction(f.Action, f.Confirm, f.Notes)
			if err := s.broker.Decide(f.ID, out); err != nil {
				_ = s.write(Frame{Type: FrameError, Text: err.Error()})
			}

		default:
			_ = s.write(Frame{Type: FrameError, Text: "unknown frame type " + f.Type})
		}
	}
}

func (s *session) work(ctx context.Context) {
	ctx = approval.WithAsker(ctx, s.broker)

	for q := range s.queries {
		if ctx.Err() != nil {
			return
		}

		res, err := s.runner.Run(ctx, s.threadID, q)
		if err != nil {
			s.logger.Warn("agent run failed", zap.Error(err))
			_ = s.write(Frame{Type: FrameError, Text: err.Error()})
			continue
		}

		_ = s.write(Frame{Type: FrameAnswer, Text: res.Answer})
	}
}

func (s *session) requestApproval(_ context.Context, req approval.Request) error {
	return s.write(Frame{Type: FrameApprovalRequest, ID: req.ID, Message: req.Message})
}

func (s *session) write(f Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(f); err != nil {
		s.logger.Debug("websocket write failed", zap.String("type", f.Type), zap.Error(err))
		return err
	}

	return nil
}
