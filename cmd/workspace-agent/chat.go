package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hal9000y/workspace-agent/internal/agent"
	"github.com/hal9000y/workspace-agent/internal/approval"
	"github.com/hal9000y/workspace-agent/internal/auth"
	"github.com/hal9000y/workspace-agent/internal/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ag, st, err := a.newAgent(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		mux := http.NewServeMux()
		mux.Handle("/oauth", a.oauthHandler())
		stopHTTP, _ := serveHTTP(a.logger, &http.Server{Handler: mux}, a.ln)
		defer stopHTTP()

		if _, err := a.token.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
			fmt.Printf("Authorize Google access first: %s?redirect=1\n", a.oauth.RedirectURL)
		}

		threadID, _ := cmd.Flags().GetString("thread")
		if threadID == "" {
			threadID = uuid.NewString()
		}

		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("glamour.NewTermRenderer failed: %w", err)
		}

		c := &chat{
			runner:   ag,
			store:    st,
			threadID: threadID,
			in:       bufio.NewScanner(os.Stdin),
			out:      os.Stdout,
			render:   r.Render,
		}

		return c.loop(ctx)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("thread", "", "Thread id to resume, a new one by default")
}

type runner interface {
	Run(ctx context.Context, threadID, query string) (*agent.Result, error)
}

type threadDeleter interface {
	Delete(ctx context.Context, threadID string) error
}

// chat is a line based REPL. Approval questions are read from the same input.
type chat struct {
	runner   runner
	store    threadDeleter
	threadID string
	in       *bufio.Scanner
	out      io.Writer
	render   func(string) (string, error)

	askMu   sync.Mutex
	start   sync.Once
	lines   chan string
	readErr error
}

func (c *chat) loop(ctx context.Context) error {
	fmt.Fprintf(c.out, "Thread %s. Type /reset to forget it, /exit to quit.\n", c.threadID)
	ctx = approval.WithAsker(ctx, approval.AskerFunc(c.ask))

	for {
		fmt.Fprint(c.out, "> ")
		line, ok := c.readLine(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return c.readErr
		}

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := c.store.Delete(ctx, c.threadID); err != nil && !errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(c.out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(c.out, "Thread cleared.")
			continue
		}

		res, err := c.runner.Run(ctx, c.threadID, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
			continue
		}

		c.print(res.Answer)
	}
}

func (c *chat) print(answer string) {
	if c.render != nil {
		if rendered, err := c.render(answer); err == nil {
			fmt.Fprint(c.out, rendered)
			return
		}
	}
	fmt.Fprintln(c.out, answer)
}

// ask prompts for y(es), n(o) or anything else to cancel, then for notes.
// A done ctx ends the wait with its error.
func (c *chat) ask(ctx context.Context, req approval.Request) (approval.Outcome, error) {
	c.askMu.Lock()
	defer c.askMu.Unlock()

	fmt.Fprintf(c.out, "\n%s\nConfirm? [y]es / [n]o / [d]ecline / anything else cancels: ", req.Message)
	answer, ok := c.readLine(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			fmt.Fprintln(c.out)
			return nil, err
		}
		return approval.Cancelled{Reason: "input closed"}, nil
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return approval.FromAction(approval.ActionAccept, true, ""), nil
	case "n", "no":
		fmt.Fprint(c.out, "Notes for the assistant (optional): ")
		notes, _ := c.readLine(ctx)
		return approval.FromAction(approval.ActionAccept, false, notes), nil
	case "d", "decline":
		return approval.FromAction(approval.ActionDecline, false, ""), nil
	default:
		return approval.FromAction(approval.ActionCancel, false, ""), nil
	}
}

// readLine waits for the next input line or for ctx. One goroutine scans the
// input for all reads.
func (c *chat) readLine(ctx context.Context) (string, bool) {
	c.start.Do(func() {
		c.lines = make(chan string)
		go c.scan()
	})

	select {
	case line, ok := <-c.lines:
		return line, ok
	case <-ctx.Done():
		return "", false
	}
}

func (c *chat) scan() {
	defer close(c.lines)

	for c.in.Scan() {
		c.lines <- strings.TrimSpace(c.in.Text())
	}
	c.readErr = c.in.Err()
}
