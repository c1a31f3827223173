package tool_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/hal9000y/workspace-agent/internal/tool"
	"github.com/hal9000y/workspace-agent/internal/validate"
)

type echoRequest struct {
	Text  string   `json:"text"`
	Times int64    `json:"times"`
	Tags  []string `json:"tags"`
}

func newEchoRegistry(t *testing.T, calls *int, handlerErr error) *tool.Registry {
	t.Helper()

	reg, err := tool.NewRegistry([]tool.Tool{{
		Name:        "echo",
		Description: "Echo text",
		Schema: tool.Schema{Params: []tool.Param{
			{Name: "text", Kind: tool.KindString, Required: true},
			{Name: "times", Kind: tool.KindInteger, Default: int64(1), Min: 1},
			{Name: "tags", Kind: tool.KindStringList},
		}},
		Handler: tool.Func(func(_ context.Context, in echoRequest) (any, error) {
			*calls++
			if handlerErr != nil {
				return nil, handlerErr
			}
			return in, nil
		}),
	}})
	require.NoError(t, err)

	return reg
}

func TestRegistryDispatch(t *testing.T) {
	calls := 0
	reg := newEchoRegistry(t, &calls, nil)
	ctx := context.Background()

	res, err := reg.Dispatch(ctx, "echo", map[string]any{"text": "hi", "tags": "one", "unknown": true})
	require.NoError(t, err)
	assert.Equal(t, echoRequest{Text: "hi", Times: 1, Tags: []string{"one"}}, res)
	assert.Equal(t, 1, calls)

	_, err = reg.Dispatch(ctx, "missing", nil)
	var unknown *tool.UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)

	_, err = reg.Dispatch(ctx, "echo", map[string]any{"times": 2})
	var vErr *validate.Error
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "text", vErr.Field)
	assert.Equal(t, 1, calls, "handler must not run on invalid input")
}

func TestRegistryExternalErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		operation string
		status    int
	}{
		{
			name:      "plain_error",
			err:       errors.New("boom"),
			operation: "echo",
		},
		{
			name:      "google_error",
			err:       fmt.Errorf("messages.List failed: %w", &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}),
			operation: "echo",
			status:    http.StatusForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			reg := newEchoRegistry(t, &calls, tc.err)

			_, err := reg.Dispatch(context.Background(), "echo", map[string]any{"text": "x"})
			var extErr *tool.ExternalServiceError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, tc.operation, extErr.Operation)
			assert.Equal(t, tc.status, extErr.Status)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	h := func(context.Context, map[string]any) (any, error) { return nil, nil }

	_, err := tool.NewRegistry([]tool.Tool{{Name: "a", Handler: h}, {Name: "a", Handler: h}})
	require.EqualError(t, err, `tool "a" registered twice`)

	_, err = tool.NewRegistry([]tool.Tool{{Name: "a"}})
	require.Error(t, err)
}

func TestWorkspaceSpecs(t *testing.T) {
	reg, err := tool.NewWorkspace(&googleSvcMock{}, nil, nil)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, s := range reg.Specs() {
		names = append(names, s.Name)
		assert.Equal(t, "object", s.Parameters["type"], s.Name)
		assert.NotEmpty(t, s.Description, s.Name)
	}

	assert.Equal(t, []string{
		"get_profile", "create_draft", "send_mail", "get_mail_list",
		"get_calendars", "get_my_calendar", "get_events", "post_event",
	}, names)
}
