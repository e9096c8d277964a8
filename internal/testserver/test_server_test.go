package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "%s returned an error result", name)
	if out == nil {
		return
	}
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestEndToEnd_EmailLinkSignInAndBoard(t *testing.T) {
	ts := New(t, "t0ken", identity.Principal{ID: "u1", Email: "a@x.com"})
	session := ts.Connect(t)

	var sent struct {
		Sent  bool   `json:"sent"`
		Email string `json:"email"`
	}
	callTool(t, session, "begin_email_link", map[string]any{"email": "B@x.com"}, &sent)
	require.True(t, sent.Sent)
	require.Equal(t, "b@x.com", sent.Email)

	link, ok := ts.Mailbox.Link("b@x.com")
	require.True(t, ok)
	resp, err := http.Get(link)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Links are single use.
	resp, err = http.Get(link)
	require.NoError(t, err)
	resp.Body.Close()
	require.NotEqual(t, http.StatusOK, resp.StatusCode)

	var who struct {
		State     string             `json:"state"`
		Principal identity.Principal `json:"principal"`
	}
	callTool(t, session, "whoami", nil, &who)
	require.Equal(t, "signed-in", who.State)
	require.Equal(t, identity.PrincipalIDForEmail("b@x.com"), who.Principal.ID)

	var proj struct {
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
	}
	callTool(t, session, "create_project", map[string]any{"title": "Site"}, &proj)
	p1 := proj.Project.ID
	require.NotEmpty(t, p1)

	var created struct {
		Task struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"task"`
	}
	callTool(t, session, "create_task", map[string]any{"project_id": p1, "title": "Draft"}, &created)
	require.Equal(t, "backlog", created.Task.Status)

	callTool(t, session, "move_task", map[string]any{"project_id": p1, "task_id": created.Task.ID, "to": "in-progress"}, nil)

	var board struct {
		Backlog    []json.RawMessage `json:"backlog"`
		InProgress []struct {
			ID    string `json:"id"`
			Moved bool   `json:"moved"`
		} `json:"in_progress"`
	}
	callTool(t, session, "get_board", map[string]any{"project_id": p1}, &board)
	require.Empty(t, board.Backlog)
	require.Len(t, board.InProgress, 1)
	require.True(t, board.InProgress[0].Moved)

	var count int
	require.NoError(t, ts.DB.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection = ?`, "projects/"+p1+"/todos").Scan(&count))
	require.Equal(t, 1, count)

	callTool(t, session, "delete_project", map[string]any{"id": p1}, nil)
	require.NoError(t, ts.DB.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count))
	require.Zero(t, count)
}

func TestEndToEnd_SessionsHaveSeparateIdentities(t *testing.T) {
	ts := New(t, "t0ken", identity.Principal{ID: "u1", Email: "a@x.com"})
	first := ts.Connect(t)
	second := ts.Connect(t)

	var who struct {
		State string `json:"state"`
	}
	callTool(t, first, "sign_in", nil, &who)
	require.Equal(t, "signed-in", who.State)

	callTool(t, second, "whoami", nil, &who)
	require.Equal(t, "signed-out", who.State)

	callTool(t, second, "sign_in", nil, nil)
	callTool(t, first, "sign_out", nil, nil)
	callTool(t, second, "whoami", nil, &who)
	require.Equal(t, "signed-in", who.State)
	require.Equal(t, 2, ts.Pool.Len())
}

func TestEndToEnd_RejectsUnknownToken(t *testing.T) {
	ts := New(t, "t0ken", identity.Principal{ID: "u1", Email: "a@x.com"})

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.Server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
