package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `lanes keeps shared projects and their task boards in sync between everyone who can see them.

Core concepts:
- Principal: the signed-in user. Nothing but identity and navigation tools work while signed out.
- Project: owned by one principal, shared with contributors by email. You see a project if you own it or your email is listed.
- Board: three lanes per project: backlog, in-progress, done. New tasks start in the backlog.
- Pending: a result marked pending reflects a local write the store has not acknowledged yet.

Default workflow:
1) whoami; if signed out, sign_in or begin_email_link then complete_email_link.
2) list_projects (archived=true for the archive), get_project for details.
3) get_board to see the lanes; create_task and move_task to work them.
4) archive_project / restore_project keep every other field; delete_project also deletes the tasks.
5) sign_out ends every live view and returns the navigation decision.

Docs:
- lanes://docs/index
- lanes://docs/navigation
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "lanes://docs/index",
		Name:        "docs_index",
		Title:       "lanes docs index",
		Description: "Entry point: the tools, what they need and how errors are reported.",
		Content: `# lanes

## Tools

| Tool | Needs sign-in | Notes |
|------|---------------|-------|
| ` + "`whoami`" + ` | no | state is unknown, signed-out or signed-in |
| ` + "`sign_in`" + ` | no | runs the configured identity provider |
| ` + "`begin_email_link`" + ` / ` + "`complete_email_link`" + ` | no | one-time link, single use |
| ` + "`navigate`" + ` | no | applies the route guards |
| ` + "`list_projects`" + ` / ` + "`get_project`" + ` | yes | only projects you own or contribute to |
| ` + "`create_project`" + ` | yes | the store assigns the id; contributors are email addresses |
| ` + "`update_project`" + ` | yes | owner only |
| ` + "`archive_project`" + ` / ` + "`restore_project`" + ` | yes | only the archived flag changes |
| ` + "`delete_project`" + ` | yes | owner only; deletes every task first |
| ` + "`get_board`" + ` / ` + "`create_task`" + ` / ` + "`move_task`" + ` | yes | moving into the same lane writes nothing |
| ` + "`toggle_drawer`" + ` | no | reset on sign-out |

## Errors

Errors carry a code such as ` + "`NOT_SIGNED_IN`" + `, ` + "`PROJECT_NOT_FOUND`" + `, ` + "`NOT_OWNER`" + `, ` + "`INVALID_STATUS`" + `,
` + "`AUTH_EXPIRED_LINK`" + ` or ` + "`STORE_PERMISSION_DENIED`" + `. A rejected write is rolled back before the
error is returned, so a retry starts from the acknowledged state.
`,
	},
	{
		URI:         "lanes://docs/navigation",
		Name:        "docs_navigation",
		Title:       "Routes and guards",
		Description: "Which paths exist and where the guards send you.",
		Content: `# Routes

- ` + "`/login`" + `: only while signed out; signed-in callers land on /projects.
- ` + "`/projects`" + `: the project list (session required).
- ` + "`/contributors/active`" + ` and ` + "`/contributors/archived`" + `: the active and archived views; ` + "`/contributors`" + ` opens the active one.
- ` + "`/project/{id}`" + `: one project and its board (session required).
- ` + "`/`" + ` and unknown paths redirect to /projects.

A session-only path opened while signed out lands on /login with allowed=false.
Navigation waits until the persisted identity has been checked.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
