// Package mcp exposes a campus session as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/app"
	"github.com/joescharf/campus/internal/controller"
	"github.com/joescharf/campus/internal/gateway"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/state"
	"github.com/joescharf/campus/internal/view"
)

// Credentials sign the tool session in.
type Credentials struct {
	Email    string
	Password string
}

// Server wraps one session and exposes its actions as MCP tools.
type Server struct {
	sess    *app.Session
	creds   Credentials
	log     *zap.Logger
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(sess *app.Session, creds Credentials, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{sess: sess, creds: creds, log: logger, version: version}
}

// Connect starts the session and signs in, waiting until the signed-in
// state (and, for admins, the first issues snapshot) has arrived.
func (s *Server) Connect(ctx context.Context) error {
	if err := s.sess.Start(ctx); err != nil {
		return err
	}
	if s.creds.Email == "" {
		return nil
	}
	// The auth resolver can still sign the user out after Login returns
	// (deactivated profile); its error notice may be replaced by the login
	// toast before we look, so record it as it is raised.
	var (
		mu     sync.Mutex
		denied string
	)
	stop := s.sess.Notes.OnChange(func(n *notify.Notification) {
		if n != nil && n.Kind == notify.KindError {
			mu.Lock()
			denied = n.Message
			mu.Unlock()
		}
	})
	defer stop()

	if err := s.sess.Controller.Login(ctx, s.creds.Email, s.creds.Password); err != nil {
		return fmt.Errorf("sign in as %s: %s", s.creds.Email, s.errorText("Login", err))
	}
	var reason string
	err := waitFor(ctx, func() bool {
		m := s.sess.Model()
		if m.LoggedIn {
			return !m.IssuesPending
		}
		mu.Lock()
		reason = denied
		mu.Unlock()
		return reason != ""
	})
	if err != nil {
		return err
	}
	if reason != "" {
		return fmt.Errorf("sign in as %s: %s", s.creds.Email, reason)
	}
	return nil
}

func waitFor(ctx context.Context, cond func() bool) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("campus", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.issueStatsTool())
	srv.AddTool(s.reportIssueTool())
	srv.AddTool(s.updateIssueStatusTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// errorText is the user-facing message for a failed action, worded from err
// the way the controller words its notification. Errors from outside the
// gateway (a recovered panic) fall back to the visible error notification.
func (s *Server) errorText(op string, err error) string {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		if n := s.sess.Notes.Current(); n != nil && n.Kind == notify.KindError {
			return n.Message
		}
		return err.Error()
	}
	if ge.Code == "" && (ge.Kind == gateway.KindValidation || ge.Kind == gateway.KindAuthorization) {
		return ge.Message()
	}
	switch op {
	case "ReportIssue":
		return controller.IssueMessage(err, controller.MsgSaveFailed)
	case "ChangeStatus":
		return controller.IssueMessage(err, controller.MsgUpdateFailed)
	}
	return controller.AuthMessage(op, err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// requireAdmin returns a tool error unless the session is an admin.
func (s *Server) requireAdmin() *mcp.CallToolResult {
	sess := s.sess.Session()
	if !sess.LoggedIn() {
		return mcp.NewToolResultError("not signed in; configure mcp.email and mcp.password")
	}
	if sess.Role != models.RoleAdmin {
		return mcp.NewToolResultError("only admins can read the issues collection")
	}
	return nil
}

type issueOut struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ImageURL      string `json:"image_url,omitempty"`
	Status        string `json:"status"`
	ReporterEmail string `json:"reporter_email,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
	UpdatedBy     string `json:"updated_by,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// campus_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_list_issues",
		mcp.WithDescription("List the most recent campus issues, newest first. Optionally filter by status and a case-insensitive search over title and description. Requires an admin account."),
		mcp.WithString("status", mcp.Description("Status filter: Pending, In Progress, Resolved (also pending, in-progress, in_progress)")),
		mcp.WithString("search", mcp.Description("Search term matched against title and description")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireAdmin(); res != nil {
		return res, nil
	}

	var status models.IssueStatus
	if v := request.GetString("status", ""); v != "" {
		st, err := models.ParseIssueStatus(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", v)), nil
		}
		status = st
	}
	search := request.GetString("search", "")

	issues := state.Filter(s.sess.Snapshot().Issues, status, search)
	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		st := issue.Status
		if st == "" {
			st = models.IssueStatusPending
		}
		out[i] = issueOut{
			ID:            issue.ID,
			Title:         issue.Title,
			Description:   issue.Description,
			ImageURL:      issue.ImageURL,
			Status:        string(st),
			ReporterEmail: issue.ReporterEmail,
			CreatedAt:     formatTime(issue.CreatedAt),
			UpdatedAt:     formatTime(issue.UpdatedAt),
			UpdatedBy:     issue.UpdatedBy,
		}
	}
	return jsonResult(out)
}

// campus_issue_stats
func (s *Server) issueStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_issue_stats",
		mcp.WithDescription("Count the recent campus issues by status. Requires an admin account."),
	)
	return tool, s.handleIssueStats
}

func (s *Server) handleIssueStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireAdmin(); res != nil {
		return res, nil
	}
	st := view.ComputeStats(s.sess.Snapshot().Issues)
	return jsonResult(map[string]int{
		"total":       st.Total,
		"pending":     st.Pending,
		"in_progress": st.InProgress,
		"resolved":    st.Resolved,
	})
}

// campus_report_issue
func (s *Server) reportIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_report_issue",
		mcp.WithDescription("Report a new campus issue as the signed-in user. Title 3-100 characters, description 10-1000 characters."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What is wrong and where")),
		mcp.WithString("image_url", mcp.Description("Optional link to a photo")),
	)
	return tool, s.handleReportIssue
}

func (s *Server) handleReportIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}

	form := controller.IssueForm{
		Title:       title,
		Description: description,
		ImageURL:    request.GetString("image_url", ""),
	}
	if err := s.sess.Guard("mcp.report", func() error { return s.sess.Controller.ReportIssue(ctx, form) }); err != nil {
		return mcp.NewToolResultError(s.errorText("ReportIssue", err)), nil
	}
	return jsonResult(map[string]string{"result": controller.MsgReported})
}

// campus_update_issue_status
func (s *Server) updateIssueStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_update_issue_status",
		mcp.WithDescription("Move an issue to a new status. Requires an admin account."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: Pending, In Progress, Resolved")),
	)
	return tool, s.handleUpdateIssueStatus
}

func (s *Server) handleUpdateIssueStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	if err := s.sess.Guard("mcp.status", func() error { return s.sess.Controller.ChangeStatus(ctx, id, status) }); err != nil {
		return mcp.NewToolResultError(s.errorText("ChangeStatus", err)), nil
	}
	st, _ := models.ParseIssueStatus(status)
	return jsonResult(map[string]string{"id": id, "status": string(st)})
}
