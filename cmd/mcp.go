package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/campus/internal/app"
	"github.com/joescharf/campus/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

The server signs in with mcp.email / mcp.password (or CAMPUS_MCP_EMAIL
and CAMPUS_MCP_PASSWORD). Configure a client with:

  {
    "mcpServers": {
      "campus": { "command": "campus", "args": ["mcp"] }
    }
  }

Available tools: campus_list_issues, campus_issue_stats,
campus_report_issue, campus_update_issue_status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sess := a.NewSession(app.SessionOptions{ID: "mcp"})
	defer sess.Close()

	srv := mcp.NewServer(sess, mcp.Credentials{
		Email:    viper.GetString("mcp.email"),
		Password: viper.GetString("mcp.password"),
	}, logger, buildVersion)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Connect(connectCtx); err != nil {
		return err
	}
	return srv.ServeStdio(ctx)
}
