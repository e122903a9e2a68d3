package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/state"
)

var (
	issuesStatus string
	issuesSearch string
	issuesLimit  int
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List recent issues",
	Long: `List the most recent issues straight from the backend, newest first.

Filter by --status (Pending, "In Progress", Resolved) and --search, which
matches title and description case-insensitively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issuesRun(cmd)
	},
}

func init() {
	issuesCmd.Flags().StringVarP(&issuesStatus, "status", "s", "", "filter by status")
	issuesCmd.Flags().StringVarP(&issuesSearch, "search", "q", "", "search title and description")
	issuesCmd.Flags().IntVarP(&issuesLimit, "limit", "l", 0, "number of recent issues to read (default issues.page_size)")
	rootCmd.AddCommand(issuesCmd)
}

func issuesRun(cmd *cobra.Command) error {
	var status models.IssueStatus
	if issuesStatus != "" {
		st, err := models.ParseIssueStatus(issuesStatus)
		if err != nil {
			return err
		}
		status = st
	}
	limit := issuesLimit
	if limit <= 0 {
		limit = viper.GetInt("issues.page_size")
	}

	s, err := getStore(cmd.Context(), zap.NewNop())
	if err != nil {
		return err
	}
	defer closeStore()

	recent, err := s.ListRecentIssues(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	issues := make([]models.Issue, 0, len(recent))
	for _, issue := range recent {
		if issue != nil {
			issues = append(issues, *issue)
		}
	}
	ui.VerboseLog("Read %d issues", len(issues))

	return ui.IssueTable(state.Filter(issues, status, issuesSearch), time.Now())
}
