package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/campus/internal/app"
	"github.com/joescharf/campus/internal/theme"
	"github.com/joescharf/campus/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal client",
	Long: `Open the campus terminal client.

Sign in or register, report issues, and (as an admin) browse, search,
filter and triage the live issue list. Key hints are shown at the bottom.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tuiRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func tuiRun(cmd *cobra.Command) error {
	ctx := cmd.Context()
	dir := viper.GetString("state_dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// The alternate screen owns the terminal, so logs go to a file.
	logger := newLogger(filepath.Join(dir, "campus-tui.log"))
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	surface := tui.NewSurface()
	sess := a.NewSession(app.SessionOptions{
		ID:      "tui",
		Surface: surface,
		Prefs:   theme.NewFilePrefs(filepath.Join(dir, "prefs.yaml")),
	})
	defer sess.Close()

	return tui.Run(ctx, sess, surface)
}
