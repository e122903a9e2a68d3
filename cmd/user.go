package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/auth"
	"github.com/joescharf/campus/internal/output"
	"github.com/joescharf/campus/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
	Long: `Manage campus accounts.

deactivate/activate flip the profile's active flag: a deactivated user can
still sign in but is signed straight back out with a notice.
disable/enable block the account at the auth provider: sign-in fails.`,
}

var userShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show an account and its profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userShowRun(cmd.Context(), args[0])
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate <email>",
	Short: "Mark a user's profile inactive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userSetActiveRun(cmd.Context(), args[0], false)
	},
}

var userActivateCmd = &cobra.Command{
	Use:   "activate <email>",
	Short: "Mark a user's profile active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userSetActiveRun(cmd.Context(), args[0], true)
	},
}

var userDisableCmd = &cobra.Command{
	Use:   "disable <email>",
	Short: "Disable an account at the auth provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userSetDisabledRun(cmd.Context(), args[0], true)
	},
}

var userEnableCmd = &cobra.Command{
	Use:   "enable <email>",
	Short: "Re-enable a disabled account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userSetDisabledRun(cmd.Context(), args[0], false)
	},
}

func init() {
	userCmd.AddCommand(userShowCmd, userDeactivateCmd, userActivateCmd, userDisableCmd, userEnableCmd)
	rootCmd.AddCommand(userCmd)
}

func lookupUID(ctx context.Context, s store.Store, email string) (string, error) {
	acct, err := s.GetAccountByEmail(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("no account for %s", email)
	}
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", email, err)
	}
	return acct.UID, nil
}

func userShowRun(ctx context.Context, email string) error {
	s, err := getStore(ctx, zap.NewNop())
	if err != nil {
		return err
	}
	defer closeStore()

	acct, err := s.GetAccountByEmail(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no account for %s", email)
	}
	if err != nil {
		return fmt.Errorf("look up %s: %w", email, err)
	}

	table := ui.Table([]string{"Field", "Value"})
	_ = table.Append([]string{"UID", acct.UID})
	_ = table.Append([]string{"Email", acct.Email})
	login := output.Green("enabled")
	if acct.Disabled {
		login = output.Red("disabled")
	}
	_ = table.Append([]string{"Sign-in", login})

	profile, err := s.GetProfile(ctx, acct.UID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_ = table.Append([]string{"Profile", "(none; created as student on next sign-in)"})
	case err != nil:
		return fmt.Errorf("load profile: %w", err)
	default:
		_ = table.Append([]string{"Role", output.RoleColor(profile.Role)})
		_ = table.Append([]string{"Profile", output.ActiveColor(profile.IsActive)})
	}
	return table.Render()
}

func userSetActiveRun(ctx context.Context, email string, active bool) error {
	s, err := getStore(ctx, zap.NewNop())
	if err != nil {
		return err
	}
	defer closeStore()

	uid, err := lookupUID(ctx, s, email)
	if err != nil {
		return err
	}
	if err := s.SetProfileActive(ctx, uid, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s has no profile yet", email)
		}
		return fmt.Errorf("update profile: %w", err)
	}
	ui.Success("%s is now %s", email, output.ActiveColor(active))
	return nil
}

func userSetDisabledRun(ctx context.Context, email string, disabled bool) error {
	s, err := getStore(ctx, zap.NewNop())
	if err != nil {
		return err
	}
	defer closeStore()

	p := auth.NewProvider(s)
	if _, err := p.SetDisabled(ctx, email, disabled); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if disabled {
		ui.Success("%s can no longer sign in", email)
	} else {
		ui.Success("%s can sign in again", email)
	}
	return nil
}
