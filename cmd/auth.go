package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/alka/internal/app"
	"github.com/papapumpkin/alka/internal/backend"
	"github.com/papapumpkin/alka/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the VNDB API token",
}

var authLoginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Validate and save a VNDB API token",
	Long: `Validates the token against VNDB and saves it with its owner.

The token may also be given through the ALKA_TOKEN environment variable
(or a .env file) when no argument is passed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := envToken()
		if len(args) == 1 {
			token = args[0]
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return errors.New("auth: no token given")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			info, err := a.Login(ctx, token)
			if err != nil {
				return authError(err)
			}
			p.Success(fmt.Sprintf("logged in as %s (%s)", info.Username, info.ID))
			return nil
		})
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App, p *ui.Printer) error {
			if err := a.Logout(); err != nil {
				return err
			}
			p.Success("logged out")
			return nil
		})
	},
}

var authCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the saved token is still valid",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			if !a.Settings.HasToken() {
				return errors.New("auth: not logged in")
			}
			info, err := a.CheckAuth(ctx)
			if err != nil {
				return authError(err)
			}
			p.Success(fmt.Sprintf("token valid for %s (%s)", info.Username, info.ID))
			return nil
		})
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authCheckCmd)
	rootCmd.AddCommand(authCmd)
}

// envToken reads ALKA_TOKEN through viper's environment binding.
func envToken() string {
	return viper.GetString("token")
}

// authError rewords a rejected token.
func authError(err error) error {
	if backend.KindOf(err) == backend.KindUnauthenticated {
		return fmt.Errorf("auth: token rejected by VNDB: %w", err)
	}
	return err
}
