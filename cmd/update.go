package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/alka/internal/app"
	"github.com/papapumpkin/alka/internal/ui"
	"github.com/papapumpkin/alka/internal/update"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for and install alka updates",
}

var updateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the update manifest for a newer version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUpdates(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			err := a.Updates.Check(ctx, false)
			p.UpdateSession(a.Updates.Snapshot())
			return err
		})
	},
}

var updateInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and stage the newest version",
	Long: `Checks for a newer version and, when one exists, downloads it, verifies
its checksum and stages it in the data directory. Interrupting cancels the
download.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUpdates(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			if err := a.Updates.Check(ctx, false); err != nil {
				p.UpdateSession(a.Updates.Snapshot())
				return err
			}
			s := a.Updates.Snapshot()
			if s.Status != update.StatusAvailable {
				p.UpdateSession(s)
				return nil
			}
			meta := *s.Pending
			p.UpdateSession(s)

			unsubscribe := a.Updates.OnChange(func(s update.Session) {
				if s.Status == update.StatusDownloading {
					p.UpdateProgress(s)
				}
			})
			err := a.Updates.Download(ctx)
			unsubscribe()
			p.UpdateProgressDone()
			if err != nil {
				p.UpdateSession(a.Updates.Snapshot())
				return err
			}
			staged, size, statErr := a.Staged(meta)
			if statErr != nil {
				a.Logger().Printf("%v", statErr)
			}
			p.Downloaded(staged, size)
			p.UpdateSession(a.Updates.Snapshot())
			return nil
		})
	},
}

func init() {
	updateCmd.AddCommand(updateCheckCmd, updateInstallCmd)
	rootCmd.AddCommand(updateCmd)
}

// withUpdates is withApp for sessions with an update manifest configured.
func withUpdates(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, p *ui.Printer) error) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
		if a.Updates == nil {
			return errors.Join(app.ErrUpdatesDisabled, errors.New("set update.manifest_url to enable updates"))
		}
		return fn(ctx, a, p)
	})
}
