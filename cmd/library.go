package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/alka/internal/app"
	"github.com/papapumpkin/alka/internal/ui"
)

var libraryCmd = &cobra.Command{
	Use:     "library",
	Aliases: []string{"lib"},
	Short:   "Manage the local game library",
}

var libraryListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List games under the saved sort and visibility preferences",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLibraryList,
}

var libraryAddCmd = &cobra.Command{
	Use:   "add <executable>...",
	Short: "Add executables to the library",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLibraryAdd,
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a game and its play history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			if err := a.Library.Remove(ctx, args[0]); err != nil {
				return err
			}
			p.Success("removed " + args[0])
			return nil
		})
	},
}

var libraryHideCmd = &cobra.Command{
	Use:   "hide <id>",
	Short: "Hide a game from the default listing",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetHidden(cmd, args[0], true) },
}

var libraryUnhideCmd = &cobra.Command{
	Use:   "unhide <id>",
	Short: "Show a hidden game again",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetHidden(cmd, args[0], false) },
}

var libraryLinkCmd = &cobra.Command{
	Use:   "link <id> <catalog-id>",
	Short: "Link a game to a VNDB title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			e, err := a.Link(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("%s linked to %s (%s)", e.ID, e.CatalogID, e.Title))
			return nil
		})
	},
}

var libraryFinishCmd = &cobra.Command{
	Use:   "finish <id>",
	Short: "Mark a game finished",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			if err := a.SetFinished(ctx, args[0], !undo); err != nil {
				return err
			}
			if undo {
				p.Success(args[0] + " marked unfinished")
			} else {
				p.Success(args[0] + " marked finished")
			}
			return nil
		})
	},
}

var libraryStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show play time per day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			e, totals, err := a.Stats(ctx, args[0], days)
			if err != nil {
				return err
			}
			p.Stats(e, totals)
			return nil
		})
	},
}

func init() {
	libraryFinishCmd.Flags().Bool("undo", false, "mark unfinished instead")
	libraryStatsCmd.Flags().Int("days", 14, "number of days to show")

	libraryCmd.AddCommand(libraryListCmd, libraryAddCmd, libraryRemoveCmd, libraryHideCmd,
		libraryUnhideCmd, libraryLinkCmd, libraryFinishCmd, libraryStatsCmd)
	rootCmd.AddCommand(libraryCmd)
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	var query string
	if len(args) == 1 {
		query = args[0]
	}
	return withApp(cmd, func(_ context.Context, a *app.App, p *ui.Printer) error {
		p.Library(a.View(query), a.Library.Running())
		return nil
	})
}

func runLibraryAdd(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
		for _, path := range args {
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", path, err)
			}
			e, err := a.Library.AddLocal(ctx, abs)
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("added %s as %s", e.Title, e.ID))
		}
		return nil
	})
}

func runSetHidden(cmd *cobra.Command, id string, hidden bool) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
		if err := a.Library.SetHidden(ctx, id, hidden); err != nil {
			return err
		}
		if hidden {
			p.Success(id + " hidden")
		} else {
			p.Success(id + " visible")
		}
		return nil
	})
}
