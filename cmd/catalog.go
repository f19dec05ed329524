package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/alka/internal/app"
	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Aliases: []string{"vndb"},
	Short:   "Browse VNDB and manage your list",
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search titles by name",
	Long: `Searches VNDB titles by name.

With --interactive, each line read from stdin replaces the query; searches
run after typing pauses and stale results are discarded.`,
	RunE: runCatalogSearch,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <catalog-id>",
	Short: "Show a title's details and your list entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			d, err := a.OpenDetail(ctx, args[0], force)
			return showDetail(p, d, err)
		})
	},
}

var catalogCharactersCmd = &cobra.Command{
	Use:   "characters <catalog-id>",
	Short: "Show a title's characters grouped by role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			d, err := a.OpenDetail(ctx, args[0], force)
			if d.State.Detail == nil && len(d.State.Characters) == 0 {
				return err
			}
			if err != nil {
				p.Error(err.Error())
			}
			p.Characters(d.Groups, a.Settings.Get().Display.ShowSpoilers)
			return nil
		})
	},
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh [catalog-id]",
	Short: "Re-fetch one title bypassing the cache, or drop cached responses",
	Long: `Re-fetches a title from VNDB, bypassing the response cache. The cached
copy is replaced only when the fetch succeeds.

With --purge the title's cached responses are dropped instead; --all drops
every cached response.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogRefresh,
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status <catalog-id> <label>",
	Short: "Set your list status (Playing, Finished, Stalled, Dropped, Wishlist, Blacklist)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, err := catalog.ParseStatusLabel(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			res, err := a.Catalog.SetStatus(ctx, args[0], label)
			return reportMutation(p, a, fmt.Sprintf("status set to %s", label), res, err)
		})
	},
}

var catalogVoteCmd = &cobra.Command{
	Use:   "vote <catalog-id> <vote>",
	Short: "Vote on a title (1.0 to 10.0)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vote, err := parseVote(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			res, err := a.Catalog.SetVote(ctx, args[0], vote)
			return reportMutation(p, a, fmt.Sprintf("vote set to %s", args[1]), res, err)
		})
	},
}

var catalogUnvoteCmd = &cobra.Command{
	Use:   "unvote <catalog-id>",
	Short: "Remove your vote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
			res, err := a.Catalog.RemoveVote(ctx, args[0])
			return reportMutation(p, a, "vote removed", res, err)
		})
	},
}

func init() {
	catalogSearchCmd.Flags().BoolP("interactive", "i", false, "read queries from stdin as you type")
	catalogShowCmd.Flags().Bool("force", false, "bypass the response cache")
	catalogCharactersCmd.Flags().Bool("force", false, "bypass the response cache")
	catalogRefreshCmd.Flags().Bool("all", false, "drop every cached response")
	catalogRefreshCmd.Flags().Bool("purge", false, "drop the title's cached responses without re-fetching")

	catalogCmd.AddCommand(catalogSearchCmd, catalogShowCmd, catalogCharactersCmd, catalogRefreshCmd,
		catalogStatusCmd, catalogVoteCmd, catalogUnvoteCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogSearch(cmd *cobra.Command, args []string) error {
	interactive, _ := cmd.Flags().GetBool("interactive")
	return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
		blur := a.Settings.Get().BlurPolicy()
		if !interactive {
			results, err := a.Catalog.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			p.SearchResults(results, blur)
			return nil
		}

		d := a.NewSearch(ctx, func(query string, results []catalog.SearchResult) {
			p.Info(fmt.Sprintf("results for %q:", query))
			p.SearchResults(results, blur)
		})
		defer d.Stop()

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			d.Input(scanner.Text())
		}
		d.Wait()
		return scanner.Err()
	})
}

func runCatalogRefresh(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if !all && len(args) == 0 {
		return fmt.Errorf("catalog refresh: give a catalog id or --all")
	}
	return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
		if all {
			n, err := a.Backend.ClearAllCache(ctx)
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("dropped %d cached response(s)", n))
			return nil
		}
		if purge, _ := cmd.Flags().GetBool("purge"); purge {
			if err := a.Purge(ctx, args[0]); err != nil {
				return err
			}
			p.Success(fmt.Sprintf("dropped cached responses for %s", args[0]))
			return nil
		}
		d, err := a.Refresh(ctx, args[0])
		return showDetail(p, d, err)
	})
}

// showDetail prints whatever was loaded; a failure is fatal only when
// nothing was.
func showDetail(p *ui.Printer, d app.Detail, err error) error {
	if d.State.Detail == nil {
		if err == nil {
			err = fmt.Errorf("no detail loaded")
		}
		return err
	}
	if err != nil {
		p.Error(err.Error())
	}
	p.Detail(d.State.Detail, d.State.User, d.State.UserLoaded, d.Blur)
	return nil
}

// reportMutation prints the outcome of a list mutation. A mutation that
// applied but could not be confirmed is reported, not failed.
func reportMutation(p *ui.Printer, a *app.App, what string, res catalog.MutationResult, err error) error {
	switch {
	case res.Applied && res.Confirmed:
		p.Success(what)
	case res.Applied:
		p.Success(what)
		p.Error(fmt.Sprintf("could not re-read your list entry: %v", err))
		return nil
	default:
		return err
	}
	st := a.Catalog.State()
	if st.UserLoaded {
		status := "not on list"
		if s, ok := st.User.Status(); ok {
			status = s.String()
		}
		p.Info(fmt.Sprintf("list entry: %s, vote %s", status, st.User.VoteString()))
	}
	return nil
}

// parseVote accepts the 1 to 10 display scale ("7.5") and returns the
// catalog's 10 to 100 scale.
func parseVote(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", catalog.ErrInvalidVote, s)
	}
	vote := int(f*10 + 0.5)
	if vote < catalog.MinVote || vote > catalog.MaxVote {
		return 0, fmt.Errorf("%w: %s", catalog.ErrInvalidVote, s)
	}
	return vote, nil
}
