package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/alka/internal/app"
	"github.com/papapumpkin/alka/internal/filter"
	"github.com/papapumpkin/alka/internal/settings"
	"github.com/papapumpkin/alka/internal/ui"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change library view and display preferences",
	Long: `Without flags, prints the current preferences. Flags change and save them.

Sort keys: title, lastPlayed, playTime. Directions: asc, desc.`,
	Args: cobra.NoArgs,
	RunE: runPrefs,
}

func init() {
	prefsCmd.Flags().String("sort", "", "sort key (title, lastPlayed, playTime)")
	prefsCmd.Flags().String("dir", "", "sort direction (asc, desc)")
	prefsCmd.Flags().Bool("hidden", false, "include hidden games in listings")
	prefsCmd.Flags().Bool("blur", false, "blur suggestive or violent covers")
	prefsCmd.Flags().Float64("blur-threshold", 0, "image rating (0 to 2) at which covers are blurred")
	prefsCmd.Flags().Bool("spoilers", false, "show spoiler traits and characters")
	prefsCmd.Flags().Bool("presence", false, "show the running game on your Discord profile")
	prefsCmd.Flags().StringSlice("presence-buttons", nil, "Discord buttons, at most two shown (vndb, profile, github)")
	rootCmd.AddCommand(prefsCmd)
}

func runPrefs(cmd *cobra.Command, _ []string) error {
	var (
		sortKey   filter.SortKey
		direction filter.Direction
		err       error
	)
	if v, _ := cmd.Flags().GetString("sort"); v != "" {
		if sortKey, err = filter.ParseSortKey(v); err != nil {
			return err
		}
	}
	if v, _ := cmd.Flags().GetString("dir"); v != "" {
		if direction, err = filter.ParseDirection(v); err != nil {
			return err
		}
	}
	buttons, _ := cmd.Flags().GetStringSlice("presence-buttons")
	presenceButtons, err := parsePresenceButtons(buttons)
	if err != nil {
		return err
	}
	threshold, _ := cmd.Flags().GetFloat64("blur-threshold")
	if cmd.Flags().Changed("blur-threshold") && (threshold <= 0 || threshold > 2) {
		return fmt.Errorf("prefs: blur threshold must be in (0, 2], got %v", threshold)
	}

	return withApp(cmd, func(_ context.Context, a *app.App, p *ui.Printer) error {
		changed := cmd.Flags().Changed
		if changed("sort") || changed("dir") || changed("hidden") {
			_, err := a.SetPreferences(func(prefs *filter.Preferences) {
				if sortKey != "" {
					prefs.SortKey = sortKey
				}
				if direction != "" {
					prefs.Direction = direction
				}
				if changed("hidden") {
					prefs.ShowHidden, _ = cmd.Flags().GetBool("hidden")
				}
			})
			if err != nil {
				return err
			}
		}
		if changed("presence") || changed("presence-buttons") {
			err := a.Settings.Update(func(s *settings.Settings) {
				if changed("presence") {
					s.Presence.Enabled, _ = cmd.Flags().GetBool("presence")
				}
				if changed("presence-buttons") {
					presenceButtons.Enabled = s.Presence.Enabled
					s.Presence = presenceButtons
				}
			})
			if err != nil {
				return err
			}
		}
		if changed("blur") || changed("blur-threshold") || changed("spoilers") {
			err := a.Settings.Update(func(s *settings.Settings) {
				if changed("blur") {
					s.Display.BlurNSFW, _ = cmd.Flags().GetBool("blur")
				}
				if changed("blur-threshold") {
					s.Display.BlurThreshold = threshold
				}
				if changed("spoilers") {
					s.Display.ShowSpoilers, _ = cmd.Flags().GetBool("spoilers")
				}
			})
			if err != nil {
				return err
			}
		}

		s := a.Settings.Get()
		p.Info(fmt.Sprintf("sort:           %s %s", s.Library.SortKey, s.Library.Direction))
		p.Info(fmt.Sprintf("show hidden:    %t", s.Library.ShowHidden))
		p.Info(fmt.Sprintf("blur covers:    %t (threshold %.1f)", s.Display.BlurNSFW, s.Display.BlurThreshold))
		p.Info(fmt.Sprintf("show spoilers:  %t", s.Display.ShowSpoilers))
		p.Info(fmt.Sprintf("discord:        %t (buttons: %s)", s.Presence.Enabled, formatPresenceButtons(s.Presence)))
		return nil
	})
}

// parsePresenceButtons maps button names onto the presence switches.
func parsePresenceButtons(names []string) (settings.Presence, error) {
	var p settings.Presence
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "vndb":
			p.ButtonCatalogPage = true
		case "profile":
			p.ButtonProfile = true
		case "github":
			p.ButtonProject = true
		case "", "none":
		default:
			return settings.Presence{}, fmt.Errorf("prefs: unknown presence button %q (want vndb, profile, github)", name)
		}
	}
	return p, nil
}

func formatPresenceButtons(p settings.Presence) string {
	var names []string
	if p.ButtonCatalogPage {
		names = append(names, "vndb")
	}
	if p.ButtonProfile {
		names = append(names, "profile")
	}
	if p.ButtonProject {
		names = append(names, "github")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
