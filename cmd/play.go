package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/alka/internal/app"
	"github.com/papapumpkin/alka/internal/library"
	"github.com/papapumpkin/alka/internal/ui"
	"github.com/papapumpkin/alka/internal/update"
)

// pidFileName marks a running "alka play" so "alka stop" can reach it.
const pidFileName = "play.pid"

var playCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Launch a game and track play time until it exits",
	Long: `Launches the game and waits for its process to exit, adding the elapsed
minutes to its play time.

Interrupting alka (or running "alka stop") stops tracking without closing
the game; the minutes so far are recorded.

While the game runs, typing "u" and Enter checks for an alka update and "d"
dismisses the update notice.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop tracking the game launched by a running \"alka play\"",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(playCmd, stopCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withApp(cmd, func(ctx context.Context, a *app.App, p *ui.Printer) error {
		before, err := a.Entry(id)
		if err != nil {
			return err
		}

		exited := make(chan library.Snapshot, 1)
		var once sync.Once
		unsubscribe := a.Library.OnChange(func(s library.Snapshot) {
			if !s.IsRunning(id) {
				once.Do(func() { exited <- s })
			}
		})
		defer unsubscribe()

		if err := a.Library.Launch(ctx, id); err != nil {
			return err
		}

		pidPath := filepath.Join(a.Config.DataDir, pidFileName)
		if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			a.Logger().Printf("write %s: %v", pidPath, err)
		}
		defer os.Remove(pidPath)

		// Settings edits, Discord presence and silent update checks run
		// while the game does.
		bgCtx, stopBackground := context.WithCancel(ctx)
		bg := pool.New()
		defer func() {
			stopBackground()
			bg.Wait()
		}()
		bg.Go(func() {
			if err := a.WatchSettings(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger().Printf("watch settings: %v", err)
			}
		})
		if a.Presence != nil {
			bg.Go(func() { _ = a.RunPresence(bgCtx) })
		}
		if a.Updates != nil {
			unsubscribeUpdates := a.Updates.OnChange(func(s update.Session) {
				switch s.Status {
				case update.StatusAvailable, update.StatusUpToDate, update.StatusError:
					p.UpdateSession(s)
				}
			})
			defer unsubscribeUpdates()
			bg.Go(func() { _ = a.RunUpdates(bgCtx) })

			// Stdin is read until EOF; the goroutine ends with the process.
			in := bufio.NewReader(cmd.InOrStdin())
			go func() {
				_ = drain(in, func(line string) {
					if err := playKey(line, a.CheckForUpdates, a.DismissUpdate, p); err != nil {
						p.Error(err.Error())
					}
				})
			}()
		}

		p.Info(fmt.Sprintf("playing %s (interrupt to stop tracking)", before.Title))

		select {
		case s := <-exited:
			after, _ := s.Entry(id)
			p.Success(fmt.Sprintf("%s exited after %s; total %s",
				before.Title, ui.FormatPlayTime(after.PlayTime-before.PlayTime), ui.FormatPlayTime(after.PlayTime)))
			return nil
		case <-ctx.Done():
			minutes, err := a.Library.StopTracking(context.Background())
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("stopped tracking %s after %s", before.Title, ui.FormatPlayTime(minutes)))
			return nil
		}
	})
}

// playKey runs one line typed during "alka play": "u" queues a visible
// update check and "d" dismisses the update notice.
func playKey(line string, check, dismiss func() error, p *ui.Printer) error {
	switch strings.ToLower(line) {
	case "u", "update":
		if err := check(); err != nil {
			return err
		}
		p.Info("checking for updates")
	case "d", "dismiss":
		if err := dismiss(); err != nil {
			return err
		}
		p.Info("update notice dismissed")
	default:
		p.Info(`keys: "u" checks for updates, "d" dismisses the notice`)
	}
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(_ context.Context, a *app.App, p *ui.Printer) error {
		pidPath := filepath.Join(a.Config.DataDir, pidFileName)
		data, err := os.ReadFile(pidPath)
		if errors.Is(err, os.ErrNotExist) {
			p.Info("nothing is being tracked")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", pidPath, err)
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return fmt.Errorf("parse %s: %w", pidPath, err)
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find alka process %d: %w", pid, err)
		}
		if err := proc.Signal(os.Interrupt); err != nil {
			os.Remove(pidPath)
			return fmt.Errorf("signal alka process %d: %w", pid, err)
		}
		p.Success(fmt.Sprintf("asked alka process %d to stop tracking", pid))
		return nil
	})
}
