package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/alka/internal/config"
	"github.com/papapumpkin/alka/internal/telemetry"
	"github.com/papapumpkin/alka/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "View the recorded launcher events",
	Long: `Reads and formats the JSONL event stream in the data directory.

With --follow (-f), watches the file for new events (like tail -f).`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	eventsCmd.Flags().String("kind", "", "only show events of this kind")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, _ []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	kind, _ := cmd.Flags().GetString("kind")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path := cfg.EventsPath()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if !cfg.Telemetry.Enabled {
			return fmt.Errorf("events: recording is disabled (telemetry.enabled)")
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "(no events recorded yet)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("events: open %s: %w", path, err)
	}
	defer f.Close()

	p := newPrinter(cmd)
	show := func(line string) {
		printEvent(p, cmd.ErrOrStderr(), line, kind)
	}

	reader := bufio.NewReader(f)
	if err := drain(reader, show); err != nil {
		return fmt.Errorf("events: read %s: %w", path, err)
	}
	if !follow {
		return nil
	}

	ctx, cancel := setupSignalContext()
	defer cancel()
	return tailFollow(ctx, reader, path, show)
}

// drain hands every complete line available in r to fn.
func drain(r *bufio.Reader, fn func(string)) error {
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			fn(line)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// tailFollow watches path with fsnotify and passes appended lines to fn
// until ctx is done.
func tailFollow(ctx context.Context, r *bufio.Reader, path string, fn func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("events: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("events: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			if err := drain(r, fn); err != nil {
				return fmt.Errorf("events: read %s: %w", path, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("events: watch %s: %w", path, err)
		}
	}
}

// printEvent decodes one JSONL line and prints it unless it is filtered out.
// Undecodable lines are echoed to errOut.
func printEvent(p *ui.Printer, errOut io.Writer, line, kind string) {
	var ev telemetry.Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		fmt.Fprintf(errOut, "??? %s\n", line)
		return
	}
	if kind != "" && ev.Kind != kind {
		return
	}
	p.Event(ev)
}
