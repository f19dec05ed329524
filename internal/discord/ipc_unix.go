//go:build !windows

package discord

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// dialIPC connects to the first discord-ipc-N socket in the runtime or
// temp directory.
func dialIPC(ctx context.Context) (io.ReadWriteCloser, error) {
	dir := "/tmp"
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			dir = v
			break
		}
	}
	var d net.Dialer
	for i := 0; i < 10; i++ {
		path := filepath.Join(dir, "discord-ipc-"+strconv.Itoa(i))
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrNotRunning
}
