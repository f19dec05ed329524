//go:build windows

package discord

import (
	"context"
	"io"
	"os"
	"strconv"
)

// dialIPC opens the first \\.\pipe\discord-ipc-N named pipe.
func dialIPC(ctx context.Context) (io.ReadWriteCloser, error) {
	for i := 0; i < 10; i++ {
		f, err := os.OpenFile(`\\.\pipe\discord-ipc-`+strconv.Itoa(i), os.O_RDWR, 0)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrNotRunning
}
