// Package discord speaks the local Discord IPC protocol far enough to set
// and clear a rich presence activity.
//
// A frame is a little-endian uint32 opcode, a little-endian uint32 payload
// length and a JSON payload. The client sends a handshake, waits for the
// READY dispatch, then exchanges one command frame per call.
package discord

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Opcodes.
const (
	opHandshake uint32 = 0
	opFrame     uint32 = 1
	opClose     uint32 = 2
)

// MaxButtons is the most buttons Discord shows on an activity.
const MaxButtons = 2

// maxPayload bounds a response frame.
const maxPayload = 64 << 10

var (
	// ErrNotRunning is returned by Dial when no Discord client is listening.
	ErrNotRunning = errors.New("discord: no client listening")
	// ErrHandshake is returned when the client does not answer the
	// handshake with READY.
	ErrHandshake = errors.New("discord: handshake rejected")
)

// Activity is a rich presence activity.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
}

// Timestamps drives the elapsed-time counter. Start is unix seconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets names the images shown beside the activity. LargeImage may be an
// external URL.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

// Button is a labelled link.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// CommandError is an ERROR dispatch returned for a command.
type CommandError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error renders the code and message.
func (e *CommandError) Error() string {
	return fmt.Sprintf("discord: command error %d: %s", e.Code, e.Message)
}

// Client is one IPC connection. Calls are serialized.
type Client struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
	pid  int
}

type options struct {
	dial func(ctx context.Context) (io.ReadWriteCloser, error)
	pid  int
}

// Option configures Dial.
type Option func(*options)

// WithConn replaces the platform socket lookup with dial.
func WithConn(dial func(ctx context.Context) (io.ReadWriteCloser, error)) Option {
	return func(o *options) { o.dial = dial }
}

// WithPID sets the process id activities are attributed to.
func WithPID(pid int) Option {
	return func(o *options) { o.pid = pid }
}

// Dial connects to the local Discord client and performs the handshake for
// appID.
func Dial(ctx context.Context, appID string, opts ...Option) (*Client, error) {
	o := options{dial: dialIPC, pid: os.Getpid()}
	for _, opt := range opts {
		opt(&o)
	}
	conn, err := o.dial(ctx)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, pid: o.pid}

	var ready struct {
		Cmd  string `json:"cmd"`
		Evt  string `json:"evt"`
		Data struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	err = c.roundTrip(ctx, opHandshake, map[string]any{"v": 1, "client_id": appID}, &ready)
	if err == nil && ready.Evt != "READY" {
		err = fmt.Errorf("%w: %s %s", ErrHandshake, ready.Evt, ready.Data.Message)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// SetActivity shows a on the user's profile.
func (c *Client) SetActivity(ctx context.Context, a Activity) error {
	if len(a.Buttons) > MaxButtons {
		a.Buttons = a.Buttons[:MaxButtons]
	}
	return c.setActivity(ctx, &a)
}

// ClearActivity removes the shown activity.
func (c *Client) ClearActivity(ctx context.Context) error {
	return c.setActivity(ctx, nil)
}

func (c *Client) setActivity(ctx context.Context, a *Activity) error {
	req := struct {
		Cmd   string `json:"cmd"`
		Nonce string `json:"nonce"`
		Args  struct {
			PID      int       `json:"pid"`
			Activity *Activity `json:"activity"`
		} `json:"args"`
	}{Cmd: "SET_ACTIVITY", Nonce: uuid.NewString()}
	req.Args.PID = c.pid
	req.Args.Activity = a

	var resp struct {
		Evt  string          `json:"evt"`
		Data json.RawMessage `json:"data"`
	}
	if err := c.roundTrip(ctx, opFrame, req, &resp); err != nil {
		return err
	}
	if resp.Evt == "ERROR" {
		ce := &CommandError{}
		if err := json.Unmarshal(resp.Data, ce); err != nil {
			return fmt.Errorf("discord: decode error dispatch: %w", err)
		}
		return ce
	}
	return nil
}

// Close tells Discord the connection is ending and closes it.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = writeFrame(c.conn, opClose, []byte("{}"))
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, op uint32, req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("discord: encode: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.conn.(interface{ SetDeadline(time.Time) error }); ok {
		deadline, _ := ctx.Deadline()
		_ = d.SetDeadline(deadline)
	}
	if err := writeFrame(c.conn, op, payload); err != nil {
		return err
	}
	for {
		rop, body, err := readFrame(c.conn)
		if err != nil {
			return err
		}
		switch rop {
		case opClose:
			return fmt.Errorf("discord: connection closed by client: %s", body)
		case opFrame:
			if err := json.Unmarshal(body, resp); err != nil {
				return fmt.Errorf("discord: decode response: %w", err)
			}
			return nil
		}
		// Ping and pong frames carry nothing for the caller.
	}
}

func writeFrame(w io.Writer, op uint32, payload []byte) error {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], op)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("discord: write frame: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) (uint32, []byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("discord: read frame header: %w", err)
	}
	op := binary.LittleEndian.Uint32(header[0:4])
	n := binary.LittleEndian.Uint32(header[4:8])
	if n > maxPayload {
		return 0, nil, fmt.Errorf("discord: frame of %d bytes exceeds %d", n, maxPayload)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("discord: read frame body: %w", err)
	}
	return op, body, nil
}
