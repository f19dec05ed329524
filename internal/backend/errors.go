package backend

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/papapumpkin/alka/internal/store"
	"github.com/papapumpkin/alka/internal/tracker"
	"github.com/papapumpkin/alka/internal/vndb"
)

// Kind classifies a backend failure for programmatic handling.
type Kind string

const (
	// KindNotFound indicates the requested game or title does not exist.
	KindNotFound Kind = "not_found"
	// KindNetwork indicates the catalog service could not be reached.
	KindNetwork Kind = "network"
	// KindRejected indicates the catalog service refused the request.
	KindRejected Kind = "rejected"
	// KindUnauthenticated indicates a missing or rejected catalog token.
	KindUnauthenticated Kind = "unauthenticated"
	// KindInvalid indicates a malformed argument.
	KindInvalid Kind = "invalid"
	// KindStorage indicates a local database failure.
	KindStorage Kind = "storage"
	// KindLaunch indicates the game process could not be started.
	KindLaunch Kind = "launch"
)

// Error is the structured failure returned by every backend command.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// Error renders the operation, kind and cause.
func (e *Error) Error() string {
	return fmt.Sprintf("backend: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a backend error, or "" for other errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// wrap classifies err for op, a local operation: causes that carry no
// recognisable kind are storage failures. A nil err stays nil.
func wrap(op string, err error) error {
	return wrapAs(op, KindStorage, err)
}

// wrapRemote classifies err for op, a catalog service call: causes that
// carry no recognisable kind are network failures.
func wrapRemote(op string, err error) error {
	return wrapAs(op, KindNetwork, err)
}

func wrapAs(op string, fallback Kind, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Op: op, Kind: classify(err, fallback), Err: err}
}

func classify(err error, fallback Kind) Kind {
	var (
		apiErr *vndb.APIError
		netErr net.Error
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tracker.ErrNotFound),
		errors.Is(err, ErrTitleNotFound):
		return KindNotFound
	case errors.Is(err, vndb.ErrUnauthorized):
		return KindUnauthenticated
	case errors.Is(err, tracker.ErrAlreadyRunning), errors.Is(err, tracker.ErrNotAFile):
		return KindLaunch
	case errors.As(err, &apiErr):
		if apiErr.Temporary() {
			return KindNetwork
		}
		return KindRejected
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	return fallback
}
