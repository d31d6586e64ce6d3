package client

import (
	"errors"

	internalerrors "github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/notify"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/shardqueue"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/types"
)

// ErrBackPressure is returned when the client's internal queue is full.
var ErrBackPressure = errors.New("back-pressure (queue full)")

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("client closed")

// IsBackPressure reports whether err is a back-pressure error.
func IsBackPressure(err error) bool { return errors.Is(err, ErrBackPressure) }

// Re-exported so callers compare against a single symbol.
var (
	ErrPersistence      = internalerrors.ErrPersistence
	ErrValidation       = internalerrors.ErrValidation
	ErrClassification   = internalerrors.ErrClassification
	ErrTransport        = internalerrors.ErrTransport
	ErrEmptyToken       = types.ErrEmptyToken
	ErrNotAuthenticated = notify.ErrNotAuthenticated
	ErrPermissionDenied = notify.ErrPermissionDenied
)

func submitError(err error) error {
	switch {
	case errors.Is(err, shardqueue.ErrQueueFull):
		return errors.Join(ErrBackPressure, err)
	case errors.Is(err, shardqueue.ErrExecutorClosed):
		return ErrClosed
	default:
		return err
	}
}
