package client

import (
	"context"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/shardqueue"
)

// executor abstracts the serial job runner shared by session writes and the
// notification dispatcher.
type executor interface {
	Submit(context.Context, string, shardqueue.Job) error
	Barrier(context.Context, string) error
	Stop()
}

// sessionKey serializes Login, Logout and profile writes.
const sessionKey = "session"
