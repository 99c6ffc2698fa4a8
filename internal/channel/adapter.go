package channel

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrStopNotSupported is returned when a connection does not support
// graceful shutdown.
var ErrStopNotSupported = errors.New("channel connection stop not supported")

// InboundHandler is a callback invoked for each message arriving from a
// channel. Adapters invoke it on a dedicated goroutine per message so one
// event's processing never blocks another's delivery.
type InboundHandler func(ctx context.Context, msg InboundMessage)

// Replier sends replies back to a chat. Implementations must be safe for
// concurrent use from many in-flight dispatches.
type Replier interface {
	ReplyText(ctx context.Context, chatID, replyToMessageID, text string) error
	ReplyVideo(ctx context.Context, chatID, replyToMessageID string, video VideoReply) error
	// NotifyTyping and NotifyUploading are best-effort status hints.
	NotifyTyping(ctx context.Context, chatID string) error
	NotifyUploading(ctx context.Context, chatID string) error
}

// Receiver establishes a long-lived connection that receives messages.
type Receiver interface {
	Connect(ctx context.Context, handler InboundHandler) (Connection, error)
}

// Connection represents an active, long-lived link to a chat platform.
type Connection interface {
	Stop(ctx context.Context) error
	Running() bool
}

// BaseConnection is a default Connection implementation backed by a stop
// function.
type BaseConnection struct {
	stop    func(ctx context.Context) error
	running atomic.Bool
}

// NewConnection creates a BaseConnection for the given stop function.
func NewConnection(stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{stop: stop}
	conn.running.Store(true)
	return conn
}

// Stop gracefully shuts down the connection.
func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	c.running.Store(false)
	return c.stop(ctx)
}

// Running reports whether the connection is still active.
func (c *BaseConnection) Running() bool {
	return c.running.Load()
}
