// Package broker moves persisted chat messages from the instance that
// accepted them to every instance that has recipients connected.
package broker

import (
	"context"

	"github.com/johndosdos/paychat/internal/model"
)

// Publisher hands a persisted message to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg model.ChatMessage) error
}

// Subscriber streams every message published after Subscribe returns into
// out, in publish order, until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, out chan<- model.ChatMessage) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}
