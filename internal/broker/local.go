package broker

import (
	"context"
	"sync"

	"github.com/johndosdos/paychat/internal/model"
)

// Local is a single-process bus. Publish blocks until every subscriber has
// accepted the message or ctx is done.
type Local struct {
	mu   sync.RWMutex
	subs map[int]chan<- model.ChatMessage
	next int
}

func NewLocal() *Local {
	return &Local{subs: make(map[int]chan<- model.ChatMessage)}
}

func (l *Local) Publish(ctx context.Context, msg model.ChatMessage) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, out := range l.subs {
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, out chan<- model.ChatMessage) error {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = out
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}()

	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.subs)
	return nil
}
