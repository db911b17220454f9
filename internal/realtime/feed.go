package realtime

import (
	"context"
	"sync"
)

// Unsubscribe stops a subscription. Calling it more than once is harmless.
type Unsubscribe func()

// Feed delivers changes matching a subscription to a handler until the
// returned Unsubscribe is called.
type Feed interface {
	Subscribe(ctx context.Context, sub Subscription, fn func(Change)) (Unsubscribe, error)
}

// Publisher accepts changes produced by a write path.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

func once(fn func()) Unsubscribe {
	var o sync.Once
	return func() { o.Do(fn) }
}
