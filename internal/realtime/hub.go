package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type hubKey struct {
	table  Table
	clinic uuid.UUID
}

type hubSub struct {
	sub Subscription
	fn  func(Change)
}

// Hub is the in-process change bus. Handlers run on the publishing goroutine
// and must not block.
type Hub struct {
	mu     sync.RWMutex
	subs   map[hubKey]map[uint64]hubSub
	nextID uint64
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[hubKey]map[uint64]hubSub),
		log:  log.With().Str("component", "realtime_hub").Logger(),
	}
}

// Subscribe registers fn for changes matching sub. The subscription also ends
// when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, sub Subscription, fn func(Change)) (Unsubscribe, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	key := hubKey{table: sub.Table, clinic: sub.ClinicID}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]hubSub)
	}
	h.subs[key][id] = hubSub{sub: sub, fn: fn}
	h.mu.Unlock()

	activeSubscriptions.Inc()

	unsub := once(func() {
		h.mu.Lock()
		if set, ok := h.subs[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
		h.mu.Unlock()
		activeSubscriptions.Dec()
	})

	stop := context.AfterFunc(ctx, unsub)
	return func() {
		stop()
		unsub()
	}, nil
}

// Publish fans c out to every matching subscriber.
func (h *Hub) Publish(_ context.Context, c Change) error {
	changesPublished.WithLabelValues(string(c.Table), string(c.Event)).Inc()

	h.mu.RLock()
	set := h.subs[hubKey{table: c.Table, clinic: c.ClinicID}]
	targets := make([]func(Change), 0, len(set))
	for _, s := range set {
		if s.sub.Matches(c) {
			targets = append(targets, s.fn)
		}
	}
	h.mu.RUnlock()

	h.log.Debug().
		Str("table", string(c.Table)).
		Str("event", string(c.Event)).
		Str("clinic_id", c.ClinicID.String()).
		Int("subscribers", len(targets)).
		Msg("change published")

	for _, fn := range targets {
		fn(c)
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions for a stream.
func (h *Hub) SubscriberCount(table Table, clinicID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[hubKey{table: table, clinic: clinicID}])
}
