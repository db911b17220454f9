package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type watcher struct {
	tables map[Table]struct{}
	fn     func(uint64)
}

func (w watcher) wants(t Table) bool {
	if len(w.tables) == 0 {
		return true
	}
	_, ok := w.tables[t]
	return ok
}

// Broadcaster turns every change on the watched tables of one clinic into an
// increment of a shared refresh counter. It does not carry data: watchers
// re-fetch when the counter moves.
type Broadcaster struct {
	feed Feed
	log  zerolog.Logger

	counter atomic.Uint64

	// genMu orders counter increments against Stop.
	genMu      sync.Mutex
	generation uint64

	mu       sync.Mutex
	clinicID uuid.UUID
	unsubs   []Unsubscribe

	watchMu     sync.Mutex
	watchers    map[uint64]watcher
	nextWatcher uint64
}

// NewBroadcaster returns a broadcaster with its counter at zero.
func NewBroadcaster(feed Feed, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		feed:     feed,
		log:      log.With().Str("component", "refresh_broadcaster").Logger(),
		watchers: make(map[uint64]watcher),
	}
}

// Start opens one subscription per watched table for clinicID. Starting again
// for the same clinic is a no-op; a different clinic replaces the previous
// subscriptions. A failed subscription is logged and left closed.
func (b *Broadcaster) Start(ctx context.Context, clinicID uuid.UUID) error {
	if clinicID == uuid.Nil {
		return fmt.Errorf("%w: clinic id is required", ErrInvalidFilter)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.clinicID == clinicID && len(b.unsubs) > 0 {
		return nil
	}
	b.stopLocked()

	b.clinicID = clinicID
	gen := b.bumpGeneration()

	var errs []error
	for _, table := range WatchedTables {
		sub := Subscription{Table: table, ClinicID: clinicID, Event: EventAll}
		unsub, err := b.feed.Subscribe(ctx, sub, func(c Change) {
			b.onChange(gen, c)
		})
		if err != nil {
			b.log.Error().Err(err).Str("subscription", sub.String()).Msg("subscribe failed")
			errs = append(errs, fmt.Errorf("subscribe %s: %w", table, err))
			continue
		}
		b.unsubs = append(b.unsubs, unsub)
	}

	b.log.Info().
		Str("clinic_id", clinicID.String()).
		Int("subscriptions", len(b.unsubs)).
		Msg("refresh broadcaster started")

	return errors.Join(errs...)
}

// Stop closes all subscriptions. Changes delivered afterwards are ignored.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *Broadcaster) stopLocked() {
	b.bumpGeneration()
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	b.clinicID = uuid.Nil
}

// ClinicID is the clinic currently subscribed, or uuid.Nil.
func (b *Broadcaster) ClinicID() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clinicID
}

// RefreshTrigger returns the current counter value.
func (b *Broadcaster) RefreshTrigger() uint64 {
	return b.counter.Load()
}

// TriggerRefresh increments the counter without a remote change, notifying
// every watcher.
func (b *Broadcaster) TriggerRefresh() uint64 {
	n := b.counter.Add(1)
	refreshIncrements.WithLabelValues("manual").Inc()
	b.notify("", n)
	return n
}

// Watch registers fn to run with the new counter value after each increment
// caused by one of tables. No tables means all of them. Manual triggers reach
// every watcher.
func (b *Broadcaster) Watch(tables []Table, fn func(uint64)) (cancel func()) {
	w := watcher{fn: fn}
	if len(tables) > 0 {
		w.tables = make(map[Table]struct{}, len(tables))
		for _, t := range tables {
			w.tables[t] = struct{}{}
		}
	}

	b.watchMu.Lock()
	b.nextWatcher++
	id := b.nextWatcher
	b.watchers[id] = w
	b.watchMu.Unlock()

	return func() {
		b.watchMu.Lock()
		delete(b.watchers, id)
		b.watchMu.Unlock()
	}
}

func (b *Broadcaster) bumpGeneration() uint64 {
	b.genMu.Lock()
	defer b.genMu.Unlock()
	b.generation++
	return b.generation
}

func (b *Broadcaster) onChange(gen uint64, c Change) {
	b.genMu.Lock()
	if b.generation != gen {
		b.genMu.Unlock()
		return
	}
	n := b.counter.Add(1)
	b.genMu.Unlock()

	refreshIncrements.WithLabelValues(string(c.Table)).Inc()

	b.log.Debug().
		Str("table", string(c.Table)).
		Str("event", string(c.Event)).
		Uint64("refresh_trigger", n).
		Msg("change received, triggering refresh")

	b.notify(c.Table, n)
}

func (b *Broadcaster) notify(table Table, n uint64) {
	b.watchMu.Lock()
	targets := make([]func(uint64), 0, len(b.watchers))
	for _, w := range b.watchers {
		if table == "" || w.wants(table) {
			targets = append(targets, w.fn)
		}
	}
	b.watchMu.Unlock()

	for _, fn := range targets {
		fn(n)
	}
}
