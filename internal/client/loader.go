package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/realtime"
)

// LoadState is a snapshot of a loader.
type LoadState[T any] struct {
	Data    T
	Loading bool
	Err     error
}

// Loader holds the last result of one screen query. It fetches on Load,
// Focus, SetParams and every watched broadcaster change. Results of a fetch
// superseded by a newer one are dropped.
type Loader[P, T any] struct {
	name  string
	fetch func(ctx context.Context, params P) (T, error)
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	params   P
	seq      uint64
	state    LoadState[T]
	onError  func(error)
	onChange func(LoadState[T])
	unwatch  []func()
}

// NewLoader returns an idle loader; nothing is fetched until Load.
func NewLoader[P, T any](name string, params P, fetch func(ctx context.Context, params P) (T, error), log zerolog.Logger) *Loader[P, T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader[P, T]{
		name:   name,
		fetch:  fetch,
		log:    log.With().Str("loader", name).Logger(),
		ctx:    ctx,
		cancel: cancel,
		params: params,
	}
}

// OnError sets the hook that surfaces fetch errors to the user.
func (l *Loader[P, T]) OnError(fn func(error)) *Loader[P, T] {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
	return l
}

// OnChange is called after every completed fetch with the new state.
func (l *Loader[P, T]) OnChange(fn func(LoadState[T])) *Loader[P, T] {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
	return l
}

func (l *Loader[P, T]) State() LoadState[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loader[P, T]) Params() P {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

// Load fetches synchronously with the current parameters.
func (l *Loader[P, T]) Load(ctx context.Context) LoadState[T] {
	seq, params := l.begin(nil)
	return l.run(ctx, seq, params)
}

// Focus refetches when the screen regains focus.
func (l *Loader[P, T]) Focus(ctx context.Context) LoadState[T] {
	return l.Load(ctx)
}

// SetParams replaces the parameters and refetches.
func (l *Loader[P, T]) SetParams(ctx context.Context, params P) LoadState[T] {
	seq, p := l.begin(&params)
	return l.run(ctx, seq, p)
}

// Watch refetches in the background after each broadcaster increment caused
// by one of tables, or by any table when none are given.
func (l *Loader[P, T]) Watch(b *realtime.Broadcaster, tables ...realtime.Table) *Loader[P, T] {
	cancel := b.Watch(tables, func(trigger uint64) {
		l.log.Debug().Uint64("refresh_trigger", trigger).Msg("refetch on change")
		l.refetchAsync()
	})
	l.mu.Lock()
	l.unwatch = append(l.unwatch, cancel)
	l.mu.Unlock()
	return l
}

func (l *Loader[P, T]) refetchAsync() {
	if l.ctx.Err() != nil {
		return
	}
	seq, params := l.begin(nil)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(l.ctx, seq, params)
	}()
}

// Close stops watching and waits for background fetches.
func (l *Loader[P, T]) Close() {
	l.mu.Lock()
	unwatch := l.unwatch
	l.unwatch = nil
	l.mu.Unlock()
	for _, fn := range unwatch {
		fn()
	}
	l.cancel()
	l.wg.Wait()
}

func (l *Loader[P, T]) begin(params *P) (uint64, P) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if params != nil {
		l.params = *params
	}
	l.seq++
	l.state.Loading = true
	return l.seq, l.params
}

func (l *Loader[P, T]) run(ctx context.Context, seq uint64, params P) LoadState[T] {
	data, err := l.fetch(ctx, params)

	l.mu.Lock()
	if seq != l.seq {
		state := l.state
		l.mu.Unlock()
		return state
	}
	if err != nil {
		l.state.Err = err
	} else {
		l.state.Data = data
		l.state.Err = nil
	}
	l.state.Loading = false
	state := l.state
	onError, onChange := l.onError, l.onChange
	l.mu.Unlock()

	if err != nil {
		l.log.Error().Err(err).Msg("fetch failed")
		if onError != nil {
			onError(err)
		}
	}
	if onChange != nil {
		onChange(state)
	}
	return state
}
