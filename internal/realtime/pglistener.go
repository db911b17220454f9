package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/db"
)

// PgListener relays trigger notifications from Postgres into a Publisher.
type PgListener struct {
	pool       *pgxpool.Pool
	pub        Publisher
	log        zerolog.Logger
	retryDelay time.Duration
}

func NewPgListener(pool *pgxpool.Pool, pub Publisher, log zerolog.Logger) *PgListener {
	return &PgListener{
		pool:       pool,
		pub:        pub,
		log:        log.With().Str("component", "pg_listener").Logger(),
		retryDelay: 5 * time.Second,
	}
}

// Run listens until ctx is done, reconnecting after a fixed delay when the
// connection drops.
func (l *PgListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn().Err(err).Dur("retry_in", l.retryDelay).Msg("listen connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *PgListener) listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{db.ChangeChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", db.ChangeChannel, err)
	}
	l.log.Info().Str("channel", db.ChangeChannel).Msg("listening for clinic changes")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		change, err := DecodeChange([]byte(n.Payload))
		if err != nil {
			l.log.Warn().Err(err).Str("payload", n.Payload).Msg("dropping malformed notification")
			continue
		}

		if err := l.pub.Publish(ctx, change); err != nil {
			l.log.Error().Err(err).Msg("publish change")
		}
	}
}
