package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/realtime"
)

const changeChannelPrefix = "clinic:changes:"

// ChangeChannel is the pub/sub channel carrying one clinic's changes.
func ChangeChannel(clinicID uuid.UUID) string {
	return changeChannelPrefix + clinicID.String()
}

// ChangePublisher announces row changes to every API instance.
type ChangePublisher struct {
	client *redis.Client
}

func NewChangePublisher(client *redis.Client) *ChangePublisher {
	return &ChangePublisher{client: client}
}

func (p *ChangePublisher) Publish(ctx context.Context, c realtime.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := p.client.Publish(ctx, ChangeChannel(c.ClinicID), data).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// ChangeRelay feeds changes from every clinic channel into a local publisher,
// normally the in-process hub.
type ChangeRelay struct {
	client *redis.Client
	local  realtime.Publisher
	log    zerolog.Logger
}

func NewChangeRelay(client *redis.Client, local realtime.Publisher, log zerolog.Logger) *ChangeRelay {
	return &ChangeRelay{
		client: client,
		local:  local,
		log:    log.With().Str("component", "redis_change_relay").Logger(),
	}
}

// Run relays until ctx is done.
func (r *ChangeRelay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, changeChannelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s*: %w", changeChannelPrefix, err)
	}
	r.log.Info().Str("pattern", changeChannelPrefix+"*").Msg("relaying clinic changes")

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("change subscription closed")
			}
			change, err := realtime.DecodeChange([]byte(msg.Payload))
			if err != nil {
				r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change")
				continue
			}
			if err := r.local.Publish(ctx, change); err != nil {
				r.log.Error().Err(err).Msg("relay change")
			}
		}
	}
}
