package client

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/realtime"
)

// BindBroadcaster keeps b subscribed to the clinic of p's current session.
// A session starts it, a changed clinic restarts it and no session stops it.
// The returned func unbinds without stopping b.
func BindBroadcaster(ctx context.Context, p *SessionProvider, b *realtime.Broadcaster, log zerolog.Logger) (unbind func()) {
	log = log.With().Str("component", "broadcaster_binding").Logger()

	follow := func(event AuthEvent, sess *auth.Session) {
		if sess == nil {
			b.Stop()
			return
		}
		if err := b.Start(ctx, sess.User.ID); err != nil {
			log.Error().Err(err).Str("event", string(event)).Msg("start refresh broadcaster")
		}
	}

	unbind = p.OnAuthStateChange(follow)
	if sess := p.Session(); sess != nil {
		follow(EventInitialSession, sess)
	}
	return unbind
}
