package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/realtime"
)

const (
	realtimePath     = "/realtime/v1/websocket"
	feedWriteWait    = 10 * time.Second
	feedReplyTimeout = 10 * time.Second
)

var ErrFeedClosed = errors.New("realtime connection closed")

// RealtimeFeed is a realtime.Feed over the server's websocket endpoint. All
// subscriptions share one connection, opened on first use. A dropped
// connection ends every subscription; nothing is retried.
type RealtimeFeed struct {
	baseURL string
	token   func() string
	dialer  *websocket.Dialer
	log     zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connToken string
	done      chan struct{}
	nextRef   uint64
	handlers  map[string]func(realtime.Change)
	pending   map[string]chan realtime.ServerMessage

	writeMu sync.Mutex
}

var _ realtime.Feed = (*RealtimeFeed)(nil)

// NewRealtimeFeed dials baseURL (http or https) with the token returned by
// token at connect time.
func NewRealtimeFeed(baseURL string, token func() string, log zerolog.Logger) *RealtimeFeed {
	return &RealtimeFeed{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		dialer:   websocket.DefaultDialer,
		log:      log.With().Str("component", "realtime_feed").Logger(),
		handlers: make(map[string]func(realtime.Change)),
		pending:  make(map[string]chan realtime.ServerMessage),
	}
}

func (f *RealtimeFeed) endpoint(token string) (string, error) {
	u, err := url.Parse(f.baseURL + realtimePath)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported realtime scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens the websocket if it is not open yet.
func (f *RealtimeFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectLocked(ctx)
}

// connectLocked redials when the token changed while no subscription is
// open, so a new sign-in is not served under the previous clinic.
func (f *RealtimeFeed) connectLocked(ctx context.Context) error {
	token := f.token()
	if f.conn != nil {
		if token == f.connToken || len(f.handlers) > 0 {
			return nil
		}
		f.log.Info().Msg("access token changed, reconnecting realtime")
		old := f.conn
		f.conn = nil
		old.Close()
	}
	endpoint, err := f.endpoint(token)
	if err != nil {
		return err
	}

	conn, resp, err := f.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial realtime: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial realtime: %w", err)
	}

	f.conn = conn
	f.connToken = token
	f.done = make(chan struct{})
	go f.readLoop(conn, f.done)

	f.log.Info().Msg("realtime connected")
	return nil
}

// Subscribe registers fn for sub and waits for the server to confirm it.
func (f *RealtimeFeed) Subscribe(ctx context.Context, sub realtime.Subscription, fn func(realtime.Change)) (realtime.Unsubscribe, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if err := f.connectLocked(ctx); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.nextRef++
	ref := strconv.FormatUint(f.nextRef, 10)
	reply := make(chan realtime.ServerMessage, 1)
	f.pending[ref] = reply
	f.handlers[ref] = fn
	conn, done := f.conn, f.done
	f.mu.Unlock()

	if err := f.write(conn, realtime.SubscribeMessage(ref, sub)); err != nil {
		f.forget(ref)
		return nil, fmt.Errorf("subscribe %s: %w", sub, err)
	}

	timer := time.NewTimer(feedReplyTimeout)
	defer timer.Stop()

	select {
	case msg := <-reply:
		f.clearPending(ref)
		if msg.Type != realtime.TypeSubscribed {
			f.forget(ref)
			return nil, fmt.Errorf("subscribe %s: %s", sub, msg.Error)
		}
	case <-done:
		f.forget(ref)
		return nil, fmt.Errorf("subscribe %s: %w", sub, ErrFeedClosed)
	case <-timer.C:
		f.forget(ref)
		return nil, fmt.Errorf("subscribe %s: no reply after %s", sub, feedReplyTimeout)
	case <-ctx.Done():
		f.forget(ref)
		return nil, ctx.Err()
	}

	f.log.Debug().Str("ref", ref).Str("subscription", sub.String()).Msg("subscribed")

	var once sync.Once
	return func() {
		once.Do(func() { f.unsubscribe(conn, ref) })
	}, nil
}

func (f *RealtimeFeed) unsubscribe(conn *websocket.Conn, ref string) {
	f.forget(ref)

	f.mu.Lock()
	live := f.conn == conn
	f.mu.Unlock()
	if !live {
		return
	}
	msg := realtime.ClientMessage{Action: realtime.ActionUnsubscribe, Ref: ref}
	if err := f.write(conn, msg); err != nil {
		f.log.Warn().Err(err).Str("ref", ref).Msg("unsubscribe failed")
	}
}

func (f *RealtimeFeed) write(conn *websocket.Conn, msg realtime.ClientMessage) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(feedWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (f *RealtimeFeed) forget(ref string) {
	f.mu.Lock()
	delete(f.handlers, ref)
	delete(f.pending, ref)
	f.mu.Unlock()
}

func (f *RealtimeFeed) clearPending(ref string) {
	f.mu.Lock()
	delete(f.pending, ref)
	f.mu.Unlock()
}

// readLoop delivers changes in arrival order on a single goroutine.
func (f *RealtimeFeed) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
			f.handlers = make(map[string]func(realtime.Change))
			f.pending = make(map[string]chan realtime.ServerMessage)
		}
		f.mu.Unlock()
		conn.Close()
		close(done)
	}()

	for {
		var msg realtime.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Warn().Err(err).Msg("realtime connection lost")
			}
			return
		}

		switch msg.Type {
		case realtime.TypeChange:
			if msg.Change == nil {
				continue
			}
			f.mu.Lock()
			fn := f.handlers[msg.Ref]
			f.mu.Unlock()
			if fn != nil {
				fn(*msg.Change)
			}
		case realtime.TypeSubscribed, realtime.TypeError:
			f.mu.Lock()
			reply := f.pending[msg.Ref]
			f.mu.Unlock()
			if reply != nil {
				select {
				case reply <- msg:
				default:
				}
			} else if msg.Type == realtime.TypeError {
				f.log.Warn().Str("ref", msg.Ref).Str("error", msg.Error).Msg("realtime error")
			}
		}
	}
}

// Close ends the connection and every subscription on it.
func (f *RealtimeFeed) Close() error {
	f.mu.Lock()
	conn, done := f.conn, f.done
	f.mu.Unlock()
	if conn == nil {
		return nil
	}

	f.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(feedWriteWait))
	f.writeMu.Unlock()

	err := conn.Close()
	<-done
	return err
}

// Connected reports whether the websocket is open.
func (f *RealtimeFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}
