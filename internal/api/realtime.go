package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
	wsSendBuffer = 64
)

var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_websocket_connections",
		Help: "Open realtime websocket connections",
	})
	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_websocket_dropped_messages_total",
		Help: "Change pushes dropped because a client's send buffer was full",
	})
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients do not send an Origin header; the access token gates access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RealtimeHandler upgrades authenticated requests to websockets and relays
// feed changes for the caller's clinic.
type RealtimeHandler struct {
	feed realtime.Feed
	log  zerolog.Logger

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

func NewRealtimeHandler(feed realtime.Feed, log zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		feed:  feed,
		log:   log.With().Str("component", "realtime_ws").Logger(),
		conns: make(map[*wsConn]struct{}),
	}
}

type wsConn struct {
	id     string
	clinic uuid.UUID
	ws     *websocket.Conn
	feed   realtime.Feed
	log    zerolog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	subs map[string]realtime.Unsubscribe
}

func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clinic := clinicID(r)
	if clinic == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "no clinic in token")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsConn{
		id:     uuid.NewString(),
		clinic: clinic,
		ws:     ws,
		feed:   h.feed,
		log:    h.log.With().Str("clinic_id", clinic.String()).Logger(),
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
		subs:   make(map[string]realtime.Unsubscribe),
	}
	h.track(c)
	defer h.untrack(c)

	// The request context ends when this handler returns, so subscriptions
	// hang off a context owned by the connection.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go c.writePump()
	c.readPump(ctx)
}

// ConnectionCount returns the number of open websockets.
func (h *RealtimeHandler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every open websocket. http.Server.Shutdown does not track
// hijacked connections.
func (h *RealtimeHandler) Close() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *RealtimeHandler) track(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	wsConnections.Inc()
	c.log.Debug().Str("conn_id", c.id).Msg("websocket connected")
}

func (h *RealtimeHandler) untrack(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	wsConnections.Dec()
	c.close()
	c.log.Debug().Str("conn_id", c.id).Msg("websocket disconnected")
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		for ref, unsub := range c.subs {
			unsub()
			delete(c.subs, ref)
		}
		c.mu.Unlock()
		_ = c.ws.Close()
	})
}

func (c *wsConn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(wsReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(wsPongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		var msg realtime.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(realtime.ServerMessage{Type: realtime.TypeError, Error: "malformed message"})
			continue
		}

		switch msg.Action {
		case realtime.ActionSubscribe:
			c.subscribe(ctx, msg)
		case realtime.ActionUnsubscribe:
			c.unsubscribe(msg.Ref)
		default:
			c.reply(realtime.ServerMessage{Type: realtime.TypeError, Ref: msg.Ref, Error: "unknown action " + msg.Action})
		}
	}
}

func (c *wsConn) subscribe(ctx context.Context, msg realtime.ClientMessage) {
	sub, err := msg.Subscription()
	if err == nil {
		err = sub.Authorize(c.clinic)
	}
	if err != nil {
		c.reply(realtime.ServerMessage{Type: realtime.TypeError, Ref: msg.Ref, Error: err.Error()})
		return
	}

	ref := msg.Ref
	unsub, err := c.feed.Subscribe(ctx, sub, func(change realtime.Change) {
		c.push(realtime.ServerMessage{Type: realtime.TypeChange, Ref: ref, Change: &change})
	})
	if err != nil {
		c.reply(realtime.ServerMessage{Type: realtime.TypeError, Ref: ref, Error: err.Error()})
		return
	}

	c.mu.Lock()
	if prev, ok := c.subs[ref]; ok {
		prev()
	}
	c.subs[ref] = unsub
	c.mu.Unlock()

	c.log.Debug().Str("ref", ref).Str("subscription", sub.String()).Msg("subscribed")
	c.reply(realtime.ServerMessage{Type: realtime.TypeSubscribed, Ref: ref})
}

func (c *wsConn) unsubscribe(ref string) {
	c.mu.Lock()
	unsub, ok := c.subs[ref]
	delete(c.subs, ref)
	c.mu.Unlock()

	if ok {
		unsub()
	}
	c.reply(realtime.ServerMessage{Type: realtime.TypeUnsubscribed, Ref: ref})
}

// reply queues a control message, waiting for buffer space.
func (c *wsConn) reply(msg realtime.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal websocket reply")
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

// push queues a change without blocking the publisher; a full buffer drops it.
func (c *wsConn) push(msg realtime.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal websocket change")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		wsDropped.Inc()
		c.log.Warn().Str("ref", msg.Ref).Msg("client send buffer full, dropping change")
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(wsWriteWait))
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
