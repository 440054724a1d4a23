package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"

	"honeypot-lab/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4 * 1024
)

// WebSocketMessage is the frame sent to analysts
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// WebSocketHub serves the live intelligence feed. Every connection holds
// its own bus subscription, filtered by the client's Subscription.
type WebSocketHub struct {
	bus      *EventBus
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	stopped bool
	clients map[*feedClient]struct{}
	pumps   conc.WaitGroup
}

type feedClient struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	mu  sync.RWMutex
	sub *Subscription
}

// NewWebSocketHub creates a hub fed by bus
func NewWebSocketHub(bus *EventBus, log *logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  log.WithComponent("websocket-hub"),
		ctx:     context.Background(),
		clients: make(map[*feedClient]struct{}),
	}
}

// Run binds client lifetimes to ctx and blocks until it is done. Open
// connections are then closed and their pumps awaited.
func (h *WebSocketHub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	<-ctx.Done()

	h.mu.Lock()
	h.stopped = true
	for c := range h.clients {
		c.cancel()
	}
	h.mu.Unlock()
	h.pumps.Wait()
	h.logger.Debug().Msg("websocket hub stopped")
}

// ClientCount returns the number of connected analysts
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWebSocket upgrades the request. The initial filter comes from the
// query string; the client may replace it later by sending a Subscription.
func (h *WebSocketHub) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	sub := SubscriptionFromQuery(r.URL.Query())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	client := &feedClient{conn: conn, cancel: cancel, sub: sub}
	h.clients[client] = struct{}{}
	h.logger.Info().Int("clients", len(h.clients)).Str("remote", r.RemoteAddr).Msg("analyst connected")

	events, unsubscribe := h.bus.Subscribe(ctx, nil)
	h.pumps.Go(func() {
		defer h.remove(client)
		defer unsubscribe()
		h.writePump(ctx, client, events)
	})
	h.pumps.Go(func() {
		defer cancel()
		h.readPump(client)
	})
}

func (h *WebSocketHub) remove(c *feedClient) {
	c.cancel()
	_ = c.conn.Close()

	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Int("clients", count).Msg("analyst disconnected")
}

func (h *WebSocketHub) readPump(c *feedClient) {
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err != nil {
			h.logger.Debug().Err(err).Msg("ignoring malformed subscription")
			continue
		}
		c.mu.Lock()
		c.sub = &sub
		c.mu.Unlock()
	}
}

func (h *WebSocketHub) writePump(ctx context.Context, c *feedClient, events <-chan *IntelligenceEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if !c.wants(event) {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(WebSocketMessage{Type: string(event.Type), Payload: event}); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedClient) wants(event *IntelligenceEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.Matches(event)
}

// SubscriptionFromQuery reads session_id, min_confidence, final_only,
// delivered_only and payment_only. It returns nil when none is set.
func SubscriptionFromQuery(q url.Values) *Subscription {
	var sub Subscription
	set := false

	if v := q.Get("session_id"); v != "" {
		sub.SessionID = v
		set = true
	}
	if f, err := strconv.ParseFloat(q.Get("min_confidence"), 64); err == nil {
		sub.MinConfidence = f
		set = true
	}
	for key, dst := range map[string]*bool{
		"final_only":     &sub.FinalOnly,
		"delivered_only": &sub.DeliveredOnly,
		"payment_only":   &sub.PaymentOnly,
	} {
		if b, err := strconv.ParseBool(q.Get(key)); err == nil {
			*dst = b
			set = true
		}
	}

	if !set {
		return nil
	}
	return &sub
}
