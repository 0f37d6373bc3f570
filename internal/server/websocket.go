package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/config"
	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
	"github.com/ptcgai/referee-server-go/internal/metrics"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	sendCapacity = 64
)

// Feed message types.
const (
	MessageSubmit = "submit"
	MessageState  = "state"
	MessageEvent  = "event"
	MessageResult = "result"
	MessageError  = "error"
)

// Inbound is a message sent by a feed client.
type Inbound struct {
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	ActorID string         `json:"actor_id,omitempty"`
	Action  string         `json:"action,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Outbound is a message pushed to a feed client. ID echoes the inbound
// message it answers.
type Outbound struct {
	Type   string             `json:"type"`
	ID     string             `json:"id,omitempty"`
	Event  *EventMessage      `json:"event,omitempty"`
	Result *referee.Result    `json:"result,omitempty"`
	State  *referee.MatchView `json:"state,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// EventMessage is the wire form of a match event.
type EventMessage struct {
	Type      string            `json:"type"`
	MatchID   string            `json:"match_id"`
	PlayerID  string            `json:"player_id,omitempty"`
	TargetID  string            `json:"target_id,omitempty"`
	SourceID  string            `json:"source_id,omitempty"`
	Amount    int               `json:"amount,omitempty"`
	Data      string            `json:"data,omitempty"`
	Targets   []string          `json:"targets,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// eventFor renders e for viewer. The identity of a drawn card is only shown
// to the player who drew it.
func eventFor(e rules.Event, viewer string) *EventMessage {
	msg := &EventMessage{
		Type:      string(e.Type),
		MatchID:   e.MatchID,
		PlayerID:  e.PlayerID,
		TargetID:  e.TargetID,
		SourceID:  e.SourceID,
		Amount:    e.Amount,
		Data:      e.Data,
		Targets:   e.Targets,
		Timestamp: e.Timestamp,
		Metadata:  e.Metadata,
	}
	if e.Type == rules.EventCardDrawn && viewer != e.PlayerID {
		msg.TargetID = ""
		msg.Targets = nil
	}
	return msg
}

type client struct {
	conn     *websocket.Conn
	matchID  string
	playerID string
	send     chan Outbound
	done     chan struct{}
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// push queues msg without blocking. A client that cannot keep up is dropped.
func (c *client) push(msg Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.close()
		return false
	}
}

// Hub streams match events to WebSocket clients and routes their requests to
// the registry.
type Hub struct {
	registry       *game.Registry
	bus            *rules.EventBus
	subscription   int
	logger         *zap.Logger
	metrics        *metrics.Metrics
	upgrader       websocket.Upgrader
	writeTimeout   time.Duration
	maxMessageSize int64

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubMetrics counts open connections on m.
func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithWriteTimeout bounds every write to a client.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithMaxMessageSize limits inbound messages.
func WithMaxMessageSize(n int64) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// NewHub creates a hub fed by bus, the event bus every referee of registry
// publishes on.
func NewHub(registry *game.Registry, bus *rules.EventBus, logger *zap.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		registry:       registry,
		bus:            bus,
		logger:         logger,
		writeTimeout:   10 * time.Second,
		maxMessageSize: 64 * 1024,
		clients:        make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.subscription = bus.Subscribe(h.dispatch)
	return h
}

// Close stops listening for events and disconnects every client.
func (h *Hub) Close() {
	h.bus.Unsubscribe(h.subscription)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			c.close()
		}
	}
}

// Clients returns the number of clients watching matchID.
func (h *Hub) Clients(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[matchID])
}

// dispatch runs on the publishing referee's goroutine, so it only queues.
func (h *Hub) dispatch(e rules.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[e.MatchID] {
		if !c.push(Outbound{Type: MessageEvent, Event: eventFor(e, c.playerID)}) {
			h.logger.Warn("dropping slow feed client",
				zap.String("match_id", c.matchID),
				zap.String("player_id", c.playerID),
			)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.matchID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.matchID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.FeedConnected()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.matchID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.matchID)
		}
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.FeedDisconnected()
	}
}

// ServeHTTP upgrades a request for /ws?match_id=…&player_id=…. Without a
// player_id the client watches as a spectator.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match_id")
	playerID := r.URL.Query().Get("player_id")
	if matchID == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}
	view, err := h.registry.View(matchID, playerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn:     conn,
		matchID:  matchID,
		playerID: playerID,
		send:     make(chan Outbound, sendCapacity),
		done:     make(chan struct{}),
	}
	h.register(c)
	h.logger.Info("feed client connected",
		zap.String("match_id", matchID),
		zap.String("player_id", playerID),
	)

	c.push(Outbound{Type: MessageState, State: &view})
	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer func() {
		h.unregister(c)
		c.close()
		h.logger.Info("feed client disconnected",
			zap.String("match_id", c.matchID),
			zap.String("player_id", c.playerID),
		)
	}()

	c.conn.SetReadLimit(h.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("feed read error", zap.String("match_id", c.matchID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push(Outbound{Type: MessageError, Error: "invalid message: " + err.Error()})
			continue
		}
		c.push(h.handle(ctx, c, msg))
	}
}

func (h *Hub) handle(ctx context.Context, c *client, msg Inbound) Outbound {
	switch msg.Type {
	case MessageSubmit:
		actor := msg.ActorID
		if actor == "" {
			actor = c.playerID
		}
		if actor == "" {
			return Outbound{Type: MessageError, ID: msg.ID, Error: "actor_id is required"}
		}
		if c.playerID != "" && actor != c.playerID {
			return Outbound{Type: MessageError, ID: msg.ID, Error: "cannot act for another player"}
		}
		res, err := h.registry.Submit(ctx, c.matchID, referee.Request{
			ActorID: actor,
			Action:  msg.Action,
			Payload: msg.Payload,
		})
		if err != nil {
			return errorMessage(msg.ID, err)
		}
		return Outbound{Type: MessageResult, ID: msg.ID, Result: res}

	case MessageState:
		view, err := h.registry.View(c.matchID, c.playerID)
		if err != nil {
			return errorMessage(msg.ID, err)
		}
		return Outbound{Type: MessageState, ID: msg.ID, State: &view}

	default:
		return Outbound{Type: MessageError, ID: msg.ID, Error: "unknown message type: " + msg.Type}
	}
}

func errorMessage(id string, err error) Outbound {
	out := Outbound{Type: MessageError, ID: id, Error: err.Error()}
	if f, ok := model.AsFailure(err); ok {
		out.Error = string(f.Kind) + ": " + f.Error()
	}
	return out
}

// StartWebSocketServer serves the hub on cfg.Address until ctx is cancelled.
func StartWebSocketServer(ctx context.Context, cfg config.WebSocketConfig, hub *Hub, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, hub)
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting websocket server",
		zap.String("address", cfg.Address),
		zap.String("path", cfg.Path),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
