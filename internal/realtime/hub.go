package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains room -> set of connections and broadcasts messages.
// Rooms are derived from (pollID, historyID); the hub itself is agnostic of
// session semantics. An optional Redis bridge relays room events across
// instances; live session state stays owned by a single process.
type Hub struct {
	// room -> map[clientID]*Client
	rooms    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	originID string
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance relay).
type RedisPublisher interface {
	PublishRoomEvent(origin, room, event string, payload []byte) error
}

// RedisSubscriber subscribes to room channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeRoom(room string, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil, in
// which case events are delivered to local clients only.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
		originID: uuid.New().String(),
	}
}

// Join adds a client to a room. Starts the Redis subscription for the room on
// first join. A client belongs to at most one room at a time: joining a new
// room detaches it from the previous one first.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	if c.room != "" && c.room != room {
		h.removeLocked(c)
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeRoom(room, func(origin, event string, payload []byte) {
				if origin == h.originID {
					return // already delivered locally
				}
				h.broadcastLocal(room, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[room] = cancel
			}
		}
	}
	h.rooms[room][c.ID] = c
	c.room = room
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room", room))
}

// Leave removes a client from its room. Cancels the Redis subscription when
// the last client leaves.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	room := c.room
	h.removeLocked(c)
	h.mu.Unlock()
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room", room))
}

// removeLocked drops the client from its current room and tears the room down
// when it empties. Caller holds h.mu.
func (h *Hub) removeLocked(c *Client) {
	room := c.room
	if m, ok := h.rooms[room]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, room)
			if cancel, ok := h.subs[room]; ok {
				cancel()
				delete(h.subs, room)
			}
		}
	}
	c.room = ""
}

// BroadcastToRoom sends an event to every client in a room, and relays it to
// other instances when a Redis bridge is configured.
func (h *Hub) BroadcastToRoom(room, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcastLocal(room, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishRoomEvent(h.originID, room, event, data)
	}
}

func (h *Hub) broadcastLocal(room, event string, data json.RawMessage) {
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.rooms[room]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// SendToClient sends an event to a single client in a room.
func (h *Hub) SendToClient(room, clientID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	c := h.rooms[room][clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// CloseClient force-disconnects a client (e.g. a kicked student). The read
// pump observes the closed connection and runs its normal cleanup.
func (h *Hub) CloseClient(room, clientID string) {
	h.mu.RLock()
	c := h.rooms[room][clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	_ = c.conn.Close()
}

// RoomSize returns the number of connected clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
