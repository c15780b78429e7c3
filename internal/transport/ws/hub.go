package ws

import (
	"log"
	"sync"

	"rollio/internal/protocol"
)

// Hub fans room broadcasts out to WebSocket connections. All broadcasts pass
// through one buffered queue drained by a single goroutine, so messages for a
// room are delivered to every member in exactly the order the registry
// enqueued them. Subscriptions are synchronous: once Subscribe returns, the
// connection sees every later broadcast for that room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Connection // roomCode -> connID -> conn

	queue chan *broadcastMessage
	done  chan struct{}
}

// Connection is the hub's view of one WebSocket client.
type Connection struct {
	ID   string
	Send chan []byte

	room string // guarded by hub.mu
}

type broadcastMessage struct {
	roomCode string
	data     []byte
}

// NewHub creates a hub and starts its dispatch goroutine.
func NewHub() *Hub {
	h := &Hub{
		rooms: make(map[string]map[string]*Connection),
		queue: make(chan *broadcastMessage, 256),
		done:  make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case msg := <-h.queue:
			h.mu.RLock()
			for _, conn := range h.rooms[msg.roomCode] {
				select {
				case conn.Send <- msg.data:
				default:
					// Slow consumer, drop rather than stall the room.
				}
			}
			h.mu.RUnlock()
		case <-h.done:
			return
		}
	}
}

// Subscribe binds the connection to a room's broadcast stream, replacing any
// previous binding.
func (h *Hub) Subscribe(conn *Connection, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(conn)
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[string]*Connection)
	}
	h.rooms[roomCode][conn.ID] = conn
	conn.room = roomCode
}

// Unsubscribe removes the connection from its room stream, if any.
func (h *Hub) Unsubscribe(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(conn)
}

func (h *Hub) detachLocked(conn *Connection) {
	if conn.room == "" {
		return
	}
	if members, ok := h.rooms[conn.room]; ok {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(h.rooms, conn.room)
		}
	}
	conn.room = ""
}

// BroadcastToRoom implements registry.Broadcaster. The registry calls it with
// the room's lock held, so queue order equals mutation order. A full queue
// drops the message rather than stalling room mutations behind dispatch.
func (h *Hub) BroadcastToRoom(roomCode string, msgType string, payload interface{}) {
	data, err := protocol.Encode(protocol.MessageType(msgType), "", payload)
	if err != nil {
		log.Printf("encode broadcast %s: %v", msgType, err)
		return
	}
	select {
	case h.queue <- &broadcastMessage{roomCode: roomCode, data: data}:
	default:
		log.Printf("room %s: %s broadcast dropped, dispatch queue full", roomCode, msgType)
	}
}

// Shutdown stops the dispatch goroutine. In-flight queue entries are dropped.
func (h *Hub) Shutdown() {
	close(h.done)
}
