package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rollio/internal/protocol"
	"rollio/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Browser clients connect from the game origin directly
	},
}

// Handler upgrades connections and runs the request/ack side of the protocol.
type Handler struct {
	hub *Hub
	reg *registry.Registry
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub, reg *registry.Registry) *Handler {
	return &Handler{hub: hub, reg: reg}
}

// session is the per-connection protocol state.
type session struct {
	conn     *Connection
	playerID string
	roomCode string
}

// Serve handles GET /ws.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		ID:   "c_" + uuid.New().String()[:8],
		Send: make(chan []byte, 256),
	}
	sess := &session{conn: conn}

	log.Printf("connection %s opened", conn.ID)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, sess)
}

func (h *Handler) readPump(wsConn *websocket.Conn, sess *session) {
	conn := sess.conn
	defer func() {
		h.hub.Unsubscribe(conn)
		h.reg.DetachConnection(conn.ID)
		close(conn.Send)
		wsConn.Close()
		log.Printf("connection %s closed", conn.ID)
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return
		}
		h.dispatch(sess, data)
	}
}

// dispatch handles one inbound message. Every error is answered and absorbed
// here; nothing a client sends can take the connection down except closing it.
func (h *Handler) dispatch(sess *session, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		h.sendAck(sess.conn, "", protocol.FailureAck(wrapValidation(err)))
		return
	}

	switch env.Type {
	case protocol.TypeCreateRoom:
		h.handleCreateRoom(sess, env)
	case protocol.TypeJoinRoom:
		h.handleJoinRoom(sess, env)
	case protocol.TypeStartGame:
		h.handleStartGame(sess, env)
	case protocol.TypeLeaveRoom:
		h.handleLeaveRoom(sess, env)
	case protocol.TypeRejoinRoom:
		h.handleRejoinRoom(sess, env)
	case protocol.TypeUpdatePlayerState:
		h.handlePlayerUpdate(sess, env)
	default:
		// Server-only tags arriving from a client.
		h.sendAck(sess.conn, env.RequestID, protocol.FailureAck(wrapValidation(errUnexpected(env.Type))))
	}
}

func (h *Handler) handleCreateRoom(sess *session, env *protocol.Envelope) {
	var req protocol.CreateRoomRequest
	if !h.decodePayload(sess.conn, env, &req) {
		return
	}

	room, player, err := h.reg.CreateRoom(req.Username, sess.conn.ID)
	if err != nil {
		h.sendAck(sess.conn, env.RequestID, protocol.CreateRoomAck{Ack: protocol.FailureAck(err)})
		return
	}

	sess.playerID = player.ID
	sess.roomCode = room.ID
	h.hub.Subscribe(sess.conn, room.ID)
	h.sendAck(sess.conn, env.RequestID, protocol.CreateRoomAck{
		Ack:      protocol.Ack{Success: true},
		RoomCode: room.ID,
		Player:   player,
	})
}

func (h *Handler) handleJoinRoom(sess *session, env *protocol.Envelope) {
	var req protocol.JoinRoomRequest
	if !h.decodePayload(sess.conn, env, &req) {
		return
	}

	// Subscribe before the registry mutation commits so the joiner cannot
	// miss a broadcast ordered after their own admission. Anything ordered
	// before it is applied idempotently on their side. A session already in
	// a room keeps its stream; the registry rejects the join anyway.
	code := registry.NormalizeCode(req.Code)
	if sess.roomCode == "" {
		h.hub.Subscribe(sess.conn, code)
	}

	room, player, err := h.reg.JoinRoom(code, req.Username, sess.conn.ID)
	if err != nil {
		h.restoreSubscription(sess)
		h.sendAck(sess.conn, env.RequestID, protocol.JoinRoomAck{Ack: protocol.FailureAck(err)})
		return
	}

	sess.playerID = player.ID
	sess.roomCode = room.ID
	h.sendAck(sess.conn, env.RequestID, protocol.JoinRoomAck{
		Ack:    protocol.Ack{Success: true},
		Room:   room,
		Player: player,
	})
}

func (h *Handler) handleStartGame(sess *session, env *protocol.Envelope) {
	var req protocol.StartGameRequest
	if !h.decodePayload(sess.conn, env, &req) {
		return
	}

	active, state, err := h.reg.StartGame(req.RoomID, sess.playerID)
	if err != nil {
		h.sendAck(sess.conn, env.RequestID, protocol.StartGameAck{Ack: protocol.FailureAck(err)})
		return
	}

	h.sendAck(sess.conn, env.RequestID, protocol.StartGameAck{
		Ack:             protocol.Ack{Success: true},
		ActivePlayerIDs: active,
		GameState:       state,
	})
}

func (h *Handler) handleLeaveRoom(sess *session, env *protocol.Envelope) {
	var req protocol.LeaveRoomRequest
	if !h.decodePayload(sess.conn, env, &req) {
		return
	}

	err := h.reg.Leave(req.RoomID, sess.playerID)
	h.hub.Unsubscribe(sess.conn)
	sess.playerID = ""
	sess.roomCode = ""
	if err != nil {
		h.sendAck(sess.conn, env.RequestID, protocol.FailureAck(err))
		return
	}
	h.sendAck(sess.conn, env.RequestID, protocol.Ack{Success: true})
}

func (h *Handler) handleRejoinRoom(sess *session, env *protocol.Envelope) {
	var req protocol.RejoinRoomRequest
	if !h.decodePayload(sess.conn, env, &req) {
		return
	}

	code := registry.NormalizeCode(req.RoomID)
	if sess.roomCode == "" {
		h.hub.Subscribe(sess.conn, code)
	}

	room, player, err := h.reg.ReattachConnection(code, req.PlayerID, sess.conn.ID)
	if err != nil {
		h.restoreSubscription(sess)
		h.sendAck(sess.conn, env.RequestID, protocol.RejoinRoomAck{Ack: protocol.FailureAck(err)})
		return
	}

	sess.playerID = player.ID
	sess.roomCode = room.ID
	h.sendAck(sess.conn, env.RequestID, protocol.RejoinRoomAck{
		Ack:    protocol.Ack{Success: true},
		Room:   room,
		Player: player,
	})
}

// restoreSubscription undoes a pre-subscribe after a failed request. A
// session still bound to a room goes back on that room's stream; an unbound
// one is detached entirely.
func (h *Handler) restoreSubscription(sess *session) {
	if sess.roomCode != "" {
		h.hub.Subscribe(sess.conn, sess.roomCode)
		return
	}
	h.hub.Unsubscribe(sess.conn)
}

func (h *Handler) handlePlayerUpdate(sess *session, env *protocol.Envelope) {
	var req protocol.UpdatePlayerStateRequest
	if env.Payload == nil {
		return
	}
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		// Fire-and-forget: malformed deltas are dropped, not answered.
		log.Printf("connection %s: bad player update: %v", sess.conn.ID, err)
		return
	}
	h.reg.ApplyPlayerUpdate(req.RoomID, sess.playerID, req.Update)
}

func (h *Handler) decodePayload(conn *Connection, env *protocol.Envelope, v interface{}) bool {
	if env.Payload == nil {
		h.sendAck(conn, env.RequestID, protocol.FailureAck(wrapValidation(errEmptyPayload)))
		return false
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		h.sendAck(conn, env.RequestID, protocol.FailureAck(wrapValidation(err)))
		return false
	}
	return true
}

func (h *Handler) sendAck(conn *Connection, requestID string, payload interface{}) {
	data, err := protocol.Encode(protocol.TypeAck, requestID, payload)
	if err != nil {
		log.Printf("encode ack: %v", err)
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Printf("connection %s: ack dropped, send buffer full", conn.ID)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
