package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollio/internal/model"
	"rollio/internal/protocol"
	"rollio/internal/registry"
	"rollio/internal/scoreboard"
)

// ackTimeout is the local request guard. It is independent of any transport
// timeout: when it fires the request is reported as indeterminate and a late
// ack is silently dropped.
const ackTimeout = 10 * time.Second

// RoomClient speaks the request/ack side of the protocol and keeps a local
// room view in sync with the broadcast stream, recomputing the scoreboard on
// every change.
type RoomClient struct {
	ch      Channel
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan *protocol.Envelope
	room    *model.Room
	selfID  string
	board   []scoreboard.Entry

	// OnUpdate, when set before use, is invoked with fresh snapshots after
	// every local-view change. Must not call back into the client.
	OnUpdate func(room *model.Room, board []scoreboard.Entry)
}

// NewRoomClient creates a client with no channel yet. Pass it as the
// ChannelHandler when dialing, then Attach the opened channel.
func NewRoomClient() *RoomClient {
	return &RoomClient{
		timeout: ackTimeout,
		pending: make(map[string]chan *protocol.Envelope),
	}
}

// Attach binds the channel the client sends through.
func (c *RoomClient) Attach(ch Channel) {
	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()
}

func (c *RoomClient) send(data []byte) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("no channel attached: %w", model.ErrTransport)
	}
	return ch.Send(data)
}

// CreateRoom asks the server for a fresh room and adopts it as the local view.
func (c *RoomClient) CreateRoom(ctx context.Context, username string) (string, *model.Player, error) {
	env, err := c.request(ctx, protocol.TypeCreateRoom, protocol.CreateRoomRequest{Username: username})
	if err != nil {
		return "", nil, err
	}

	var ack protocol.CreateRoomAck
	if err := decodeAck(env, &ack, &ack.Ack); err != nil {
		return "", nil, err
	}
	if ack.Player == nil || ack.RoomCode == "" {
		return "", nil, errIncompleteAck
	}

	c.mu.Lock()
	c.selfID = ack.Player.ID
	c.room = &model.Room{
		ID:        ack.RoomCode,
		Players:   []*model.Player{ack.Player},
		GameState: model.GameWaiting,
		HostID:    ack.Player.ID,
	}
	c.recomputeLocked()
	c.mu.Unlock()

	return ack.RoomCode, ack.Player, nil
}

// JoinRoom joins an existing room. The code is normalized to uppercase before
// it crosses the wire.
func (c *RoomClient) JoinRoom(ctx context.Context, code, username string) (*model.Room, *model.Player, error) {
	env, err := c.request(ctx, protocol.TypeJoinRoom, protocol.JoinRoomRequest{
		Code:     registry.NormalizeCode(code),
		Username: username,
	})
	if err != nil {
		return nil, nil, err
	}

	var ack protocol.JoinRoomAck
	if err := decodeAck(env, &ack, &ack.Ack); err != nil {
		return nil, nil, err
	}
	if ack.Room == nil || ack.Player == nil {
		return nil, nil, errIncompleteAck
	}

	c.mu.Lock()
	c.selfID = ack.Player.ID
	c.room = ack.Room
	c.recomputeLocked()
	c.mu.Unlock()

	return ack.Room, ack.Player, nil
}

// StartGame asks the server to start the game in the current room.
func (c *RoomClient) StartGame(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	roomID := ""
	if c.room != nil {
		roomID = c.room.ID
	}
	c.mu.Unlock()
	if roomID == "" {
		return nil, fmt.Errorf("not in a room: %w", model.ErrValidation)
	}

	env, err := c.request(ctx, protocol.TypeStartGame, protocol.StartGameRequest{RoomID: roomID})
	if err != nil {
		return nil, err
	}

	var ack protocol.StartGameAck
	if err := decodeAck(env, &ack, &ack.Ack); err != nil {
		return nil, err
	}
	return ack.ActivePlayerIDs, nil
}

// LeaveRoom leaves the current room and tears down the local view.
func (c *RoomClient) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	roomID := ""
	if c.room != nil {
		roomID = c.room.ID
	}
	c.mu.Unlock()
	if roomID == "" {
		return nil
	}

	env, err := c.request(ctx, protocol.TypeLeaveRoom, protocol.LeaveRoomRequest{RoomID: roomID})
	if err != nil {
		return err
	}

	var ack protocol.Ack
	if err := decodeAck(env, &ack, &ack); err != nil {
		return err
	}

	c.mu.Lock()
	c.room = nil
	c.board = nil
	c.selfID = ""
	c.mu.Unlock()
	return nil
}

// Rejoin reassociates this client with a player it owned before a transport
// loss, resyncing the local view from the server snapshot.
func (c *RoomClient) Rejoin(ctx context.Context, code, playerID string) (*model.Room, error) {
	env, err := c.request(ctx, protocol.TypeRejoinRoom, protocol.RejoinRoomRequest{
		RoomID:   registry.NormalizeCode(code),
		PlayerID: playerID,
	})
	if err != nil {
		return nil, err
	}

	var ack protocol.RejoinRoomAck
	if err := decodeAck(env, &ack, &ack.Ack); err != nil {
		return nil, err
	}
	if ack.Room == nil || ack.Player == nil {
		return nil, errIncompleteAck
	}

	c.mu.Lock()
	c.selfID = ack.Player.ID
	c.room = ack.Room
	c.recomputeLocked()
	c.mu.Unlock()
	return ack.Room, nil
}

// SendPlayerUpdate pushes a gameplay delta. Fire-and-forget: no ack.
func (c *RoomClient) SendPlayerUpdate(update model.PlayerUpdate) error {
	c.mu.Lock()
	roomID := ""
	if c.room != nil {
		roomID = c.room.ID
	}
	c.mu.Unlock()
	if roomID == "" {
		return fmt.Errorf("not in a room: %w", model.ErrValidation)
	}

	data, err := protocol.Encode(protocol.TypeUpdatePlayerState, "", protocol.UpdatePlayerStateRequest{
		RoomID: roomID,
		Update: update,
	})
	if err != nil {
		return err
	}
	return c.send(data)
}

// Room returns a snapshot of the local room view, or nil outside a room.
func (c *RoomClient) Room() *model.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	return c.room.Clone()
}

// Scoreboard returns the latest derived ranking.
func (c *RoomClient) Scoreboard() []scoreboard.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]scoreboard.Entry(nil), c.board...)
}

// SelfID returns this client's player ID, empty outside a room.
func (c *RoomClient) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// request sends one envelope and waits for its single ack.
func (c *RoomClient) request(ctx context.Context, t protocol.MessageType, payload interface{}) (*protocol.Envelope, error) {
	requestID := uuid.New().String()
	ackCh := make(chan *protocol.Envelope, 1)

	c.mu.Lock()
	c.pending[requestID] = ackCh
	c.mu.Unlock()

	data, err := protocol.Encode(t, requestID, payload)
	if err != nil {
		c.dropPending(requestID)
		return nil, err
	}
	if err := c.send(data); err != nil {
		c.dropPending(requestID)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case env := <-ackCh:
		return env, nil
	case <-timer.C:
		c.dropPending(requestID)
		return nil, fmt.Errorf("%s: no ack within %s: %w", t, c.timeout, model.ErrTimeout)
	case <-ctx.Done():
		c.dropPending(requestID)
		return nil, ctx.Err()
	}
}

func (c *RoomClient) dropPending(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// HandleMessage implements ChannelHandler. Acks are routed to their waiting
// request; an ack nobody waits for (arrived after the guard fired) is
// dropped. Broadcasts mutate the local room view idempotently.
func (c *RoomClient) HandleMessage(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Printf("roomclient: %v", err)
		return
	}

	if env.Type == protocol.TypeAck {
		c.mu.Lock()
		ackCh, ok := c.pending[env.RequestID]
		if ok {
			delete(c.pending, env.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ackCh <- env
		}
		return
	}

	c.applyBroadcast(env)
}

// HandleStateChange implements ChannelHandler. The room client does not act
// on transport state; the health monitor owns that signal.
func (c *RoomClient) HandleStateChange(state ChannelState, err error) {}

func (c *RoomClient) applyBroadcast(env *protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A broadcast for a room we already left is a benign duplicate.
	if c.room == nil {
		return
	}

	switch env.Type {
	case protocol.EventPlayerJoined:
		var p model.Player
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if c.room.FindPlayer(p.ID) != nil {
			return
		}
		c.room.Players = append(c.room.Players, &p)

	case protocol.EventPlayerLeft:
		var p model.Player
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		idx := -1
		for i, existing := range c.room.Players {
			if existing.ID == p.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		c.room.Players = append(c.room.Players[:idx], c.room.Players[idx+1:]...)
		if c.room.HostID == p.ID && len(c.room.Players) > 0 {
			c.room.HostID = c.room.Players[0].ID
		}

	case protocol.EventPlayerStateUpdated:
		var p model.Player
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		existing := c.room.FindPlayer(p.ID)
		if existing == nil {
			return
		}
		*existing = p

	case protocol.EventGameStarted:
		var started protocol.GameStartedPayload
		if json.Unmarshal(env.Payload, &started) != nil {
			return
		}
		c.room.GameState = started.GameState
		c.room.ActivePlayerIDs = started.ActivePlayerIDs
		active := make(map[string]bool, len(started.ActivePlayerIDs))
		for _, id := range started.ActivePlayerIDs {
			active[id] = true
		}
		for _, p := range c.room.Players {
			if active[p.ID] {
				p.Status = model.PlayerInGame
			} else {
				p.Status = model.PlayerSpectating
			}
		}

	default:
		return
	}

	c.recomputeLocked()
}

// recomputeLocked refreshes the scoreboard and fires OnUpdate. Requires c.mu.
func (c *RoomClient) recomputeLocked() {
	c.board = scoreboard.Rank(c.room.Players, c.room.ActivePlayerIDs)
	if c.OnUpdate != nil {
		c.OnUpdate(c.room.Clone(), append([]scoreboard.Entry(nil), c.board...))
	}
}

// errIncompleteAck marks a success ack missing its result payload.
var errIncompleteAck = fmt.Errorf("malformed ack: missing result")

func decodeAck(env *protocol.Envelope, v interface{}, ack *protocol.Ack) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("malformed ack: %w", err)
	}
	if !ack.Success {
		if sentinel := model.CodeToError(ack.Code); sentinel != nil {
			return fmt.Errorf("%s: %w", ack.Error, sentinel)
		}
		return fmt.Errorf("request failed: %s", ack.Error)
	}
	return nil
}
