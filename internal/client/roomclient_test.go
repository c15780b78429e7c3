package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollio/internal/model"
	"rollio/internal/protocol"
	"rollio/internal/scoreboard"
)

// fakeChannel scripts the server side of the protocol: reply inspects each
// outbound envelope and returns the frames to feed back to the handler.
type fakeChannel struct {
	mu    sync.Mutex
	sent  []*protocol.Envelope
	reply func(env *protocol.Envelope) [][]byte

	handler ChannelHandler
}

func (f *fakeChannel) Send(data []byte) error {
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, env)
	reply := f.reply
	f.mu.Unlock()

	if reply == nil {
		return nil
	}
	for _, frame := range reply(env) {
		f.handler.HandleMessage(frame)
	}
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func encode(t *testing.T, msgType protocol.MessageType, requestID string, payload interface{}) []byte {
	t.Helper()
	data, err := protocol.Encode(msgType, requestID, payload)
	require.NoError(t, err)
	return data
}

// newClientWithServer wires a RoomClient to a scripted channel.
func newClientWithServer(reply func(env *protocol.Envelope) [][]byte) (*RoomClient, *fakeChannel) {
	c := NewRoomClient()
	ch := &fakeChannel{reply: reply, handler: c}
	c.Attach(ch)
	return c, ch
}

func TestCreateRoomUpdatesLocalView(t *testing.T) {
	self := &model.Player{ID: "p_host", Username: "alice", Status: model.PlayerLobby}
	c, _ := newClientWithServer(func(env *protocol.Envelope) [][]byte {
		data, _ := protocol.Encode(protocol.TypeAck, env.RequestID, protocol.CreateRoomAck{
			Ack:      protocol.Ack{Success: true},
			RoomCode: "ABC123",
			Player:   self,
		})
		return [][]byte{data}
	})

	code, player, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", code)
	assert.Equal(t, "p_host", player.ID)
	assert.Equal(t, "p_host", c.SelfID())

	room := c.Room()
	require.NotNil(t, room)
	assert.Equal(t, "ABC123", room.ID)
	assert.Equal(t, model.GameWaiting, room.GameState)

	board := c.Scoreboard()
	require.Len(t, board, 1)
	assert.Equal(t, "alice", board[0].Username)
}

func TestRequestTimeout(t *testing.T) {
	c, _ := newClientWithServer(nil) // server never answers
	c.timeout = 30 * time.Millisecond

	_, _, err := c.CreateRoom(context.Background(), "alice")
	require.ErrorIs(t, err, model.ErrTimeout)

	// The pending slot is cleaned up, so a late ack is silently dropped.
	c.mu.Lock()
	assert.Empty(t, c.pending)
	c.mu.Unlock()

	c.HandleMessage(encode(t, protocol.TypeAck, "stale-request", protocol.Ack{Success: true}))
	assert.Nil(t, c.Room())
}

func TestRequestContextCancel(t *testing.T) {
	c, _ := newClientWithServer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.CreateRoom(ctx, "alice")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFailureAckMapsToSentinel(t *testing.T) {
	c, _ := newClientWithServer(func(env *protocol.Envelope) [][]byte {
		data, _ := protocol.Encode(protocol.TypeAck, env.RequestID, protocol.JoinRoomAck{
			Ack: protocol.FailureAck(model.ErrNotFound),
		})
		return [][]byte{data}
	})

	_, _, err := c.JoinRoom(context.Background(), "nope42", "bob")
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Nil(t, c.Room())
}

func TestSuccessAckMissingResult(t *testing.T) {
	// A success ack with no player/room must error, not crash the caller.
	c, _ := newClientWithServer(func(env *protocol.Envelope) [][]byte {
		data, _ := protocol.Encode(protocol.TypeAck, env.RequestID, protocol.CreateRoomAck{
			Ack: protocol.Ack{Success: true},
		})
		return [][]byte{data}
	})

	_, _, err := c.CreateRoom(context.Background(), "alice")
	require.ErrorContains(t, err, "malformed ack")
	assert.Nil(t, c.Room())

	c2, _ := newClientWithServer(func(env *protocol.Envelope) [][]byte {
		data, _ := protocol.Encode(protocol.TypeAck, env.RequestID, protocol.JoinRoomAck{
			Ack: protocol.Ack{Success: true},
		})
		return [][]byte{data}
	})
	_, _, err = c2.JoinRoom(context.Background(), "ABC123", "bob")
	require.ErrorContains(t, err, "malformed ack")
}

func TestSendWithoutChannel(t *testing.T) {
	c := NewRoomClient()
	c.timeout = 30 * time.Millisecond

	_, _, err := c.CreateRoom(context.Background(), "alice")
	require.ErrorIs(t, err, model.ErrTransport)
}

// joinedClient returns a client whose local view already holds a two-player
// room, for broadcast tests.
func joinedClient(t *testing.T) *RoomClient {
	t.Helper()
	room := &model.Room{
		ID: "ABC123",
		Players: []*model.Player{
			{ID: "p_host", Username: "alice", Status: model.PlayerLobby},
			{ID: "p_self", Username: "bob", Status: model.PlayerLobby},
		},
		GameState: model.GameWaiting,
		HostID:    "p_host",
	}
	c, _ := newClientWithServer(func(env *protocol.Envelope) [][]byte {
		data, _ := protocol.Encode(protocol.TypeAck, env.RequestID, protocol.JoinRoomAck{
			Ack:    protocol.Ack{Success: true},
			Room:   room,
			Player: room.Players[1],
		})
		return [][]byte{data}
	})
	_, _, err := c.JoinRoom(context.Background(), "abc123", "bob")
	require.NoError(t, err)
	return c
}

func TestBroadcastsAreIdempotent(t *testing.T) {
	c := joinedClient(t)

	joined := encode(t, protocol.EventPlayerJoined, "", model.Player{ID: "p_new", Username: "carol"})
	c.HandleMessage(joined)
	c.HandleMessage(joined) // duplicate delivery

	room := c.Room()
	require.NotNil(t, room)
	assert.Len(t, room.Players, 3)

	left := encode(t, protocol.EventPlayerLeft, "", model.Player{ID: "p_new", Username: "carol"})
	c.HandleMessage(left)
	c.HandleMessage(left)

	room = c.Room()
	assert.Len(t, room.Players, 2)
	assert.Nil(t, room.FindPlayer("p_new"))
}

func TestHostLeftPromotesNext(t *testing.T) {
	c := joinedClient(t)

	c.HandleMessage(encode(t, protocol.EventPlayerLeft, "", model.Player{ID: "p_host"}))

	room := c.Room()
	require.NotNil(t, room)
	assert.Equal(t, "p_self", room.HostID)
}

func TestGameStartedBroadcast(t *testing.T) {
	c := joinedClient(t)

	c.HandleMessage(encode(t, protocol.EventGameStarted, "", protocol.GameStartedPayload{
		RoomCode:        "ABC123",
		ActivePlayerIDs: []string{"p_host"},
		GameState:       model.GamePlaying,
	}))

	room := c.Room()
	assert.Equal(t, model.GamePlaying, room.GameState)
	assert.Equal(t, model.PlayerInGame, room.FindPlayer("p_host").Status)
	assert.Equal(t, model.PlayerSpectating, room.FindPlayer("p_self").Status)
}

func TestOnUpdateFires(t *testing.T) {
	c := joinedClient(t)

	var gotRoom *model.Room
	var gotBoard []scoreboard.Entry
	c.OnUpdate = func(room *model.Room, board []scoreboard.Entry) {
		gotRoom = room
		gotBoard = board
	}

	c.HandleMessage(encode(t, protocol.EventPlayerJoined, "", model.Player{ID: "p_new", Username: "carol"}))

	require.NotNil(t, gotRoom)
	assert.Len(t, gotRoom.Players, 3)
	assert.Len(t, gotBoard, 3)
}

func TestBroadcastBeforeJoinIsDropped(t *testing.T) {
	c, _ := newClientWithServer(nil)
	c.HandleMessage(encode(t, protocol.EventPlayerJoined, "", model.Player{ID: "p_x"}))
	assert.Nil(t, c.Room())
}

func TestPlayerStateUpdatedReordersBoard(t *testing.T) {
	c := joinedClient(t)

	update := model.Player{ID: "p_self", Username: "bob", GameScore: 500, CurrentRound: 1}
	c.HandleMessage(encode(t, protocol.EventPlayerStateUpdated, "", update))

	board := c.Scoreboard()
	require.Len(t, board, 2)
	assert.Equal(t, "p_self", board[0].PlayerID)
	assert.Equal(t, 500, board[0].GameScore)
}

func TestSendPlayerUpdateOutsideRoom(t *testing.T) {
	c, _ := newClientWithServer(nil)
	score := 100
	err := c.SendPlayerUpdate(model.PlayerUpdate{GameScore: &score})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestSendPlayerUpdateFrames(t *testing.T) {
	c := joinedClient(t)
	ch := c.ch.(*fakeChannel)

	score := 250
	require.NoError(t, c.SendPlayerUpdate(model.PlayerUpdate{GameScore: &score}))

	ch.mu.Lock()
	defer ch.mu.Unlock()
	last := ch.sent[len(ch.sent)-1]
	assert.Equal(t, protocol.TypeUpdatePlayerState, last.Type)
	assert.Empty(t, last.RequestID)
}
