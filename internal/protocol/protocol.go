// Package protocol defines the wire contract between clients and the room
// server: one envelope shape, a closed set of tagged message variants, and
// the payload types for each tag. Both the server transport and the client
// decode through this package, so unrecognized shapes are rejected in one
// place instead of trusted.
package protocol

import (
	"encoding/json"
	"fmt"

	"rollio/internal/model"
)

type MessageType string

// Request types (client -> server, each answered by exactly one ack).
const (
	TypeCreateRoom MessageType = "create_room"
	TypeJoinRoom   MessageType = "join_room"
	TypeStartGame  MessageType = "start_game"
	TypeLeaveRoom  MessageType = "leave_room"
	TypeRejoinRoom MessageType = "rejoin_room"
)

// TypeUpdatePlayerState carries a gameplay delta. Fire-and-forget: duplicates
// are tolerated server-side, so it gets no ack.
const TypeUpdatePlayerState MessageType = "update_player_state"

// TypeAck is the server's single reply to a request, correlated by RequestID.
const TypeAck MessageType = "ack"

// Broadcast types (server -> all current room members).
const (
	EventPlayerJoined       MessageType = "player_joined"
	EventPlayerLeft         MessageType = "player_left"
	EventPlayerStateUpdated MessageType = "player_state_updated"
	EventGameStarted        MessageType = "game_started"
)

// Envelope is the single framing for every message on the channel.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var knownTypes = map[MessageType]bool{
	TypeCreateRoom:          true,
	TypeJoinRoom:            true,
	TypeStartGame:           true,
	TypeLeaveRoom:           true,
	TypeRejoinRoom:          true,
	TypeUpdatePlayerState:   true,
	TypeAck:                 true,
	EventPlayerJoined:       true,
	EventPlayerLeft:         true,
	EventPlayerStateUpdated: true,
	EventGameStarted:        true,
}

// Decode parses raw bytes into an envelope, rejecting unknown tags.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if !knownTypes[env.Type] {
		return nil, fmt.Errorf("unrecognized message type %q", env.Type)
	}
	return &env, nil
}

// Encode wraps a payload into an envelope and marshals it.
func Encode(t MessageType, requestID string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: t, RequestID: requestID, Payload: raw})
}

// Request payloads.

type CreateRoomRequest struct {
	Username string `json:"username"`
}

type JoinRoomRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

type StartGameRequest struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"roomId"`
}

type RejoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type UpdatePlayerStateRequest struct {
	RoomID string             `json:"roomId"`
	Update model.PlayerUpdate `json:"update"`
}

// Ack payloads. Success acks embed the operation result; failure acks carry a
// human-readable error plus a machine code from the error taxonomy.

type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// FailureAck builds the failure reply for any request type.
func FailureAck(err error) Ack {
	return Ack{Success: false, Error: err.Error(), Code: model.ErrorCode(err)}
}

type CreateRoomAck struct {
	Ack
	RoomCode string        `json:"roomCode,omitempty"`
	Player   *model.Player `json:"player,omitempty"`
}

type JoinRoomAck struct {
	Ack
	Room   *model.Room   `json:"room,omitempty"`
	Player *model.Player `json:"player,omitempty"`
}

type StartGameAck struct {
	Ack
	ActivePlayerIDs []string        `json:"activePlayerIds,omitempty"`
	GameState       model.GameState `json:"gameState,omitempty"`
}

type RejoinRoomAck struct {
	Ack
	Room   *model.Room   `json:"room,omitempty"`
	Player *model.Player `json:"player,omitempty"`
}

// GameStartedPayload is the game_started broadcast body.
type GameStartedPayload struct {
	RoomCode        string          `json:"roomCode"`
	ActivePlayerIDs []string        `json:"activePlayerIds"`
	GameState       model.GameState `json:"gameState"`
}
