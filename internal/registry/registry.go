package registry

import (
	"crypto/rand"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollio/internal/model"
	"rollio/internal/protocol"
)

// Broadcaster delivers fire-and-forget notifications to every current member
// of a room. The websocket hub implements it; tests substitute a recorder.
// Calls made while a room's lock is held are enqueued by the hub in arrival
// order and dispatched by a single goroutine, which is what preserves the
// per-room total order of broadcasts.
type Broadcaster interface {
	BroadcastToRoom(roomCode string, msgType string, payload interface{})
}

// Options tune registry policy. Zero values fall back to defaults.
type Options struct {
	// MaxPlayers caps room membership. Default 4.
	MaxPlayers int
	// LeaveGrace is how long a detached player may stay in the room before
	// the disconnect is treated as a leave. Default 30s.
	LeaveGrace time.Duration
	// AllowSpectators admits joiners to a playing room as spectators instead
	// of rejecting them.
	AllowSpectators bool
}

func (o Options) withDefaults() Options {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = 4
	}
	if o.LeaveGrace <= 0 {
		o.LeaveGrace = 30 * time.Second
	}
	return o
}

type memberRef struct {
	code     string
	playerID string
}

// roomEntry owns one room. All mutations to the room happen under mu, so a
// single writer per room is guaranteed and rooms never contend with each
// other. closed marks an entry that has been destroyed while a caller still
// holds a pointer to it.
type roomEntry struct {
	mu     sync.Mutex
	room   *model.Room
	closed bool
	grace  map[string]*time.Timer // playerID -> pending removal
}

// Registry is the authoritative server-side store of all rooms.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*roomEntry
	byConn map[string]memberRef

	broadcaster Broadcaster
	opts        Options
}

// New creates a registry. The broadcaster may be nil (no notifications),
// which tests use for pure state-machine checks.
func New(b Broadcaster, opts Options) *Registry {
	return &Registry{
		rooms:       make(map[string]*roomEntry),
		byConn:      make(map[string]memberRef),
		broadcaster: b,
		opts:        opts.withDefaults(),
	}
}

// CreateRoom allocates a fresh room in the waiting state with the creator as
// host. Returns snapshots safe to serialize without further locking.
func (r *Registry) CreateRoom(username, connID string) (*model.Room, *model.Player, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil, fmt.Errorf("username is required: %w", model.ErrValidation)
	}

	player := newPlayer(username, connID)

	r.mu.Lock()
	if _, busy := r.byConn[connID]; connID != "" && busy {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("connection already in a room: %w", model.ErrValidation)
	}
	code, err := r.reserveCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, nil, err
	}
	room := &model.Room{
		ID:        code,
		Players:   []*model.Player{player},
		GameState: model.GameWaiting,
		HostID:    player.ID,
		CreatedAt: time.Now(),
	}
	r.rooms[code] = &roomEntry{
		room:  room,
		grace: make(map[string]*time.Timer),
	}
	if connID != "" {
		r.byConn[connID] = memberRef{code: code, playerID: player.ID}
	}
	r.mu.Unlock()

	log.Printf("room %s created by %s", code, username)
	return room.Clone(), player.Clone(), nil
}

// JoinRoom appends a new player to an existing waiting room and returns the
// full current room snapshot plus the new player.
func (r *Registry) JoinRoom(code, username, connID string) (*model.Room, *model.Player, error) {
	code = NormalizeCode(code)
	username = strings.TrimSpace(username)
	if code == "" || username == "" {
		return nil, nil, fmt.Errorf("room code and username are required: %w", model.ErrValidation)
	}

	r.mu.Lock()
	if _, busy := r.byConn[connID]; connID != "" && busy {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("connection already in a room: %w", model.ErrValidation)
	}
	e, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	if connID != "" {
		// Reserve the connection slot before touching the room so a
		// connection can never race its way into two rooms.
		r.byConn[connID] = memberRef{code: code}
	}
	r.mu.Unlock()

	player := newPlayer(username, connID)

	e.mu.Lock()
	if err := r.admitLocked(e, player); err != nil {
		e.mu.Unlock()
		r.releaseConn(connID)
		return nil, nil, err
	}
	snapshot := e.room.Clone()
	r.notify(e, string(protocol.EventPlayerJoined), player.Clone())
	e.mu.Unlock()

	if connID != "" {
		r.mu.Lock()
		r.byConn[connID] = memberRef{code: code, playerID: player.ID}
		r.mu.Unlock()
	}

	log.Printf("%s joined room %s", username, code)
	return snapshot, player.Clone(), nil
}

func (r *Registry) admitLocked(e *roomEntry, player *model.Player) error {
	if e.closed {
		return fmt.Errorf("room %s: %w", e.room.ID, model.ErrNotFound)
	}
	if e.room.GameState != model.GameWaiting {
		if e.room.GameState == model.GamePlaying && r.opts.AllowSpectators {
			player.Status = model.PlayerSpectating
		} else {
			return fmt.Errorf("room %s: %w", e.room.ID, model.ErrAlreadyStarted)
		}
	}
	if len(e.room.Players) >= r.opts.MaxPlayers {
		return fmt.Errorf("room %s is full: %w", e.room.ID, model.ErrValidation)
	}
	e.room.Players = append(e.room.Players, player)
	return nil
}

// Leave removes the player from the room. Removing an unknown player is a
// no-op so duplicate leave deliveries stay harmless. The host role moves to
// the earliest-joined remaining player; an emptied room is destroyed.
func (r *Registry) Leave(code, playerID string) error {
	code = NormalizeCode(code)
	e := r.entry(code)
	if e == nil {
		return fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	idx := -1
	for i, p := range e.room.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return nil
	}
	left := e.room.Players[idx]
	e.room.Players = append(e.room.Players[:idx], e.room.Players[idx+1:]...)
	e.room.ActivePlayerIDs = removeString(e.room.ActivePlayerIDs, playerID)
	if t, ok := e.grace[playerID]; ok {
		t.Stop()
		delete(e.grace, playerID)
	}

	destroyed := len(e.room.Players) == 0
	if destroyed {
		e.closed = true
		for _, t := range e.grace {
			t.Stop()
		}
	} else if e.room.HostID == playerID {
		// Players are kept in join order, so the earliest-joined remaining
		// player is the head of the slice.
		e.room.HostID = e.room.Players[0].ID
	}
	if !destroyed {
		r.notify(e, string(protocol.EventPlayerLeft), left.Clone())
	}
	e.mu.Unlock()

	r.mu.Lock()
	if left.ConnectionID != "" {
		delete(r.byConn, left.ConnectionID)
	}
	if destroyed {
		delete(r.rooms, code)
	}
	r.mu.Unlock()

	if destroyed {
		log.Printf("room %s destroyed (empty)", code)
	} else {
		log.Printf("%s left room %s", left.Username, code)
	}
	return nil
}

// StartGame transitions the room from waiting to playing. Only the host may
// start. Members still in the lobby with a live transport session become the
// active players; anyone mid-reconnect spectates.
func (r *Registry) StartGame(code, requestorID string) ([]string, model.GameState, error) {
	code = NormalizeCode(code)
	e := r.entry(code)
	if e == nil {
		return nil, "", fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, "", fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	if e.room.HostID != requestorID {
		return nil, "", fmt.Errorf("only the host can start the game: %w", model.ErrNotAuthorized)
	}
	if e.room.GameState != model.GameWaiting {
		return nil, "", fmt.Errorf("room %s: %w", code, model.ErrAlreadyStarted)
	}

	active := make([]string, 0, len(e.room.Players))
	for _, p := range e.room.Players {
		if p.Status == model.PlayerLobby && p.ConnectionID != "" {
			p.Status = model.PlayerInGame
			active = append(active, p.ID)
		} else if p.Status == model.PlayerLobby {
			p.Status = model.PlayerSpectating
		}
	}
	e.room.ActivePlayerIDs = active
	e.room.GameState = model.GamePlaying

	r.notify(e, string(protocol.EventGameStarted), protocol.GameStartedPayload{
		RoomCode:        code,
		ActivePlayerIDs: append([]string(nil), active...),
		GameState:       model.GamePlaying,
	})

	log.Printf("game started in room %s with %d active players", code, len(active))
	return append([]string(nil), active...), model.GamePlaying, nil
}

// ApplyPlayerUpdate merges a gameplay delta into the matching player and
// broadcasts the new state. Unknown rooms and players are no-ops so duplicate
// or stale deliveries never fail.
func (r *Registry) ApplyPlayerUpdate(code, playerID string, delta model.PlayerUpdate) {
	e := r.entry(NormalizeCode(code))
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	p := e.room.FindPlayer(playerID)
	if p == nil {
		return
	}
	p.Apply(delta, time.Now())
	r.notify(e, string(protocol.EventPlayerStateUpdated), p.Clone())
}

// FinishGame applies the external game-over determination. The state machine
// never skips states, so only a playing room can finish.
func (r *Registry) FinishGame(code string) error {
	e := r.entry(NormalizeCode(code))
	if e == nil {
		return fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	if e.room.GameState != model.GamePlaying {
		return fmt.Errorf("room %s is not in progress: %w", code, model.ErrValidation)
	}
	e.room.GameState = model.GameFinished
	log.Printf("game finished in room %s", code)
	return nil
}

// Room returns a snapshot of the room, or a not-found error.
func (r *Registry) Room(code string) (*model.Room, error) {
	e := r.entry(NormalizeCode(code))
	if e == nil {
		return nil, fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	return e.room.Clone(), nil
}

// DetachConnection records that a transport session dropped. The player keeps
// their seat for the leave grace period; if nothing reattaches in time the
// disconnect becomes a leave.
func (r *Registry) DetachConnection(connID string) {
	if connID == "" {
		return
	}
	r.mu.Lock()
	ref, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
	}
	r.mu.Unlock()
	if !ok || ref.playerID == "" {
		return
	}

	e := r.entry(ref.code)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	p := e.room.FindPlayer(ref.playerID)
	if p == nil || p.ConnectionID != connID {
		return
	}
	p.ConnectionID = ""
	code, playerID := ref.code, ref.playerID
	if t, ok := e.grace[playerID]; ok {
		t.Stop()
	}
	e.grace[playerID] = time.AfterFunc(r.opts.LeaveGrace, func() {
		// A reattach in the meantime stops this timer; a lost race just
		// makes Leave a no-op for an already-removed player.
		_ = r.Leave(code, playerID)
	})
	log.Printf("player %s detached from room %s, grace %s", playerID, code, r.opts.LeaveGrace)
}

// ReattachConnection rebinds a returning transport session to the player it
// belonged to, cancelling the pending grace removal. Returns the current
// room snapshot and the player so the client can resync its local view.
func (r *Registry) ReattachConnection(code, playerID, connID string) (*model.Room, *model.Player, error) {
	code = NormalizeCode(code)

	r.mu.Lock()
	if _, busy := r.byConn[connID]; connID != "" && busy {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("connection already in a room: %w", model.ErrValidation)
	}
	e, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	if connID != "" {
		r.byConn[connID] = memberRef{code: code}
	}
	r.mu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		r.releaseConn(connID)
		return nil, nil, fmt.Errorf("room %s: %w", code, model.ErrNotFound)
	}
	p := e.room.FindPlayer(playerID)
	if p == nil {
		e.mu.Unlock()
		r.releaseConn(connID)
		return nil, nil, fmt.Errorf("player %s: %w", playerID, model.ErrNotFound)
	}
	if t, ok := e.grace[playerID]; ok {
		t.Stop()
		delete(e.grace, playerID)
	}
	p.ConnectionID = connID
	p.LastAction = time.Now()
	snapshot := e.room.Clone()
	player := p.Clone()
	e.mu.Unlock()

	if connID != "" {
		r.mu.Lock()
		r.byConn[connID] = memberRef{code: code, playerID: playerID}
		r.mu.Unlock()
	}

	log.Printf("player %s reattached to room %s", playerID, code)
	return snapshot, player, nil
}

// Member resolves a connection to its room code and player ID.
func (r *Registry) Member(connID string) (code, playerID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.byConn[connID]
	if !ok || ref.playerID == "" {
		return "", "", false
	}
	return ref.code, ref.playerID, true
}

// Stats reports the active room count and total player count for /health.
func (r *Registry) Stats() (activeRooms, totalPlayers int) {
	r.mu.RLock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if !e.closed {
			activeRooms++
			totalPlayers += len(e.room.Players)
		}
		e.mu.Unlock()
	}
	return activeRooms, totalPlayers
}

func (r *Registry) entry(code string) *roomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[code]
}

func (r *Registry) releaseConn(connID string) {
	if connID == "" {
		return
	}
	r.mu.Lock()
	delete(r.byConn, connID)
	r.mu.Unlock()
}

// notify is called with the room entry lock held so broadcasts enter the
// hub's queue in mutation order.
func (r *Registry) notify(e *roomEntry, msgType string, payload interface{}) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.BroadcastToRoom(e.room.ID, msgType, payload)
}

func newPlayer(username, connID string) *model.Player {
	now := time.Now()
	return &model.Player{
		ID:           "p_" + uuid.New().String()[:8],
		Username:     username,
		ConnectionID: connID,
		Status:       model.PlayerLobby,
		LastAction:   now,
		JoinedAt:     now,
	}
}

// NormalizeCode uppercases a room code the way every lookup expects it.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// reserveCodeLocked generates a collision-free 6-char room code. Requires
// r.mu held for writing.
func (r *Registry) reserveCodeLocked() (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, codeLen)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		code := make([]byte, codeLen)
		for i := range code {
			code[i] = chars[int(b[i])%len(chars)]
		}
		if _, exists := r.rooms[string(code)]; !exists {
			return string(code), nil
		}
	}
	return "", fmt.Errorf("failed to generate unique room code")
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
