package karata

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/karata/pkg/statemachine"
)

// RoomStateFn is a room lifecycle state following Rob Pike's pattern.
type RoomStateFn = statemachine.StateFn[Room]

// User is someone seated in a room, playing or not. Game-level state
// (hand, last-card flag) lives on the Player created at game start.
type User struct {
	ID             string
	Name           string
	Seat           int
	IsReady        bool
	JoinedAt       time.Time
	IsDisconnected bool
}

// NewUser creates a seated user.
func NewUser(id, name string, seat int) *User {
	return &User{
		ID:       id,
		Name:     name,
		Seat:     seat,
		JoinedAt: time.Now(),
	}
}

// RoomConfig holds configuration for a new room.
type RoomConfig struct {
	ID         string // invite link
	Log        slog.Logger
	GameLog    slog.Logger
	HostID     string
	MinPlayers int
	MaxPlayers int
	Seed       int64 // Optional seed for deterministic games
}

// Room manages the users of one game room and delegates play to Game.
// It owns the lifecycle state machine (waiting for players, players
// ready, game active) and the per-room turn mutex that serializes turn
// processing.
type Room struct {
	log       slog.Logger
	config    RoomConfig
	users     map[string]*User
	game      *Game
	mu        sync.RWMutex
	createdAt time.Time

	// turnMu serializes turns. It is held for the whole of a turn,
	// prompt awaits included, and is never acquired while mu is held.
	turnMu sync.Mutex

	stateMachine *statemachine.StateMachine[Room]
}

// NewRoom creates a room in the waiting-for-players state.
func NewRoom(cfg RoomConfig) *Room {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	r := &Room{
		log:       log,
		config:    cfg,
		users:     make(map[string]*User),
		createdAt: time.Now(),
	}
	r.stateMachine = statemachine.New(r, roomStateWaitingForPlayers)
	return r
}

// Lifecycle states. Each does its check and returns the state to
// settle on; external triggers (StartGame, EndGame) dispatch directly.

func roomStateWaitingForPlayers(r *Room) RoomStateFn {
	if len(r.users) >= r.config.MinPlayers {
		allReady := true
		for _, u := range r.users {
			if !u.IsReady {
				allReady = false
				break
			}
		}
		if allReady {
			return roomStatePlayersReady
		}
	}
	return roomStateWaitingForPlayers
}

func roomStatePlayersReady(r *Room) RoomStateFn {
	// Waits for the external StartGame trigger; falls back when a
	// seat empties or a ready flag drops.
	if len(r.users) < r.config.MinPlayers {
		return roomStateWaitingForPlayers
	}
	for _, u := range r.users {
		if !u.IsReady {
			return roomStateWaitingForPlayers
		}
	}
	return roomStatePlayersReady
}

func roomStateGameActive(r *Room) RoomStateFn {
	return roomStateGameActive
}

// StateString returns the lifecycle phase as a string.
func (r *Room) StateString() string {
	current := r.stateMachine.Current()
	if current == nil {
		return "TERMINATED"
	}
	switch fmt.Sprintf("%p", current) {
	case fmt.Sprintf("%p", roomStateWaitingForPlayers):
		return "WAITING_FOR_PLAYERS"
	case fmt.Sprintf("%p", roomStatePlayersReady):
		return "PLAYERS_READY"
	case fmt.Sprintf("%p", roomStateGameActive):
		return "GAME_ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// ID returns the room's invite link.
func (r *Room) ID() string {
	return r.config.ID
}

// HostID returns the current host.
func (r *Room) HostID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.HostID
}

// CreatedAt returns the room creation time.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Config returns the room configuration.
func (r *Room) Config() RoomConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// AddUser seats a user at the lowest free seat. Joining a full or
// already-started room fails, except that a user who already holds a
// seat rejoins their own seat (a reconnect).
func (r *Room) AddUser(id, name string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[id]; ok {
		existing.IsDisconnected = false
		r.log.Debugf("user %s reconnected to room %s", id, r.config.ID)
		return existing, nil
	}
	if r.isGameActiveLocked() {
		return nil, fmt.Errorf("game already started")
	}
	if len(r.users) >= r.config.MaxPlayers {
		return nil, fmt.Errorf("room is full (%d/%d)", len(r.users), r.config.MaxPlayers)
	}

	user := NewUser(id, name, r.lowestFreeSeatLocked())
	r.users[id] = user
	r.stateMachine.Dispatch(r.stateMachine.Current())
	r.log.Infof("user %s joined room %s at seat %d", id, r.config.ID, user.Seat)
	return user, nil
}

func (r *Room) lowestFreeSeatLocked() int {
	taken := make(map[int]bool, len(r.users))
	for _, u := range r.users {
		taken[u.Seat] = true
	}
	for seat := 0; ; seat++ {
		if !taken[seat] {
			return seat
		}
	}
}

// RemoveUser unseats a user. When the host leaves, the role passes to
// the longest-seated remaining user.
func (r *Room) RemoveUser(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("user %s is not in room %s", id, r.config.ID)
	}
	delete(r.users, id)

	if r.config.HostID == id && len(r.users) > 0 {
		var oldest *User
		for _, u := range r.users {
			if oldest == nil || u.JoinedAt.Before(oldest.JoinedAt) {
				oldest = u
			}
		}
		r.config.HostID = oldest.ID
		r.log.Infof("host of room %s transferred to %s", r.config.ID, oldest.ID)
	}
	r.stateMachine.Dispatch(r.stateMachine.Current())
	return nil
}

// RestoreUser reseats a user from a persisted snapshot, keeping their
// original seat, ready flag and join time. Restored users stay
// disconnected until they say hello again.
func (r *Room) RestoreUser(st UserState) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[st.ID]; ok {
		return nil, fmt.Errorf("user %s is already seated in room %s", st.ID, r.config.ID)
	}
	user := &User{
		ID:             st.ID,
		Name:           st.Name,
		Seat:           st.Seat,
		IsReady:        st.IsReady,
		JoinedAt:       st.JoinedAt,
		IsDisconnected: true,
	}
	r.users[st.ID] = user
	r.stateMachine.Dispatch(r.stateMachine.Current())
	return user, nil
}

// GetUser returns the seated user with the given id, or nil.
func (r *Room) GetUser(id string) *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[id]
}

// GetUsers returns all seated users in seat order.
func (r *Room) GetUsers() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Seat < users[j].Seat
	})
	return users
}

// UserCount returns the number of seated users.
func (r *Room) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// SetUserReady flips a user's ready flag and lets the state machine
// re-evaluate the lifecycle phase.
func (r *Room) SetUserReady(id string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %s is not in room %s", id, r.config.ID)
	}
	user.IsReady = ready
	r.stateMachine.Dispatch(r.stateMachine.Current())
	return nil
}

// MarkDisconnected records a user's connection state without unseating
// them.
func (r *Room) MarkDisconnected(id string, disconnected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.IsDisconnected = disconnected
	}
}

// AllReady reports whether the room can start: minimum count met and
// every seated user ready.
func (r *Room) AllReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stateMachine.Dispatch(r.stateMachine.Current())
	state := r.StateString()
	return state == "PLAYERS_READY" || state == "GAME_ACTIVE"
}

// IsGameStarted reports whether a game is running.
func (r *Room) IsGameStarted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isGameActiveLocked()
}

func (r *Room) isGameActiveLocked() bool {
	return r.StateString() == "GAME_ACTIVE"
}

// StartGame creates and starts a game for the seated users, in seat
// order, and moves the room to the active phase.
func (r *Room) StartGame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.StateString() != "PLAYERS_READY" {
		return fmt.Errorf("cannot start game: room not in PLAYERS_READY state")
	}
	if len(r.users) < r.config.MinPlayers {
		return fmt.Errorf("not enough players to start game")
	}

	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Seat < users[j].Seat
	})

	players := make([]*Player, 0, len(users))
	for _, u := range users {
		players = append(players, NewPlayer(u.ID, u.Name, u.Seat))
	}

	gameLog := r.config.GameLog
	if gameLog == nil {
		gameLog = r.log
	}
	game, err := NewGame(GameConfig{
		Players: players,
		Seed:    r.config.Seed,
		Log:     gameLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	if err := game.Start(); err != nil {
		return fmt.Errorf("failed to start game: %w", err)
	}
	r.game = game

	r.stateMachine.Dispatch(roomStateGameActive)
	return nil
}

// RestoreGame adopts a game rebuilt from a persisted snapshot and
// moves the room straight to the active phase. Every snapshot player
// must already be seated.
func (r *Room) RestoreGame(state GameState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game != nil {
		return fmt.Errorf("room %s already has a game", r.config.ID)
	}
	for _, ps := range state.Players {
		if _, ok := r.users[ps.ID]; !ok {
			return fmt.Errorf("snapshot player %s is not seated in room %s", ps.ID, r.config.ID)
		}
	}

	gameLog := r.config.GameLog
	if gameLog == nil {
		gameLog = r.log
	}
	game, err := RestoreGame(GameConfig{Seed: r.config.Seed, Log: gameLog}, state)
	if err != nil {
		return err
	}
	r.game = game
	r.stateMachine.Dispatch(roomStateGameActive)
	return nil
}

// Game returns the running game, or nil outside the active phase.
func (r *Room) Game() *Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.game
}

// EndGame drops the game, resets every ready flag, and returns the
// room to the waiting phase.
func (r *Room) EndGame() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.game = nil
	for _, u := range r.users {
		u.IsReady = false
	}
	r.stateMachine.Dispatch(roomStateWaitingForPlayers)
	r.log.Infof("room %s returned to lobby", r.config.ID)
}

// AcquireTurn takes the per-room turn mutex. It serializes turn
// processing and is held across prompt awaits.
func (r *Room) AcquireTurn() {
	r.turnMu.Lock()
}

// ReleaseTurn releases the per-room turn mutex.
func (r *Room) ReleaseTurn() {
	r.turnMu.Unlock()
}

// UserState is the persisted view of one seated user.
type UserState struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Seat     int       `json:"seat"`
	IsReady  bool      `json:"is_ready"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomState is the persisted view of a whole room.
type RoomState struct {
	ID         string      `json:"id"`
	HostID     string      `json:"host_id"`
	MinPlayers int         `json:"min_players"`
	MaxPlayers int         `json:"max_players"`
	Phase      string      `json:"phase"`
	CreatedAt  time.Time   `json:"created_at"`
	Users      []UserState `json:"users"`
	Game       *GameState  `json:"game,omitempty"`
}

// GetStateSnapshot captures the room and, when a game is running, the
// full game for persistence.
func (r *Room) GetStateSnapshot() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := RoomState{
		ID:         r.config.ID,
		HostID:     r.config.HostID,
		MinPlayers: r.config.MinPlayers,
		MaxPlayers: r.config.MaxPlayers,
		Phase:      r.StateString(),
		CreatedAt:  r.createdAt,
	}
	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Seat < users[j].Seat
	})
	for _, u := range users {
		state.Users = append(state.Users, UserState{
			ID:       u.ID,
			Name:     u.Name,
			Seat:     u.Seat,
			IsReady:  u.IsReady,
			JoinedAt: u.JoinedAt,
		})
	}
	if r.game != nil {
		gs := r.game.GetStateSnapshot()
		state.Game = &gs
	}
	return state
}
