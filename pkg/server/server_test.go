package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

// InMemoryDB implements Database for tests. Snapshots are stored as
// JSON so saved state cannot alias live state.
type InMemoryDB struct {
	mu      sync.RWMutex
	rooms   map[string][]byte
	matches []*MatchResult
}

func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{rooms: make(map[string][]byte)}
}

func (m *InMemoryDB) SaveRoom(state *karata.RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rooms[state.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *InMemoryDB) LoadRoom(roomID string) (*karata.RoomState, error) {
	m.mu.RLock()
	data, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %s not found", roomID)
	}
	var state karata.RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *InMemoryDB) ListRoomIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *InMemoryDB) DeleteRoom(roomID string) error {
	m.mu.Lock()
	delete(m.rooms, roomID)
	m.mu.Unlock()
	return nil
}

func (m *InMemoryDB) RecordMatchResult(rec *MatchResult) error {
	m.mu.Lock()
	rec.ID = int64(len(m.matches) + 1)
	m.matches = append(m.matches, rec)
	m.mu.Unlock()
	return nil
}

func (m *InMemoryDB) ListMatchResults(limit int) ([]*MatchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*MatchResult, 0, limit)
	for i := len(m.matches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.matches[i])
	}
	return out, nil
}

func (m *InMemoryDB) Close() error { return nil }

func createTestLogBackend() *logging.LogBackend {
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        "",
		DebugLevel:     "error",
		MaxLogFiles:    1,
		MaxBufferLines: 100,
	})
	if err != nil {
		return &logging.LogBackend{}
	}
	return logBackend
}

// newTestServer builds a server over an in-memory database and tears
// it down with the test.
func newTestServer(t *testing.T, cfg Config) (*Server, *InMemoryDB) {
	t.Helper()
	db := NewInMemoryDB()
	logBackend := createTestLogBackend()
	s := NewServer(db, logBackend, cfg)
	t.Cleanup(func() {
		s.Stop()
		logBackend.Close()
	})
	return s, db
}

// newConn builds a connection with no websocket behind it; frames pile
// up on Send where tests read them.
func newConn(s *Server) *Connection {
	c := &Connection{
		ID:   uuid.New().String(),
		Send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		srv:  s,
	}
	s.addConnection(c)
	return c
}

// connectPlayer opens a connection and says hello on it.
func connectPlayer(s *Server, playerID string) *Connection {
	c := newConn(s)
	s.handleHello(c, wire.HelloPayload{PlayerID: playerID})
	return c
}

// waitForMsg discards queued frames until one of the wanted type
// arrives.
func waitForMsg(t *testing.T, c *Connection, msgType string) *wire.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.Send:
			var env wire.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Type == msgType {
				return &env
			}
		case <-deadline:
			t.Fatalf("no %s message arrived", msgType)
			return nil
		}
	}
}

func decodePayload[T any](t *testing.T, env *wire.Envelope) T {
	t.Helper()
	var p T
	require.NoError(t, env.Decode(&p))
	return p
}

func drainConn(c *Connection) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

// createRoom creates a room through the wire handler and returns its
// invite link.
func createRoom(t *testing.T, s *Server, c *Connection, min, max int) string {
	t.Helper()
	s.handleCreateRoom(c, wire.CreateRoomPayload{MinPlayers: min, MaxPlayers: max})
	env := waitForMsg(t, c, wire.TypeRoomCreated)
	created := decodePayload[wire.RoomCreatedPayload](t, env)
	require.NotEmpty(t, created.InviteLink)
	return created.InviteLink
}

func TestServerLobby(t *testing.T) {
	t.Run("hello comes first", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		c := newConn(s)

		s.dispatch(c, &wire.Envelope{Type: wire.TypeCreateRoom})

		env := waitForMsg(t, c, wire.TypeError)
		errPayload := decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "say hello first", errPayload.Message)
	})

	t.Run("hello binds identity", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		c := newConn(s)

		s.handleHello(c, wire.HelloPayload{})
		env := waitForMsg(t, c, wire.TypeError)
		errPayload := decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "player id required", errPayload.Message)

		s.handleHello(c, wire.HelloPayload{PlayerID: "alice"})
		assert.Equal(t, "alice", c.PlayerID())
		assert.Equal(t, "alice", c.Name())
		assert.Equal(t, c, s.connForPlayer("alice"))

		s.handleHello(c, wire.HelloPayload{PlayerID: "alice", Name: "Alice B"})
		assert.Equal(t, "Alice B", c.Name())
	})

	t.Run("second hello supersedes the first connection", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		c1 := connectPlayer(s, "alice")
		c2 := connectPlayer(s, "alice")

		assert.Equal(t, c2, s.connForPlayer("alice"))
		select {
		case <-c1.done:
		default:
			t.Fatal("superseded connection was not closed")
		}

		// The old read loop exiting must not unbind the new connection.
		s.removeConnection(c1)
		assert.Equal(t, c2, s.connForPlayer("alice"))
	})

	t.Run("create room", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")

		link := createRoom(t, s, alice, 2, 4)
		room := s.getRoom(link)
		require.NotNil(t, room)
		assert.Equal(t, "alice", room.HostID())
		assert.Equal(t, 1, room.UserCount())

		// One room at a time.
		s.handleCreateRoom(alice, wire.CreateRoomPayload{MinPlayers: 2, MaxPlayers: 4})
		env := waitForMsg(t, alice, wire.TypeError)
		errPayload := decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "leave your current room first", errPayload.Message)
	})

	t.Run("join room", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")
		bob := connectPlayer(s, "bob")
		carol := connectPlayer(s, "carol")

		link := createRoom(t, s, alice, 2, 2)

		s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
		env := waitForMsg(t, bob, wire.TypeUpdateRoomState)
		state := decodePayload[wire.RoomStatePayload](t, env)
		assert.Equal(t, link, state.Room.InviteLink)
		assert.Len(t, state.Room.Players, 2)

		s.handleJoinRoom(carol, wire.JoinRoomPayload{InviteLink: link})
		env = waitForMsg(t, carol, wire.TypeError)
		errPayload := decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "room is full (2/2)", errPayload.Message)

		s.handleJoinRoom(carol, wire.JoinRoomPayload{InviteLink: "no-such-room"})
		env = waitForMsg(t, carol, wire.TypeError)
		errPayload = decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "room not found", errPayload.Message)

		// Seated players cannot wander into another room.
		other := createRoom(t, s, carol, 2, 4)
		s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: other})
		env = waitForMsg(t, bob, wire.TypeError)
		errPayload = decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "leave your current room first", errPayload.Message)
	})

	t.Run("rejoining resends state", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")
		bob := connectPlayer(s, "bob")

		link := createRoom(t, s, alice, 2, 4)
		s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
		waitForMsg(t, bob, wire.TypeUpdateRoomState)
		drainConn(bob)

		s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
		waitForMsg(t, bob, wire.TypeUpdateRoomState)
		assert.Equal(t, 2, s.getRoom(link).UserCount())
	})

	t.Run("all ready starts the game", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")
		bob := connectPlayer(s, "bob")

		link := createRoom(t, s, alice, 2, 2)
		s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
		room := s.getRoom(link)

		s.handleSetReady(alice, wire.SetReadyPayload{InviteLink: link, Ready: true})
		assert.False(t, room.IsGameStarted())

		s.handleSetReady(bob, wire.SetReadyPayload{InviteLink: link, Ready: true})
		require.True(t, room.IsGameStarted())

		env := waitForMsg(t, alice, wire.TypeUpdateGameStatus)
		status := decodePayload[wire.UpdateGameStatusPayload](t, env)
		assert.True(t, status.Started)

		env = waitForMsg(t, alice, wire.TypeAddCardRangeToPile)
		pile := decodePayload[wire.CardRangePayload](t, env)
		require.Len(t, pile.Cards, 1)
		assert.True(t, pile.Cards[0].IsBoring(), "starter must be boring, got %s", pile.Cards[0])

		env = waitForMsg(t, alice, wire.TypeAddCardRangeToHand)
		hand := decodePayload[wire.CardRangePayload](t, env)
		assert.Len(t, hand.Cards, 4)

		env = waitForMsg(t, alice, wire.TypeUpdateTurn)
		turn := decodePayload[wire.UpdateTurnPayload](t, env)
		assert.Equal(t, room.Game().CurrentTurnIndex(), turn.Turn)

		// Other seats see hand sizes, never hand contents.
		env = waitForMsg(t, bob, wire.TypeAddCardsToPlayerHand)
		count := decodePayload[wire.PlayerCardCountPayload](t, env)
		assert.Equal(t, "alice", count.PlayerID)
		assert.Equal(t, 4, count.Count)
	})

	t.Run("leaving transfers the host", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")
		bob := connectPlayer(s, "bob")

		link := createRoom(t, s, alice, 2, 4)
		time.Sleep(2 * time.Millisecond)
		s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
		room := s.getRoom(link)

		s.handleLeaveRoom(alice, wire.LeaveRoomPayload{InviteLink: link})

		assert.Equal(t, "bob", room.HostID())
		assert.Nil(t, room.GetUser("alice"))
		env := waitForMsg(t, alice, wire.TypeReceiveSystemMessage)
		msg := decodePayload[wire.SystemMessagePayload](t, env)
		assert.Equal(t, "you left the room", msg.Text)
	})

	t.Run("empty room is torn down", func(t *testing.T) {
		s, db := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")

		link := createRoom(t, s, alice, 2, 4)
		s.saveWg.Wait()
		s.handleLeaveRoom(alice, wire.LeaveRoomPayload{InviteLink: link})

		assert.Nil(t, s.getRoom(link))
		ids, err := db.ListRoomIDs()
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("leaving a running game ends it", func(t *testing.T) {
		s, db := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")
		bob := connectPlayer(s, "bob")

		link := createRoom(t, s, alice, 2, 2)
		s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
		room := s.getRoom(link)
		s.handleSetReady(alice, wire.SetReadyPayload{InviteLink: link, Ready: true})
		s.handleSetReady(bob, wire.SetReadyPayload{InviteLink: link, Ready: true})
		require.True(t, room.IsGameStarted())
		drainConn(bob)

		s.handleLeaveRoom(alice, wire.LeaveRoomPayload{InviteLink: link})

		env := waitForMsg(t, bob, wire.TypeEndGame)
		end := decodePayload[wire.EndGamePayload](t, env)
		assert.Equal(t, "alice left the game", end.Reason)
		assert.Empty(t, end.WinnerID)
		assert.False(t, room.IsGameStarted())

		results, err := db.ListMatchResults(10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, link, results[0].RoomID)
		assert.Empty(t, results[0].WinnerID)
	})

	t.Run("list rooms", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")
		carol := connectPlayer(s, "carol")
		dave := connectPlayer(s, "dave")

		first := createRoom(t, s, alice, 2, 4)
		time.Sleep(2 * time.Millisecond)
		second := createRoom(t, s, carol, 3, 4)

		s.handleListRooms(dave)
		env := waitForMsg(t, dave, wire.TypeRoomList)
		list := decodePayload[wire.RoomListPayload](t, env)
		require.Len(t, list.Rooms, 2)
		assert.Equal(t, first, list.Rooms[0].InviteLink)
		assert.Equal(t, second, list.Rooms[1].InviteLink)
		assert.Equal(t, "alice", list.Rooms[0].HostID)
		assert.Equal(t, 1, list.Rooms[0].PlayerCount)
		assert.Equal(t, 3, list.Rooms[1].MinPlayers)
		assert.False(t, list.Rooms[0].GameStarted)
	})

	t.Run("list matches", func(t *testing.T) {
		s, db := newTestServer(t, Config{Seed: 42})
		for i := 1; i <= 3; i++ {
			require.NoError(t, db.RecordMatchResult(&MatchResult{
				RoomID:     fmt.Sprintf("room-%d", i),
				WinnerID:   "alice",
				Reason:     "alice won the game",
				Turns:      i,
				FinishedAt: time.Now(),
			}))
		}
		dave := connectPlayer(s, "dave")

		s.handleListMatches(dave, wire.ListMatchesPayload{Limit: 2})
		env := waitForMsg(t, dave, wire.TypeMatchList)
		list := decodePayload[wire.MatchListPayload](t, env)
		require.Len(t, list.Matches, 2)
		assert.Equal(t, "room-3", list.Matches[0].RoomID)
		assert.Equal(t, "room-2", list.Matches[1].RoomID)
	})

	t.Run("unknown message type", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")

		s.dispatch(alice, &wire.Envelope{Type: "poke"})
		env := waitForMsg(t, alice, wire.TypeError)
		errPayload := decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, `unknown message type "poke"`, errPayload.Message)
	})

	t.Run("malformed payload", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")

		s.dispatch(alice, &wire.Envelope{
			Type:    wire.TypeCreateRoom,
			Payload: json.RawMessage(`"not an object"`),
		})
		env := waitForMsg(t, alice, wire.TypeError)
		errPayload := decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "bad createRoom payload", errPayload.Message)
	})
}

func TestServerDisconnectEndsGame(t *testing.T) {
	s, db := newTestServer(t, Config{Seed: 42})
	alice := connectPlayer(s, "alice")
	bob := connectPlayer(s, "bob")

	link := createRoom(t, s, alice, 2, 2)
	s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
	room := s.getRoom(link)
	s.handleSetReady(alice, wire.SetReadyPayload{InviteLink: link, Ready: true})
	s.handleSetReady(bob, wire.SetReadyPayload{InviteLink: link, Ready: true})
	require.True(t, room.IsGameStarted())
	drainConn(bob)

	// The read loop exiting is the disconnect.
	s.removeConnection(alice)

	require.Eventually(t, func() bool {
		return !room.IsGameStarted()
	}, 2*time.Second, 10*time.Millisecond, "game did not end after the disconnect")

	env := waitForMsg(t, bob, wire.TypeEndGame)
	end := decodePayload[wire.EndGamePayload](t, env)
	assert.Equal(t, "alice disconnected", end.Reason)
	assert.Empty(t, end.WinnerID)

	// The seat survives for a later hello.
	user := room.GetUser("alice")
	require.NotNil(t, user)
	assert.True(t, user.IsDisconnected)

	results, err := db.ListMatchResults(10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].WinnerID)

	// Hello reattaches the seat.
	alice2 := connectPlayer(s, "alice")
	waitForMsg(t, alice2, wire.TypeUpdateRoomState)
	assert.False(t, room.GetUser("alice").IsDisconnected)
}

// A lobby-phase disconnect keeps the seat: it is only marked
// disconnected, and a later hello reattaches it. Seats are vacated by
// leaveRoom alone.
func TestServerLobbyDisconnectKeepsSeat(t *testing.T) {
	s, _ := newTestServer(t, Config{Seed: 7})
	alice := connectPlayer(s, "alice")
	bob := connectPlayer(s, "bob")

	link := createRoom(t, s, alice, 2, 3)
	s.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
	room := s.getRoom(link)
	require.False(t, room.IsGameStarted())

	s.removeConnection(bob)

	user := room.GetUser("bob")
	require.NotNil(t, user, "the seat must survive a lobby disconnect")
	assert.True(t, user.IsDisconnected)
	assert.Equal(t, 2, room.UserCount())

	// Hello reattaches the seat and pushes the room state.
	bob2 := connectPlayer(s, "bob")
	waitForMsg(t, bob2, wire.TypeUpdateRoomState)
	assert.False(t, room.GetUser("bob").IsDisconnected)
}

func TestServerRestartRestoresLobby(t *testing.T) {
	db := NewInMemoryDB()
	logBackend := createTestLogBackend()
	defer logBackend.Close()

	s1 := NewServer(db, logBackend, Config{Seed: 7})
	alice := connectPlayer(s1, "alice")
	bob := connectPlayer(s1, "bob")

	link := createRoom(t, s1, alice, 2, 3)
	s1.handleJoinRoom(bob, wire.JoinRoomPayload{InviteLink: link})
	s1.handleSetReady(alice, wire.SetReadyPayload{InviteLink: link, Ready: true})

	room1 := s1.getRoom(link)
	require.False(t, room1.IsGameStarted())

	s1.Stop()

	s2 := NewServer(db, logBackend, Config{Seed: 7})
	defer s2.Stop()

	room2 := s2.getRoom(link)
	require.NotNil(t, room2, "saved room did not come back")
	assert.False(t, room2.IsGameStarted())
	assert.Equal(t, "alice", room2.HostID())
	require.NotNil(t, room2.GetUser("bob"))
	assert.True(t, room2.GetUser("alice").IsReady)
	assert.False(t, room2.GetUser("bob").IsReady)

	// Everyone comes back disconnected until they say hello.
	for _, u := range room2.GetUsers() {
		assert.True(t, u.IsDisconnected, "user %s should start disconnected", u.ID)
	}

	results, err := db.ListMatchResults(10)
	require.NoError(t, err)
	assert.Empty(t, results, "a lobby restore is not an interrupted game")
}

// TestServerRestartEndsInterruptedGames pins down what a restart does
// to a game whose snapshot was taken halfway through a turn: the ace
// is on the pile but the request it earned is still blocked on an
// unanswered prompt. Such a game cannot resume and ends as
// interrupted, returning the room to the lobby.
func TestServerRestartEndsInterruptedGames(t *testing.T) {
	gs := buildGameState(t,
		[]karata.PlayerState{
			statePlayer("alice", 0, false,
				karata.NewCard(karata.Hearts, karata.Ace),
				karata.NewCard(karata.Hearts, karata.Nine)),
			statePlayer("bob", 1, false, karata.NewCard(karata.Clubs, karata.Four)),
		},
		[]karata.Card{karata.NewCard(karata.Hearts, karata.Seven)},
	)
	fx := startFixture(t, Config{Seed: 7}, gs)
	alice := fx.conns["alice"]

	// Play the ace and leave its card request unanswered, then save:
	// the snapshot now holds a half-executed turn.
	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.s.handlePerformTurn(alice, wire.PerformTurnPayload{
			InviteLink: fx.link,
			Cards:      []karata.Card{karata.NewCard(karata.Hearts, karata.Ace)},
		})
	}()
	require.Eventually(t, func() bool {
		return fx.s.prompts.HasOutstanding(alice.ID)
	}, 2*time.Second, 10*time.Millisecond, "turn never reached the card request prompt")

	// Let the turn's own async save land first, then snapshot.
	fx.s.saveWg.Wait()
	require.NoError(t, fx.s.saveRoomState(fx.link, "mid-turn"))

	logBackend := createTestLogBackend()
	defer logBackend.Close()
	s2 := NewServer(fx.db, logBackend, Config{Seed: 7})
	defer s2.Stop()

	room2 := s2.getRoom(fx.link)
	require.NotNil(t, room2, "saved room did not come back")
	assert.False(t, room2.IsGameStarted(), "an interrupted game must not resume")
	assert.Nil(t, room2.Game())
	require.NotNil(t, room2.GetUser("alice"))
	require.NotNil(t, room2.GetUser("bob"))
	for _, u := range room2.GetUsers() {
		assert.False(t, u.IsReady, "user %s should be back to unready", u.ID)
		assert.True(t, u.IsDisconnected, "user %s should start disconnected", u.ID)
	}

	results, err := fx.db.ListMatchResults(10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fx.link, results[0].RoomID)
	assert.Equal(t, "server restarted", results[0].Reason)
	assert.Empty(t, results[0].WinnerID)

	// The lobby snapshot overwrote the in-flight one, so yet another
	// restart does not record the interruption twice.
	s3 := NewServer(fx.db, logBackend, Config{Seed: 7})
	defer s3.Stop()
	results, err = fx.db.ListMatchResults(10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Unblock the first server's turn before teardown.
	fx.s.prompts.CancelConn(alice.ID)
	<-done
}
