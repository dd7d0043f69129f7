package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/vctt94/karata/pkg/karata"
)

// Config carries the server's tunables.
type Config struct {
	// Seed makes every game deterministic when nonzero. Leave zero in
	// production; the deck seeds itself from the clock.
	Seed int64

	// PromptTimeout bounds how long a turn waits on a prompt answer
	// before it is treated as a disconnect. Zero means the default.
	PromptTimeout time.Duration
}

// Server owns the rooms, the connections, and everything that flows
// between them. One instance serves every room; rooms progress
// independently under their own turn mutexes.
type Server struct {
	log        slog.Logger
	logBackend *logging.LogBackend
	db         Database
	cfg        Config

	mu    sync.RWMutex
	rooms map[string]*karata.Room

	connsMu     sync.RWMutex
	conns       map[string]*Connection
	playerConns map[string]*Connection

	prompts *PromptRegistry
	events  *EventProcessor

	saveMu      sync.Mutex
	saveMutexes map[string]*sync.Mutex
	saveWg      sync.WaitGroup
}

// NewServer wires a server to its database, restores any saved rooms,
// and starts the event pipeline.
func NewServer(db Database, logBackend *logging.LogBackend, cfg Config) *Server {
	s := &Server{
		log:         logBackend.Logger("SERVER"),
		logBackend:  logBackend,
		db:          db,
		cfg:         cfg,
		rooms:       make(map[string]*karata.Room),
		conns:       make(map[string]*Connection),
		playerConns: make(map[string]*Connection),
		prompts:     NewPromptRegistry(cfg.PromptTimeout),
		saveMutexes: make(map[string]*sync.Mutex),
	}

	s.events = NewEventProcessor(logBackend.Logger("EVENT"), defaultEventWorkers)
	s.events.RegisterHandler(&NotificationHandler{srv: s, log: logBackend.Logger("NTFN")})
	s.events.RegisterHandler(&RoomStateHandler{srv: s, log: logBackend.Logger("NTFN")})
	s.events.RegisterHandler(&PersistenceHandler{srv: s, log: logBackend.Logger("SERVER")})
	s.events.Start()

	if err := s.loadSavedRooms(); err != nil {
		s.log.Warnf("loading saved rooms: %v", err)
	}
	return s
}

// Stop drains the event pipeline, waits out in-flight saves, and
// writes a final snapshot of every room.
func (s *Server) Stop() {
	s.events.Stop()
	s.saveWg.Wait()

	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.saveRoomState(id, "shutdown"); err != nil {
			s.log.Errorf("final save of room %s failed: %v", id, err)
		}
	}
	s.log.Infof("server stopped, %d rooms saved", len(ids))
}

// getRoom returns a room by invite link, or nil.
func (s *Server) getRoom(roomID string) *karata.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

// roomOfPlayer returns the room a player is seated in, or nil. A
// player sits in at most one room.
func (s *Server) roomOfPlayer(playerID string) *karata.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, room := range s.rooms {
		if room.GetUser(playerID) != nil {
			return room
		}
	}
	return nil
}

// removeRoom drops a room from the server and the database.
func (s *Server) removeRoom(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()

	s.saveMu.Lock()
	delete(s.saveMutexes, roomID)
	s.saveMu.Unlock()

	if err := s.db.DeleteRoom(roomID); err != nil {
		s.log.Errorf("delete room %s: %v", roomID, err)
	}
	s.log.Infof("room %s removed", roomID)
}

func (s *Server) addConnection(c *Connection) {
	s.connsMu.Lock()
	s.conns[c.ID] = c
	s.connsMu.Unlock()
}

// connForPlayer returns the live connection bound to a player, or nil.
func (s *Server) connForPlayer(playerID string) *Connection {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return s.playerConns[playerID]
}

// removeConnection runs when a connection's read loop exits. Pending
// prompts are cancelled first so a turn blocked on this player can
// unwind and end its game. A connection superseded by a newer hello
// from the same player unbinds without touching the player's seat.
func (s *Server) removeConnection(c *Connection) {
	playerID := c.PlayerID()

	s.connsMu.Lock()
	delete(s.conns, c.ID)
	superseded := playerID != "" && s.playerConns[playerID] != c
	if playerID != "" && !superseded {
		delete(s.playerConns, playerID)
	}
	s.connsMu.Unlock()

	s.prompts.CancelConn(c.ID)

	if playerID == "" || superseded {
		s.log.Debugf("conn %s closed", c.ID)
		return
	}
	s.log.Infof("player %s disconnected (conn %s)", playerID, c.ID)

	room := s.roomOfPlayer(playerID)
	if room == nil {
		return
	}
	room.MarkDisconnected(playerID, true)

	// The seat survives the drop; a later hello picks it back up. A
	// running game does not: without its player it ends with no
	// winner. The prompt cancellation above may already be ending it
	// through the blocked turn, so re-check under the turn mutex.
	if room.IsGameStarted() {
		if game := room.Game(); game != nil && game.PlayerByID(playerID) != nil {
			name := c.Name()
			go func() {
				room.AcquireTurn()
				defer room.ReleaseTurn()
				if room.IsGameStarted() {
					s.endGameLocked(room, room.Game(), fmt.Sprintf("%s disconnected", name), nil)
				}
			}()
		}
	}
}

// publishEvent snapshots the room and hands the event to the async
// pipeline. Dropped events only cost advisory notifications; the
// game-critical messages have already gone out synchronously.
func (s *Server) publishEvent(t GameEventType, roomID, playerID string, payload EventPayload) {
	s.events.Publish(&GameEvent{
		Type:         t,
		RoomID:       roomID,
		PlayerID:     playerID,
		Payload:      payload,
		Timestamp:    time.Now(),
		RoomSnapshot: s.CollectRoomSnapshot(roomID),
	})
}
