package server

import (
	"time"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/server/internal/db"
)

// MatchResult re-exports the storage type so callers outside this
// package can talk about finished games without importing internal/db.
type MatchResult = db.MatchResult

// Database is the persistence boundary. Room snapshots are written
// whole after every state-changing step; match results are append
// only.
type Database interface {
	// SaveRoom upserts a room snapshot.
	SaveRoom(state *karata.RoomState) error

	// LoadRoom loads a room snapshot by invite link.
	LoadRoom(roomID string) (*karata.RoomState, error)

	// ListRoomIDs returns every saved room's invite link.
	ListRoomIDs() ([]string, error)

	// DeleteRoom removes a room snapshot.
	DeleteRoom(roomID string) error

	// RecordMatchResult appends one finished game.
	RecordMatchResult(rec *MatchResult) error

	// ListMatchResults returns up to limit results, newest first.
	ListMatchResults(limit int) ([]*MatchResult, error)

	// Close releases the underlying store.
	Close() error
}

// NewDatabase opens the sqlite store at the given path, creating it
// and its parent directory as needed.
func NewDatabase(dbPath string) (Database, error) {
	return db.NewDB(dbPath)
}

// loadSavedRooms restores every saved room at startup. Lobby
// membership comes back exactly; a game that was running is ended as
// interrupted, since snapshots are taken mid-turn and the prompt the
// turn may have been blocked on cannot be rebuilt. Players come back
// disconnected until they say hello.
func (s *Server) loadSavedRooms() error {
	ids, err := s.db.ListRoomIDs()
	if err != nil {
		return err
	}
	restored := 0
	for _, id := range ids {
		if err := s.loadRoomFromDatabase(id); err != nil {
			s.log.Warnf("could not restore room %s: %v", id, err)
			continue
		}
		restored++
	}
	if restored > 0 {
		s.log.Infof("restored %d rooms from the database", restored)
	}
	return nil
}

func (s *Server) loadRoomFromDatabase(roomID string) error {
	state, err := s.db.LoadRoom(roomID)
	if err != nil {
		return err
	}
	if len(state.Users) == 0 {
		// An empty room is not worth bringing back.
		return s.db.DeleteRoom(roomID)
	}

	room := karata.NewRoom(karata.RoomConfig{
		ID:         state.ID,
		HostID:     state.HostID,
		MinPlayers: state.MinPlayers,
		MaxPlayers: state.MaxPlayers,
		Log:        s.logBackend.Logger("ROOM"),
		GameLog:    s.logBackend.Logger("GAME"),
		Seed:       s.cfg.Seed,
	})
	for _, us := range state.Users {
		if _, err := room.RestoreUser(us); err != nil {
			return err
		}
	}
	// A game caught in flight ends as interrupted: its snapshot may
	// have been taken halfway through a turn, with the played cards on
	// the pile but the earned request, counters and turn advance still
	// pending on a prompt nobody can answer anymore. The room opens in
	// the lobby with its membership intact.
	interrupted := state.Game != nil && state.Game.Started && state.Game.WinnerID == ""
	if interrupted {
		if err := s.db.RecordMatchResult(&MatchResult{
			RoomID:     roomID,
			Reason:     "server restarted",
			Turns:      len(state.Game.Turns),
			FinishedAt: time.Now(),
		}); err != nil {
			s.log.Errorf("record interrupted match for room %s: %v", roomID, err)
		}
		room.EndGame()
	}

	s.mu.Lock()
	s.rooms[roomID] = room
	s.mu.Unlock()

	if interrupted {
		// Overwrite the in-flight snapshot so another restart does not
		// record the interruption twice.
		if err := s.saveRoomState(roomID, "interrupted on restore"); err != nil {
			s.log.Errorf("save interrupted room %s: %v", roomID, err)
		}
		s.log.Infof("room %s had a game in flight, ended as interrupted", roomID)
	}
	s.log.Debugf("restored room %s (%d users, phase %s)", roomID, len(state.Users), room.StateString())
	return nil
}
