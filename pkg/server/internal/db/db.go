package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vctt94/karata/pkg/karata"
)

// DB is the sqlite-backed store for room snapshots and match results.
type DB struct {
	*sql.DB
}

// MatchResult is one finished game.
type MatchResult struct {
	ID         int64     `json:"id"`
	RoomID     string    `json:"room_id"`
	WinnerID   string    `json:"winner_id"`
	Reason     string    `json:"reason"`
	Turns      int       `json:"turns"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewDB opens (or creates) the sqlite database at dbPath.
func NewDB(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			host_id TEXT NOT NULL,
			min_players INTEGER NOT NULL,
			max_players INTEGER NOT NULL,
			phase TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			game_json TEXT,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_players (
			room_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			name TEXT NOT NULL,
			seat INTEGER NOT NULL,
			is_ready INTEGER NOT NULL DEFAULT 0,
			joined_at TIMESTAMP NOT NULL,
			PRIMARY KEY (room_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS match_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id TEXT NOT NULL,
			winner_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			turns INTEGER NOT NULL,
			finished_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_results_finished
			ON match_results(finished_at DESC)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveRoom writes the full room snapshot in one transaction. The
// player list is replaced wholesale; the game, when present, is
// stored as a JSON blob alongside the room row.
func (db *DB) SaveRoom(state *karata.RoomState) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var gameJSON sql.NullString
	if state.Game != nil {
		blob, err := json.Marshal(state.Game)
		if err != nil {
			return fmt.Errorf("marshal game state: %w", err)
		}
		gameJSON = sql.NullString{String: string(blob), Valid: true}
	}

	_, err = tx.Exec(`INSERT INTO rooms
		(id, host_id, min_players, max_players, phase, created_at, game_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host_id = excluded.host_id,
			phase = excluded.phase,
			game_json = excluded.game_json,
			updated_at = excluded.updated_at`,
		state.ID, state.HostID, state.MinPlayers, state.MaxPlayers,
		state.Phase, state.CreatedAt, gameJSON, time.Now())
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM room_players WHERE room_id = ?`, state.ID); err != nil {
		return fmt.Errorf("clear players: %w", err)
	}
	for _, u := range state.Users {
		_, err := tx.Exec(`INSERT INTO room_players
			(room_id, player_id, name, seat, is_ready, joined_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			state.ID, u.ID, u.Name, u.Seat, u.IsReady, u.JoinedAt)
		if err != nil {
			return fmt.Errorf("insert player %s: %w", u.ID, err)
		}
	}

	return tx.Commit()
}

// LoadRoom reassembles a room snapshot by invite link.
func (db *DB) LoadRoom(roomID string) (*karata.RoomState, error) {
	state := &karata.RoomState{ID: roomID}

	var gameJSON sql.NullString
	err := db.QueryRow(`SELECT host_id, min_players, max_players, phase, created_at, game_json
		FROM rooms WHERE id = ?`, roomID).Scan(
		&state.HostID, &state.MinPlayers, &state.MaxPlayers,
		&state.Phase, &state.CreatedAt, &gameJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("room %s not found", roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("query room: %w", err)
	}

	if gameJSON.Valid {
		var gs karata.GameState
		if err := json.Unmarshal([]byte(gameJSON.String), &gs); err != nil {
			return nil, fmt.Errorf("unmarshal game state: %w", err)
		}
		state.Game = &gs
	}

	rows, err := db.Query(`SELECT player_id, name, seat, is_ready, joined_at
		FROM room_players WHERE room_id = ? ORDER BY seat`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u karata.UserState
		if err := rows.Scan(&u.ID, &u.Name, &u.Seat, &u.IsReady, &u.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		state.Users = append(state.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return state, nil
}

// ListRoomIDs returns every saved room id.
func (db *DB) ListRoomIDs() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM rooms`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteRoom removes a room and its players.
func (db *DB) DeleteRoom(roomID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM room_players WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("delete players: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM rooms WHERE id = ?`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return tx.Commit()
}

// RecordMatchResult appends one finished game.
func (db *DB) RecordMatchResult(rec *MatchResult) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	res, err := db.Exec(`INSERT INTO match_results
		(room_id, winner_id, reason, turns, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.RoomID, rec.WinnerID, rec.Reason, rec.Turns, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListMatchResults returns up to limit results, newest first.
func (db *DB) ListMatchResults(limit int) ([]*MatchResult, error) {
	rows, err := db.Query(`SELECT id, room_id, winner_id, reason, turns, finished_at
		FROM match_results ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query match results: %w", err)
	}
	defer rows.Close()

	var out []*MatchResult
	for rows.Next() {
		rec := &MatchResult{}
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.WinnerID,
			&rec.Reason, &rec.Turns, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan match result: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
