package server

import (
	"time"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

// UserSnapshot is one seat in a room snapshot. Hand is populated only
// while a game runs; the per-viewer projection decides who gets to see
// it.
type UserSnapshot struct {
	ID           string
	Name         string
	Seat         int
	IsReady      bool
	IsHost       bool
	Disconnected bool
	HandCount    int
	LastCard     bool
	Hand         []karata.Card
}

// GameSnapshot is the public face of a running game: everything every
// player may know. Hands live on the user snapshots.
type GameSnapshot struct {
	Started         bool
	CurrentTurn     int
	CurrentPlayerID string
	IsForward       bool
	Pick            int
	Give            int
	DeckCount       int
	PileCount       int
	PileTop         *karata.Card
	Request         *karata.Card
	RequestLevel    karata.RequestLevel
	WinnerID        string
}

// RoomSnapshot is one coherent view of a room, captured at event
// publish time for the asynchronous handlers.
type RoomSnapshot struct {
	ID         string
	HostID     string
	Phase      string
	MinPlayers int
	MaxPlayers int
	Users      []UserSnapshot
	Game       *GameSnapshot
	Timestamp  time.Time
}

// CollectRoomSnapshot captures a room, hands included. Returns nil
// when the room no longer exists.
func (s *Server) CollectRoomSnapshot(roomID string) *RoomSnapshot {
	room := s.getRoom(roomID)
	if room == nil {
		return nil
	}
	cfg := room.Config()
	snap := &RoomSnapshot{
		ID:         room.ID(),
		HostID:     room.HostID(),
		Phase:      room.StateString(),
		MinPlayers: cfg.MinPlayers,
		MaxPlayers: cfg.MaxPlayers,
		Timestamp:  time.Now(),
	}
	for _, u := range room.GetUsers() {
		snap.Users = append(snap.Users, UserSnapshot{
			ID:           u.ID,
			Name:         u.Name,
			Seat:         u.Seat,
			IsReady:      u.IsReady,
			IsHost:       u.ID == snap.HostID,
			Disconnected: u.IsDisconnected,
		})
	}

	game := room.Game()
	if game == nil || !game.Started() {
		return snap
	}
	gs := game.GetStateSnapshot()
	g := &GameSnapshot{
		Started:      true,
		CurrentTurn:  gs.CurrentTurn,
		IsForward:    gs.IsForward,
		Pick:         gs.Pick,
		Give:         gs.Give,
		DeckCount:    len(gs.Deck),
		PileCount:    len(gs.Pile),
		Request:      gs.Request,
		RequestLevel: gs.RequestLevel,
		WinnerID:     gs.WinnerID,
	}
	if len(gs.Pile) > 0 {
		top := gs.Pile[len(gs.Pile)-1]
		g.PileTop = &top
	}
	if gs.CurrentTurn >= 0 && gs.CurrentTurn < len(gs.Players) {
		g.CurrentPlayerID = gs.Players[gs.CurrentTurn].ID
	}
	snap.Game = g

	for i := range snap.Users {
		for _, ps := range gs.Players {
			if ps.ID != snap.Users[i].ID {
				continue
			}
			snap.Users[i].HandCount = len(ps.Hand)
			snap.Users[i].LastCard = ps.LastCard
			snap.Users[i].Hand = ps.Hand
			break
		}
	}
	return snap
}

// buildRoomView projects a snapshot for one viewer: their own hand in
// full, everyone else's as a count.
func buildRoomView(snap *RoomSnapshot, viewerID string) wire.RoomView {
	view := wire.RoomView{
		InviteLink: snap.ID,
		HostID:     snap.HostID,
		Phase:      snap.Phase,
		MinPlayers: snap.MinPlayers,
		MaxPlayers: snap.MaxPlayers,
	}
	if g := snap.Game; g != nil {
		view.GameStarted = g.Started
		view.CurrentTurn = g.CurrentTurn
		view.CurrentPlayerID = g.CurrentPlayerID
		view.IsForward = g.IsForward
		view.DeckCount = g.DeckCount
		view.PileCount = g.PileCount
		view.PileTop = g.PileTop
		view.CurrentRequest = g.Request
		view.RequestLevel = g.RequestLevel.String()
	}
	for _, u := range snap.Users {
		pv := wire.PlayerView{
			ID:           u.ID,
			Name:         u.Name,
			Seat:         u.Seat,
			IsReady:      u.IsReady,
			IsHost:       u.IsHost,
			Disconnected: u.Disconnected,
			HandCount:    u.HandCount,
			LastCard:     u.LastCard,
		}
		if u.ID == viewerID {
			pv.Hand = u.Hand
		}
		view.Players = append(view.Players, pv)
	}
	return view
}
