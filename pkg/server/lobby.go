package server

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

const (
	defaultMatchLimit = 20
	maxMatchLimit     = 100
)

// handleHello binds a connection to a player identity. A fresh hello
// from a player who already has a live connection supersedes the old
// one; a player who was seated somewhere comes back connected.
func (s *Server) handleHello(c *Connection, p wire.HelloPayload) {
	if p.PlayerID == "" {
		s.sendError(c, "player id required")
		return
	}
	name := p.Name
	if name == "" {
		name = p.PlayerID
	}
	c.bind(p.PlayerID, name)

	s.connsMu.Lock()
	old := s.playerConns[p.PlayerID]
	s.playerConns[p.PlayerID] = c
	s.connsMu.Unlock()
	if old != nil && old != c {
		s.log.Debugf("conn %s supersedes %s for player %s", c.ID, old.ID, p.PlayerID)
		old.close()
	}

	s.log.Infof("player %s (%s) connected on conn %s", p.PlayerID, name, c.ID)

	if room := s.roomOfPlayer(p.PlayerID); room != nil {
		room.MarkDisconnected(p.PlayerID, false)
		s.sendRoomState(c, room.ID())
	}
}

// handleCreateRoom opens a new room with the caller as host and sends
// back its invite link.
func (s *Server) handleCreateRoom(c *Connection, p wire.CreateRoomPayload) {
	playerID := c.PlayerID()
	if s.roomOfPlayer(playerID) != nil {
		s.sendError(c, "leave your current room first")
		return
	}

	min, max := clampPlayers(p.MinPlayers, p.MaxPlayers)
	inviteLink := uuid.New().String()
	room := karata.NewRoom(karata.RoomConfig{
		ID:         inviteLink,
		HostID:     playerID,
		MinPlayers: min,
		MaxPlayers: max,
		Log:        s.logBackend.Logger("ROOM"),
		GameLog:    s.logBackend.Logger("GAME"),
		Seed:       s.cfg.Seed,
	})
	user, err := room.AddUser(playerID, c.Name())
	if err != nil {
		s.sendError(c, err.Error())
		return
	}

	s.mu.Lock()
	s.rooms[inviteLink] = room
	s.mu.Unlock()

	s.log.Infof("player %s created room %s (%d-%d players)", playerID, inviteLink, min, max)
	s.sendToConn(c, wire.TypeRoomCreated, wire.RoomCreatedPayload{InviteLink: inviteLink})
	s.publishEvent(GameEventPlayerJoined, inviteLink, playerID, &PlayerJoinedPayload{
		PlayerID: playerID,
		Name:     user.Name,
		Seat:     user.Seat,
	})
	s.saveRoomStateAsync(inviteLink, "room created")
}

// handleJoinRoom seats the caller in the room behind an invite link.
// Joining a room you are already seated in acts as a reconnect.
func (s *Server) handleJoinRoom(c *Connection, p wire.JoinRoomPayload) {
	room := s.getRoom(p.InviteLink)
	if room == nil {
		s.sendError(c, "room not found")
		return
	}
	playerID := c.PlayerID()
	if cur := s.roomOfPlayer(playerID); cur != nil && cur != room {
		s.sendError(c, "leave your current room first")
		return
	}

	rejoin := room.GetUser(playerID) != nil
	user, err := room.AddUser(playerID, c.Name())
	if err != nil {
		s.sendError(c, err.Error())
		return
	}

	s.sendRoomState(c, room.ID())
	if rejoin {
		return
	}

	s.log.Infof("player %s joined room %s at seat %d", playerID, room.ID(), user.Seat)
	s.publishEvent(GameEventPlayerJoined, room.ID(), playerID, &PlayerJoinedPayload{
		PlayerID: playerID,
		Name:     user.Name,
		Seat:     user.Seat,
	})
	s.saveRoomStateAsync(room.ID(), "player joined")
}

// handleSetReady flips the caller's ready flag. The game starts the
// moment the last seated player turns ready. Runs off the read loop:
// starting a game takes the room's turn mutex.
func (s *Server) handleSetReady(c *Connection, p wire.SetReadyPayload) {
	room := s.getRoom(p.InviteLink)
	if room == nil {
		s.sendError(c, "room not found")
		return
	}
	playerID := c.PlayerID()
	if err := room.SetUserReady(playerID, p.Ready); err != nil {
		s.sendError(c, err.Error())
		return
	}

	s.publishEvent(GameEventPlayerReady, room.ID(), playerID, &PlayerReadyPayload{
		PlayerID: playerID,
		Name:     c.Name(),
		Ready:    p.Ready,
	})
	s.saveRoomStateAsync(room.ID(), "ready changed")

	if p.Ready && room.AllReady() && !room.IsGameStarted() {
		s.startGame(room)
	}
}

// startGame deals a fresh game and tells every seat about it. It runs
// under the turn mutex so a quick player cannot slip a turn in while
// the opening notifications are still going out.
func (s *Server) startGame(room *karata.Room) {
	room.AcquireTurn()
	defer room.ReleaseTurn()

	// A leave or an unready may have raced us here.
	if room.IsGameStarted() || !room.AllReady() {
		return
	}
	if err := room.StartGame(); err != nil {
		s.log.Warnf("could not start game in room %s: %v", room.ID(), err)
		s.broadcastSystemMessage(room, wire.MessageError, fmt.Sprintf("could not start the game: %v", err))
		return
	}
	game := room.Game()
	starter, _ := game.PileTop()

	s.log.Infof("game started in room %s with %d players, starter %s",
		room.ID(), game.NumPlayers(), starter)

	s.broadcastToRoom(room, wire.TypeUpdateGameStatus, wire.UpdateGameStatusPayload{Started: true})
	s.broadcastToRoom(room, wire.TypeAddCardRangeToPile, wire.CardRangePayload{Cards: []karata.Card{starter}})

	players := game.Players()
	dealt := 0
	for _, pl := range players {
		dealt += pl.HandSize()
	}
	// The starter search may have cycled non-boring cards back into
	// the deck; clients only need the net count that left it.
	s.broadcastToRoom(room, wire.TypeRemoveCardsFromDeck, wire.CardCountPayload{Count: dealt + 1})

	for _, pl := range players {
		s.sendToPlayer(pl.ID, wire.TypeAddCardRangeToHand, wire.CardRangePayload{Cards: pl.Hand})
		s.sendToOthers(room, pl.ID, wire.TypeAddCardsToPlayerHand, wire.PlayerCardCountPayload{
			PlayerID: pl.ID,
			Count:    pl.HandSize(),
		})
	}

	s.broadcastToRoom(room, wire.TypeUpdateTurn, wire.UpdateTurnPayload{Turn: game.CurrentTurnIndex()})

	s.publishEvent(GameEventGameStarted, room.ID(), "", &GameStartedPayload{
		Players: game.NumPlayers(),
		Starter: starter,
	})
	s.saveRoomStateAsync(room.ID(), "game started")
}

// handleListRooms sends the public room listing, oldest room first.
func (s *Server) handleListRooms(c *Connection) {
	s.mu.RLock()
	rooms := make([]*karata.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt().Before(rooms[j].CreatedAt())
	})

	infos := make([]wire.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		cfg := room.Config()
		infos = append(infos, wire.RoomInfo{
			InviteLink:  room.ID(),
			HostID:      room.HostID(),
			Phase:       room.StateString(),
			PlayerCount: room.UserCount(),
			MinPlayers:  cfg.MinPlayers,
			MaxPlayers:  cfg.MaxPlayers,
			GameStarted: room.IsGameStarted(),
		})
	}
	s.sendToConn(c, wire.TypeRoomList, wire.RoomListPayload{Rooms: infos})
}

// handleListMatches sends recent match results, newest first.
func (s *Server) handleListMatches(c *Connection, p wire.ListMatchesPayload) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}

	results, err := s.db.ListMatchResults(limit)
	if err != nil {
		s.log.Errorf("list match results: %v", err)
		s.sendError(c, "could not load match results")
		return
	}

	matches := make([]wire.MatchRecord, 0, len(results))
	for _, rec := range results {
		matches = append(matches, wire.MatchRecord{
			RoomID:     rec.RoomID,
			WinnerID:   rec.WinnerID,
			Reason:     rec.Reason,
			Turns:      rec.Turns,
			FinishedAt: rec.FinishedAt,
		})
	}
	s.sendToConn(c, wire.TypeMatchList, wire.MatchListPayload{Matches: matches})
}

// handleLeaveRoom unseats the caller. Runs off the read loop: ending a
// running game takes the room's turn mutex, and the caller may be the
// one holding it through an unanswered prompt. Canceling their prompts
// first lets that turn unwind.
func (s *Server) handleLeaveRoom(c *Connection, p wire.LeaveRoomPayload) {
	room := s.getRoom(p.InviteLink)
	if room == nil {
		s.sendError(c, "room not found")
		return
	}
	playerID := c.PlayerID()
	if room.GetUser(playerID) == nil {
		s.sendError(c, "you are not in that room")
		return
	}

	s.prompts.CancelConn(c.ID)
	s.leaveRoomGuarded(room, playerID, c.Name(), fmt.Sprintf("%s left the game", c.Name()))
	s.sendSystemMessage(c, wire.MessageInfo, "you left the room")
}

// leaveRoomGuarded removes a player under the turn mutex, ending the
// game first when they were part of one.
func (s *Server) leaveRoomGuarded(room *karata.Room, playerID, name, reason string) {
	room.AcquireTurn()
	defer room.ReleaseTurn()

	if room.IsGameStarted() {
		if game := room.Game(); game != nil && game.PlayerByID(playerID) != nil {
			s.endGameLocked(room, game, reason, nil)
		}
	}
	s.leaveRoom(room, playerID, name)
}

// leaveRoom removes the player from the room and tears the room down
// when it empties out.
func (s *Server) leaveRoom(room *karata.Room, playerID, name string) {
	wasHost := room.HostID() == playerID
	if err := room.RemoveUser(playerID); err != nil {
		s.log.Debugf("remove user %s from room %s: %v", playerID, room.ID(), err)
		return
	}
	s.log.Infof("player %s left room %s", playerID, room.ID())

	if room.UserCount() == 0 {
		s.removeRoom(room.ID())
		return
	}

	var newHostID string
	if wasHost {
		newHostID = room.HostID()
	}
	s.publishEvent(GameEventPlayerLeft, room.ID(), playerID, &PlayerLeftPayload{
		PlayerID:  playerID,
		Name:      name,
		NewHostID: newHostID,
	})
	s.saveRoomStateAsync(room.ID(), "player left")
}

// sendRoomState sends one viewer their current view of a room.
func (s *Server) sendRoomState(c *Connection, roomID string) {
	snap := s.CollectRoomSnapshot(roomID)
	if snap == nil {
		return
	}
	view := buildRoomView(snap, c.PlayerID())
	s.sendToConn(c, wire.TypeUpdateRoomState, wire.RoomStatePayload{Room: view})
}

// clampPlayers normalizes requested room bounds to the supported 2-4
// seat range.
func clampPlayers(min, max int) (int, int) {
	if min < 2 {
		min = 2
	}
	if min > 4 {
		min = 4
	}
	if max < min {
		max = min
	}
	if max > 4 {
		max = 4
	}
	return min, max
}
