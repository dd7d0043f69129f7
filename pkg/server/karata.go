package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

// handlePerformTurn runs one turn through the pipeline: guards, roll,
// rule engine, placement, request bookkeeping, counters, replenishment,
// win check, advance. It holds the room's turn mutex for the whole
// pipeline, prompt awaits included, so turns within a room are strictly
// serialized. Runs off the read loop so the caller's connection can
// still deliver the prompt answers this turn may wait on.
func (s *Server) handlePerformTurn(c *Connection, p wire.PerformTurnPayload) {
	room := s.getRoom(p.InviteLink)
	if room == nil {
		s.sendError(c, "room not found")
		return
	}
	playerID := c.PlayerID()

	// Anti-ukora: a player whose prompt answer the server is waiting
	// on cannot queue another turn behind it.
	if s.prompts.HasOutstanding(c.ID) {
		s.rejectTurn(c, karata.ErrOutstandingPrompt)
		return
	}

	room.AcquireTurn()
	defer room.ReleaseTurn()

	game := room.Game()
	if game == nil || !game.Started() {
		s.rejectTurn(c, karata.ErrNotStarted)
		return
	}
	player := game.PlayerByID(playerID)
	if player == nil || game.CurrentPlayer().ID != playerID {
		s.rejectTurn(c, karata.ErrNotYourTurn)
		return
	}

	// The previous player's bomb matures into this player's pick.
	game.RollPick()

	delta, err := karata.EvaluateTurn(game.Snapshot(), p.Cards)
	if err != nil {
		s.rejectTurn(c, err)
		return
	}

	// Placement. The engine checks sequences, not hands; playing cards
	// you do not hold fails here, before anything has changed.
	if len(delta.Cards) > 0 {
		if err := game.PlayCards(playerID, delta.Cards); err != nil {
			s.rejectTurn(c, err)
			return
		}
		s.broadcastToRoom(room, wire.TypeAddCardRangeToPile, wire.CardRangePayload{Cards: delta.Cards})
		s.sendToConn(c, wire.TypeRemoveCardRangeFromHand, wire.CardRangePayload{Cards: delta.Cards})
		s.sendToOthers(room, playerID, wire.TypeRemoveCardsFromPlayerHand, wire.PlayerCardCountPayload{
			PlayerID: playerID,
			Count:    len(delta.Cards),
		})
	}
	s.sendToConn(c, wire.TypeNotifyTurnProcessed, wire.NotifyTurnProcessedPayload{Valid: true})
	if len(delta.Cards) > 0 {
		s.saveRoomStateAsync(room.ID(), "cards placed")
	}

	// Request bookkeeping. Discharging aces clear the table's request;
	// surplus aces earn the player a new one, which they are prompted
	// for while the turn mutex rides along.
	var requested *karata.Card
	if delta.RemoveRequestLevels > 0 {
		game.ClearRequest()
		s.broadcastToRoom(room, wire.TypeSetCurrentRequest, wire.SetCurrentRequestPayload{Card: nil})
	}
	if delta.RequestLevel != karata.NoRequest {
		answer, err := s.promptCardRequest(c, delta.RequestLevel == karata.CardRequest)
		if err != nil {
			s.abortTurn(room, game, c, err)
			return
		}
		game.SetRequest(answer, delta.RequestLevel)
		stored, _ := game.Request()
		requested = &stored
		s.broadcastToRoom(room, wire.TypeSetCurrentRequest, wire.SetCurrentRequestPayload{Card: &stored})
		s.saveRoomStateAsync(room.ID(), "request set")
	}

	// Direction and counters.
	if delta.Reverse {
		game.FlipDirection()
	}
	game.SetCounters(delta.Give, delta.Pick)

	// Replenishment. A short deck reclaims the pile (top stays) and
	// tries again; a table that cannot cover the pick is out of cards
	// and the game ends with no winner.
	picked := 0
	if pick := game.Pick(); pick > 0 {
		dealt, err := game.DealToPlayer(playerID, pick)
		if err != nil {
			if !game.CanReplenish(pick) {
				s.endGameLocked(room, game, "insufficient cards", nil)
				return
			}
			moved := game.ReclaimPile()
			s.broadcastToRoom(room, wire.TypeReclaimPile, nil)
			s.broadcastToRoom(room, wire.TypeAddCardsToDeck, wire.CardCountPayload{Count: moved})
			dealt, err = game.DealToPlayer(playerID, pick)
			if err != nil {
				s.log.Errorf("deal after reclaim failed in room %s: %v", room.ID(), err)
				s.endGameLocked(room, game, "insufficient cards", nil)
				return
			}
		}
		picked = len(dealt)
		s.sendToConn(c, wire.TypeAddCardRangeToHand, wire.CardRangePayload{Cards: dealt})
		s.broadcastToRoom(room, wire.TypeRemoveCardsFromDeck, wire.CardCountPayload{Count: picked})
		s.sendToOthers(room, playerID, wire.TypeAddCardsToPlayerHand, wire.PlayerCardCountPayload{
			PlayerID: playerID,
			Count:    picked,
		})
		game.SetCounters(game.Give(), 0)
		s.saveRoomStateAsync(room.ID(), "cards drawn")
	}

	game.RecordTurn(karata.TurnRecord{
		PlayerID: playerID,
		Cards:    delta.Cards,
		Picked:   picked,
		Request:  requested,
	})

	// Win and last-card check. Going cardless only wins when the last
	// card declaration was in and the final card is boring; otherwise
	// the player stays in, drawing on future turns. Everyone still
	// holding cards is asked about their last card every turn.
	if player.HandSize() == 0 {
		won := false
		if n := len(delta.Cards); n > 0 {
			won = player.LastCard && delta.Cards[n-1].IsBoring()
		}
		if won {
			s.endGameLocked(room, game, fmt.Sprintf("%s won the game", player.Name), player)
			return
		}
		s.broadcastSystemMessage(room, wire.MessageInfo, fmt.Sprintf("%s is cardless", player.Name))
	} else {
		declared, err := s.promptLastCard(c)
		if err != nil {
			s.abortTurn(room, game, c, err)
			return
		}
		if declared {
			if err := game.SetLastCard(playerID, true); err != nil {
				s.log.Warnf("set last card for %s in room %s: %v", playerID, room.ID(), err)
			} else {
				s.systemMessageToOthers(room, playerID, wire.MessageWarning,
					fmt.Sprintf("%s is on their last card", player.Name))
				s.saveRoomStateAsync(room.ID(), "last card declared")
			}
		}
	}

	// Advance.
	next := game.AdvanceTurn(delta.Skip)
	s.broadcastToRoom(room, wire.TypeUpdateTurn, wire.UpdateTurnPayload{Turn: next})
	s.saveRoomStateAsync(room.ID(), "turn complete")

	s.publishEvent(GameEventTurnPlayed, room.ID(), playerID, &TurnPlayedPayload{
		PlayerID: playerID,
		Cards:    len(delta.Cards),
		Picked:   picked,
		NextTurn: next,
	})
}

// rejectTurn tells the caller their turn did not go through and why.
// Nothing has changed on the table.
func (s *Server) rejectTurn(c *Connection, err error) {
	s.sendSystemMessage(c, wire.MessageError, err.Error())
	s.sendToConn(c, wire.TypeNotifyTurnProcessed, wire.NotifyTurnProcessedPayload{Valid: false})
}

// promptCardRequest asks the caller which card (or suit) their aces
// demand and blocks until they answer, disconnect, or time out. The
// waiter is registered before the prompt goes out so an instant answer
// cannot slip past the registry.
func (s *Server) promptCardRequest(c *Connection, specific bool) (karata.Card, error) {
	wait, err := s.prompts.AwaitCardRequest(c.ID)
	if err != nil {
		return karata.Card{}, err
	}
	if !s.sendToConn(c, wire.TypePromptCardRequest, wire.PromptCardRequestPayload{Specific: specific}) {
		wait.Cancel()
		return karata.Card{}, ErrPromptCanceled
	}
	return wait.Wait()
}

// promptLastCard asks the caller whether they are on their last card.
func (s *Server) promptLastCard(c *Connection) (bool, error) {
	wait, err := s.prompts.AwaitLastCard(c.ID)
	if err != nil {
		return false, err
	}
	if !s.sendToConn(c, wire.TypePromptLastCardRequest, nil) {
		wait.Cancel()
		return false, ErrPromptCanceled
	}
	return wait.Wait()
}

// abortTurn ends the game after a prompt await came back without an
// answer. Caller holds the turn mutex.
func (s *Server) abortTurn(room *karata.Room, game *karata.Game, c *Connection, err error) {
	name := c.Name()
	reason := fmt.Sprintf("%s disconnected", name)
	if errors.Is(err, ErrPromptTimeout) {
		reason = fmt.Sprintf("%s took too long to answer", name)
	}
	s.log.Infof("turn aborted in room %s: %v", room.ID(), err)
	s.endGameLocked(room, game, reason, nil)
}

// endGameLocked finishes the game: announces the end, returns the room
// to the lobby, and records the result. Caller holds the turn mutex.
func (s *Server) endGameLocked(room *karata.Room, game *karata.Game, reason string, winner *karata.Player) {
	winnerID := ""
	if winner != nil {
		winnerID = winner.ID
		if err := game.SetWinner(winnerID); err != nil {
			s.log.Warnf("set winner %s in room %s: %v", winnerID, room.ID(), err)
		}
	}
	turns := len(game.Turns())

	s.broadcastToRoom(room, wire.TypeEndGame, wire.EndGamePayload{Reason: reason, WinnerID: winnerID})
	s.broadcastToRoom(room, wire.TypeUpdateGameStatus, wire.UpdateGameStatusPayload{Started: false})
	room.EndGame()

	if err := s.db.RecordMatchResult(&MatchResult{
		RoomID:     room.ID(),
		WinnerID:   winnerID,
		Reason:     reason,
		Turns:      turns,
		FinishedAt: time.Now(),
	}); err != nil {
		s.log.Errorf("record match result for room %s: %v", room.ID(), err)
	}

	s.publishEvent(GameEventGameEnded, room.ID(), winnerID, &GameEndedPayload{
		Reason:   reason,
		WinnerID: winnerID,
		Turns:    turns,
	})
	s.saveRoomStateAsync(room.ID(), "game ended")
	s.log.Infof("game over in room %s after %d turns: %s", room.ID(), turns, reason)
}

// handleRequestCard answers an outstanding card request prompt. Stays
// on the read loop: the orchestrator goroutine blocked on this answer
// holds the room's turn mutex. Jokers have no face or suit to request.
func (s *Server) handleRequestCard(c *Connection, p wire.RequestCardPayload) {
	if p.Card.IsJoker() {
		s.sendError(c, "jokers cannot be requested")
		return
	}
	if !s.prompts.ResolveCardRequest(c.ID, p.Card) {
		s.log.Debugf("unmatched card request answer from conn %s", c.ID)
	}
}

// handleSetLastCardStatus answers an outstanding last card prompt.
func (s *Server) handleSetLastCardStatus(c *Connection, p wire.SetLastCardStatusPayload) {
	if !s.prompts.ResolveLastCard(c.ID, p.IsLastCard) {
		s.log.Debugf("unmatched last card answer from conn %s", c.ID)
	}
}
