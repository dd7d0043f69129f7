package client

import (
	"fmt"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

// PerformTurn submits a card sequence for this player's turn, oldest
// first. The verdict comes back asynchronously as a TurnResultMsg; the
// server may interleave a card request or last card prompt that must
// be answered before the turn completes, so this call never waits.
func (kc *KarataClient) PerformTurn(cards []karata.Card) error {
	kc.RLock()
	roomID := kc.roomID
	kc.RUnlock()

	if roomID == "" {
		return fmt.Errorf("not currently in a room")
	}

	return kc.send(wire.TypePerformTurn, wire.PerformTurnPayload{
		InviteLink: roomID,
		Cards:      cards,
	})
}

// DrawCard plays an empty turn: no cards hit the pile and the player
// draws from the deck instead.
func (kc *KarataClient) DrawCard() error {
	return kc.PerformTurn(nil)
}

// RequestCard answers the outstanding card request prompt. After an
// ace of spades pair the card names suit and face; after lesser aces
// only the suit counts.
func (kc *KarataClient) RequestCard(card karata.Card) error {
	return kc.send(wire.TypeRequestCard, wire.RequestCardPayload{Card: card})
}

// SetLastCard answers the outstanding last card prompt, declaring
// whether this player intends to finish on their next turn.
func (kc *KarataClient) SetLastCard(isLastCard bool) error {
	return kc.send(wire.TypeSetLastCardStatus, wire.SetLastCardStatusPayload{IsLastCard: isLastCard})
}
