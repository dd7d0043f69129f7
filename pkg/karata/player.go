package karata

import (
	"fmt"
)

// Player holds one seat's in-game state: an unordered hand of cards plus
// the last-card declaration flag.
type Player struct {
	ID   string
	Name string
	Seat int

	Hand []Card

	// LastCard is the player's standing declaration that their next card
	// wins. Drawing any card revokes it.
	LastCard bool
}

// NewPlayer creates a player with an empty hand.
func NewPlayer(id, name string, seat int) *Player {
	return &Player{
		ID:   id,
		Name: name,
		Seat: seat,
		Hand: make([]Card, 0, 8),
	}
}

// AddCards puts drawn cards into the hand. Any draw revokes an
// outstanding last-card declaration.
func (p *Player) AddCards(cards []Card) {
	p.Hand = append(p.Hand, cards...)
	if len(cards) > 0 {
		p.LastCard = false
	}
}

// RemoveCards removes the given cards from the hand, respecting
// multiplicity. The hand is left untouched if any card is missing.
func (p *Player) RemoveCards(cards []Card) error {
	remaining := make([]Card, len(p.Hand))
	copy(remaining, p.Hand)
	for _, c := range cards {
		found := -1
		for i, h := range remaining {
			if h == c {
				found = i
				break
			}
		}
		if found == -1 {
			return fmt.Errorf("card %s is not in %s's hand", c, p.ID)
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}
	p.Hand = remaining
	return nil
}

// HasCards reports whether every given card is present in the hand,
// respecting multiplicity.
func (p *Player) HasCards(cards []Card) bool {
	used := make([]bool, len(p.Hand))
	for _, c := range cards {
		found := false
		for i, h := range p.Hand {
			if !used[i] && h == c {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// HandSize returns the number of cards held.
func (p *Player) HandSize() int {
	return len(p.Hand)
}

// GetHandString returns a space-separated rendering of the hand.
func (p *Player) GetHandString() string {
	if len(p.Hand) == 0 {
		return "no cards"
	}
	str := ""
	for i, card := range p.Hand {
		if i > 0 {
			str += " "
		}
		str += card.String()
	}
	return str
}
