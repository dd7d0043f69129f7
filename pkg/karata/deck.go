package karata

import (
	"math/rand"
)

// Deck is a LIFO stack of cards with its own randomness source. The last
// element of the slice is the top of the deck.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates the standard 54-card deck (52 suited cards plus both
// jokers) in sorted order using the provided RNG for all later shuffles.
// Callers shuffle before use.
func NewDeck(rng *rand.Rand) *Deck {
	cards := make([]Card, 0, StandardDeckSize)
	for _, suit := range []Suit{Spades, Hearts, Diamonds, Clubs} {
		for face := Ace; face <= King; face++ {
			cards = append(cards, NewCard(suit, face))
		}
	}
	cards = append(cards, NewCard(BlackJoker, None), NewCard(RedJoker, None))
	return &Deck{cards: cards, rng: rng}
}

// Shuffle randomizes the order of the remaining cards.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the top card. Returns false when the deck is
// empty.
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card, true
}

// DealMany removes and returns the top n cards, top first. The deck is
// left untouched when fewer than n cards remain.
func (d *Deck) DealMany(n int) ([]Card, bool) {
	if len(d.cards) < n {
		return nil, false
	}
	dealt := make([]Card, n)
	for i := 0; i < n; i++ {
		dealt[i] = d.cards[len(d.cards)-1-i]
	}
	d.cards = d.cards[:len(d.cards)-n]
	return dealt, true
}

// Push returns cards to the top of the deck in the order given, so the
// last argument becomes the new top.
func (d *Deck) Push(cards ...Card) {
	d.cards = append(d.cards, cards...)
}

// Size returns the number of cards remaining.
func (d *Deck) Size() int {
	return len(d.cards)
}

// DeckState captures the remaining cards for persistence.
type DeckState struct {
	RemainingCards []Card `json:"remaining_cards"`
}

// GetState returns a copy of the deck's current state.
func (d *Deck) GetState() DeckState {
	cards := make([]Card, len(d.cards))
	copy(cards, d.cards)
	return DeckState{RemainingCards: cards}
}

// RestoreState replaces the deck contents with the saved state.
func (d *Deck) RestoreState(state DeckState) {
	d.cards = make([]Card, len(state.RemainingCards))
	copy(d.cards, state.RemainingCards)
}

// NewDeckFromState creates a deck from a saved state and a fresh RNG.
func NewDeckFromState(state DeckState, rng *rand.Rand) *Deck {
	d := &Deck{rng: rng}
	d.RestoreState(state)
	return d
}
