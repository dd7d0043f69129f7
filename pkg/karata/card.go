package karata

import (
	"encoding/json"
	"fmt"
)

// Suit identifies one of the four French suits or one of the two jokers.
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
	BlackJoker
	RedJoker
)

// String returns the display symbol for the suit.
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	case BlackJoker:
		return "BJoker"
	case RedJoker:
		return "RJoker"
	default:
		return fmt.Sprintf("Suit(%d)", int(s))
	}
}

// IsJoker reports whether the suit is one of the two joker suits.
func (s Suit) IsJoker() bool {
	return s == BlackJoker || s == RedJoker
}

// Face is the rank of a card. Jokers carry None.
type Face int

const (
	None Face = iota
	Ace
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
)

// String returns the display glyph for the face.
func (f Face) String() string {
	switch f {
	case None:
		return ""
	case Ace:
		return "A"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	default:
		if f >= Two && f <= Ten {
			return fmt.Sprintf("%d", int(f))
		}
		return fmt.Sprintf("Face(%d)", int(f))
	}
}

// StandardDeckSize is the number of cards in play: 52 suited cards plus
// both jokers.
const StandardDeckSize = 54

// Card is a single playing card. Fields are unexported so a card cannot be
// mutated after construction.
type Card struct {
	suit Suit
	face Face
}

// NewCard creates a card. Joker suits always carry the None face, whatever
// face was passed in.
func NewCard(suit Suit, face Face) Card {
	if suit.IsJoker() {
		face = None
	}
	return Card{suit: suit, face: face}
}

// GetSuit returns the card's suit.
func (c Card) GetSuit() Suit { return c.suit }

// GetFace returns the card's face.
func (c Card) GetFace() Face { return c.face }

// IsJoker reports whether the card is one of the two jokers.
func (c Card) IsJoker() bool { return c.suit.IsJoker() }

// IsBomb reports whether playing the card forces the next player to pick:
// jokers, Twos and Threes.
func (c Card) IsBomb() bool {
	return c.IsJoker() || c.face == Two || c.face == Three
}

// IsQuestion reports whether the card asks a question that must be
// answered in the same turn: Eights and Queens.
func (c Card) IsQuestion() bool {
	return c.face == Eight || c.face == Queen
}

// IsBoring reports whether the card carries no special effect at all. Only
// a boring card can start the pile or win the game.
func (c Card) IsBoring() bool {
	if c.IsBomb() || c.IsQuestion() {
		return false
	}
	switch c.face {
	case Ace, Jack, King:
		return false
	}
	return true
}

// PickValue is the number of cards the card forces an opponent to pick
// when played as a bomb. Zero for non-bombs.
func (c Card) PickValue() int {
	switch {
	case c.IsJoker():
		return 5
	case c.face == Two:
		return 2
	case c.face == Three:
		return 3
	default:
		return 0
	}
}

// AceValue is the request strength of the card: the Ace of Spades counts
// double. Zero for non-aces.
func (c Card) AceValue() int {
	if c.face != Ace {
		return 0
	}
	if c.suit == Spades {
		return 2
	}
	return 1
}

// String returns a human-readable representation like "A♠" or "10♥".
func (c Card) String() string {
	if c.IsJoker() {
		return c.suit.String()
	}
	return c.face.String() + c.suit.String()
}

// CardJSON is the wire representation of a card: the two enum ordinals.
type CardJSON struct {
	Suit int `json:"suit"`
	Face int `json:"face"`
}

// MarshalJSON implements json.Marshaler.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(CardJSON{Suit: int(c.suit), Face: int(c.face)})
}

// UnmarshalJSON implements json.Unmarshaler, rejecting out-of-range
// ordinals.
func (c *Card) UnmarshalJSON(data []byte) error {
	var cj CardJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	if cj.Suit < int(Spades) || cj.Suit > int(RedJoker) {
		return fmt.Errorf("invalid suit ordinal: %d", cj.Suit)
	}
	if cj.Face < int(None) || cj.Face > int(King) {
		return fmt.Errorf("invalid face ordinal: %d", cj.Face)
	}
	*c = NewCard(Suit(cj.Suit), Face(cj.Face))
	return nil
}
