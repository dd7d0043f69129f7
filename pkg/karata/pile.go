package karata

// Pile is the face-up stack cards are played onto. The last element of
// the slice is the visible top. Once a game has started the pile always
// holds at least one card.
type Pile struct {
	cards []Card
}

// NewPile creates an empty pile.
func NewPile() *Pile {
	return &Pile{}
}

// Push places cards on top of the pile in the order given, so the last
// argument becomes the new top.
func (p *Pile) Push(cards ...Card) {
	p.cards = append(p.cards, cards...)
}

// Peek returns the top card without removing it. Returns false when the
// pile is empty.
func (p *Pile) Peek() (Card, bool) {
	if len(p.cards) == 0 {
		return Card{}, false
	}
	return p.cards[len(p.cards)-1], true
}

// Size returns the number of cards on the pile.
func (p *Pile) Size() int {
	return len(p.cards)
}

// Reclaim removes and returns every card except the top, bottom first.
// It requires at least two cards so the top always stays in place.
func (p *Pile) Reclaim() ([]Card, bool) {
	if len(p.cards) < 2 {
		return nil, false
	}
	top := p.cards[len(p.cards)-1]
	reclaimed := make([]Card, len(p.cards)-1)
	copy(reclaimed, p.cards[:len(p.cards)-1])
	p.cards = []Card{top}
	return reclaimed, true
}

// GetCards returns a copy of the pile contents, bottom first.
func (p *Pile) GetCards() []Card {
	cards := make([]Card, len(p.cards))
	copy(cards, p.cards)
	return cards
}

// SetCards replaces the pile contents, bottom first.
func (p *Pile) SetCards(cards []Card) {
	p.cards = make([]Card, len(cards))
	copy(p.cards, cards)
}
