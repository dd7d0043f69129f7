package karata

// RequestLevel is the strength of an outstanding card request. A single
// ace buys a suit request, two aces (or the Ace of Spades alone) buy a
// full card request.
type RequestLevel int

const (
	NoRequest RequestLevel = iota
	SuitRequest
	CardRequest
)

// String returns the wire name of the level.
func (l RequestLevel) String() string {
	switch l {
	case NoRequest:
		return "none"
	case SuitRequest:
		return "suit"
	case CardRequest:
		return "card"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only slice of game state a turn is evaluated
// against: the visible pile top, the pick the player already owes, and
// any outstanding request.
type Snapshot struct {
	Top          Card
	Pick         int
	Request      Card
	RequestLevel RequestLevel
}

// Delta is the structured effect of a valid turn. The engine produces
// it; the orchestrator applies it. Nothing here touches game state.
type Delta struct {
	// Cards is the sequence as played, in order.
	Cards []Card

	// Pick is how many cards the acting player must draw this turn.
	Pick int

	// Give is how many cards the next player will owe.
	Give int

	// Skip is how many seats the turn advances. 1 passes to the next
	// player; each Jack adds one; an even number of Kings forces 0 so
	// the player moves again.
	Skip int

	// Reverse flips the direction of play before advancing.
	Reverse bool

	// RequestLevel is the request the player has earned with aces and
	// must now be prompted for.
	RequestLevel RequestLevel

	// RemoveRequestLevels is how many levels of the outstanding request
	// this turn discharges.
	RemoveRequestLevels int
}

// EvaluateTurn validates the played sequence against the snapshot and,
// when valid, generates its delta. Pure: no mutation, no I/O, identical
// results on identical inputs.
func EvaluateTurn(snap Snapshot, cards []Card) (Delta, error) {
	if err := ValidateTurn(snap, cards); err != nil {
		return Delta{}, err
	}
	return GenerateDelta(snap, cards), nil
}

// ValidateTurn checks the sequence against the table. Rules run in
// order and the first failure wins; an empty turn is always valid.
func ValidateTurn(snap Snapshot, cards []Card) error {
	if len(cards) == 0 {
		return nil
	}
	first := cards[0]

	// An outstanding request binds the first card unless an ace is
	// answering it.
	if snap.RequestLevel != NoRequest && first.GetFace() != Ace {
		if snap.RequestLevel == CardRequest && first.GetFace() != snap.Request.GetFace() {
			return ErrCardRequested
		}
		if first.GetSuit() != snap.Request.GetSuit() {
			return ErrCardRequested
		}
	}

	// A bomb on top with a pending pick must be countered in kind. A
	// joker only yields to another joker; a Two or Three yields to any
	// bomb. Aces defend instead.
	if snap.Top.IsBomb() && snap.Pick > 0 && first.GetFace() != Ace {
		if snap.Top.IsJoker() {
			if !first.IsJoker() {
				return ErrDrawCards
			}
		} else if !first.IsBomb() {
			return ErrDrawCards
		}
	}

	// The opening card must connect to the pile top. Aces and jokers
	// connect to anything, in either direction.
	if !opensOn(first, snap.Top) {
		return ErrInvalidFirstCard
	}

	for i := 1; i < len(cards); i++ {
		prev, cur := cards[i-1], cards[i]
		switch {
		case cur.GetFace() == Ace:
			if !prev.IsQuestion() && prev.GetFace() != Ace {
				return ErrSubsequentAceOrJoker
			}
		case cur.IsJoker():
			if !prev.IsQuestion() && !prev.IsJoker() {
				return ErrSubsequentAceOrJoker
			}
		case prev.IsQuestion():
			// An answer may switch suit as long as it matches the
			// question by face or suit.
			if cur.GetFace() != prev.GetFace() && cur.GetSuit() != prev.GetSuit() {
				return ErrInvalidAnswer
			}
		default:
			if cur.GetFace() != prev.GetFace() {
				return ErrInvalidCardSequence
			}
		}
	}
	return nil
}

func opensOn(first, top Card) bool {
	if first.GetFace() == Ace || first.IsJoker() {
		return true
	}
	if top.GetFace() == Ace || top.IsJoker() {
		return true
	}
	return first.GetFace() == top.GetFace() || first.GetSuit() == top.GetSuit()
}

// GenerateDelta computes the effect of a sequence already known to be
// valid. An empty sequence means the player draws instead of playing.
func GenerateDelta(snap Snapshot, cards []Card) Delta {
	if len(cards) == 0 {
		pick := snap.Pick
		if pick < 1 {
			pick = 1
		}
		return Delta{Pick: pick, Skip: 1}
	}

	d := Delta{Cards: cards, Skip: 1}
	kings := 0
	for _, c := range cards {
		switch c.GetFace() {
		case Jack:
			d.Skip++
		case King:
			d.Reverse = !d.Reverse
			kings++
		}
	}

	last := cards[len(cards)-1]
	switch {
	case last.IsQuestion():
		// A question left unanswered draws one.
		d.Pick = 1
	case last.IsBomb():
		d.Give = last.PickValue()
	case last.GetFace() == Ace:
		aces := 0
		for _, c := range cards {
			aces += c.AceValue()
		}
		level := int(snap.RequestLevel)
		d.RemoveRequestLevels = min(aces, level)
		aces -= level
		if snap.Pick > 0 {
			// One ace is spent defending the pending pick.
			aces--
		}
		switch {
		case aces > 1:
			d.RequestLevel = CardRequest
		case aces == 1:
			d.RequestLevel = SuitRequest
		}
	}

	// An even number of kings flips the direction back onto the player,
	// who moves again.
	if kings > 0 && kings%2 == 0 {
		d.Skip = 0
	}
	return d
}
