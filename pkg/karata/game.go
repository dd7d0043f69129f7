package karata

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"
)

// GameConfig holds configuration for a new game.
type GameConfig struct {
	Players []*Player
	Seed    int64 // Optional seed for deterministic shuffles
	Log     slog.Logger
}

// Game is the authoritative state of one started karata game: the deck,
// the pile, the hands, whose turn it is and which way play flows, the
// pending pick/give counters and any outstanding card request. All
// mutators enforce the 54-card conservation invariant.
type Game struct {
	mu sync.RWMutex

	log     slog.Logger
	players []*Player // seat order, fixed at creation
	deck    *Deck
	pile    *Pile

	currentTurn int
	isForward   bool
	pick        int
	give        int

	request      Card
	requestLevel RequestLevel

	started bool
	winner  *Player
	turns   []TurnRecord
}

// TurnRecord is one entry of the append-only turn log.
type TurnRecord struct {
	PlayerID string `json:"player_id"`
	Cards    []Card `json:"cards"`
	Picked   int    `json:"picked"`
	Request  *Card  `json:"request,omitempty"`
}

// NewGame creates a game for the given players in seat order. The deck
// is built but not shuffled; Start does that.
func NewGame(cfg GameConfig) (*Game, error) {
	if len(cfg.Players) < 2 || len(cfg.Players) > 4 {
		return nil, fmt.Errorf("karata needs 2 to 4 players, got %d", len(cfg.Players))
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}

	return &Game{
		log:       log,
		players:   cfg.Players,
		deck:      NewDeck(rng),
		pile:      NewPile(),
		isForward: true,
	}, nil
}

// Start shuffles, deals the starter and the opening hands, and marks
// the game started. The starter must be a boring card: a non-boring
// deal is pushed back and the deck reshuffled until one lands.
func (g *Game) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return fmt.Errorf("game already started")
	}

	g.deck.Shuffle()
	for {
		card, ok := g.deck.Deal()
		if !ok {
			return fmt.Errorf("deck exhausted while dealing the starter")
		}
		if card.IsBoring() {
			g.pile.Push(card)
			break
		}
		g.deck.Push(card)
		g.deck.Shuffle()
	}

	for _, p := range g.players {
		cards, ok := g.deck.DealMany(4)
		if !ok {
			return fmt.Errorf("deck exhausted while dealing to %s", p.ID)
		}
		p.AddCards(cards)
	}

	g.started = true
	top, _ := g.pile.Peek()
	g.log.Debugf("game started with %d players, starter %s", len(g.players), top)
	return nil
}

// Started reports whether Start has completed.
func (g *Game) Started() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.started
}

// CurrentPlayer returns the player whose turn it is.
func (g *Game) CurrentPlayer() *Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.players[g.currentTurn]
}

// CurrentTurnIndex returns the seat index whose turn it is.
func (g *Game) CurrentTurnIndex() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentTurn
}

// PlayerByID returns the player with the given id, or nil.
func (g *Game) PlayerByID(id string) *Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Players returns the players in seat order.
func (g *Game) Players() []*Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Player, len(g.players))
	copy(out, g.players)
	return out
}

// NumPlayers returns the seat count.
func (g *Game) NumPlayers() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.players)
}

// AdvanceTurn moves the turn skip seats in the current direction,
// wrapping in both directions, and returns the new index. Skip 0 keeps
// the turn where it is.
func (g *Game) AdvanceTurn(skip int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.players)
	step := skip
	if !g.isForward {
		step = -skip
	}
	g.currentTurn = ((g.currentTurn+step)%n + n) % n
	return g.currentTurn
}

// RollPick matures the previous player's give into this player's
// pending pick. The roll only happens while a give is outstanding: a
// turn that fails validation after rolling must not erase the matured
// pick when the player tries again.
func (g *Game) RollPick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.give == 0 {
		return
	}
	g.pick = g.give
	g.give = 0
}

// SetCounters assigns the pending counters.
func (g *Game) SetCounters(give, pick int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.give = give
	g.pick = pick
}

// Pick returns the cards the current player must draw.
func (g *Game) Pick() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pick
}

// Give returns the cards the next player will owe.
func (g *Game) Give() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.give
}

// FlipDirection reverses the direction of play.
func (g *Game) FlipDirection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.isForward = !g.isForward
}

// IsForward reports the direction of play.
func (g *Game) IsForward() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isForward
}

// PlayCards moves the sequence from the player's hand onto the pile, in
// order. Nothing moves unless the player holds every card.
func (g *Game) PlayCards(playerID string, cards []Card) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	player := g.playerByIDLocked(playerID)
	if player == nil {
		return fmt.Errorf("player %s is not in this game", playerID)
	}
	if !player.HasCards(cards) {
		return fmt.Errorf("%s does not hold all of those cards", playerID)
	}
	if err := player.RemoveCards(cards); err != nil {
		return err
	}
	g.pile.Push(cards...)
	return nil
}

// DealToPlayer deals n cards from the deck into the player's hand,
// atomically. The deck is left untouched when it holds fewer than n.
func (g *Game) DealToPlayer(playerID string, n int) ([]Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	player := g.playerByIDLocked(playerID)
	if player == nil {
		return nil, fmt.Errorf("player %s is not in this game", playerID)
	}
	cards, ok := g.deck.DealMany(n)
	if !ok {
		return nil, fmt.Errorf("deck has %d cards, need %d", g.deck.Size(), n)
	}
	player.AddCards(cards)
	return cards, nil
}

// CanReplenish reports whether reclaiming the pile would leave enough
// cards to deal n: the top stays on the pile, so one card is excluded.
func (g *Game) CanReplenish(n int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pile.Size()+g.deck.Size()-1 > n
}

// ReclaimPile moves every pile card except the top back into the deck
// and shuffles. Returns the number of cards moved.
func (g *Game) ReclaimPile() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	reclaimed, ok := g.pile.Reclaim()
	if !ok {
		return 0
	}
	g.deck.Push(reclaimed...)
	g.deck.Shuffle()
	g.log.Debugf("reclaimed %d cards into the deck", len(reclaimed))
	return len(reclaimed)
}

// PileTop returns the visible top of the pile.
func (g *Game) PileTop() (Card, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pile.Peek()
}

// PileSize returns the number of cards on the pile.
func (g *Game) PileSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pile.Size()
}

// DeckSize returns the number of cards left in the deck.
func (g *Game) DeckSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.deck.Size()
}

// SetRequest stores an outstanding card request. A SuitRequest stores
// the suit only; the face is forced to None.
func (g *Game) SetRequest(card Card, level RequestLevel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if level == SuitRequest {
		card = NewCard(card.GetSuit(), None)
	}
	g.request = card
	g.requestLevel = level
}

// ClearRequest discharges the outstanding request.
func (g *Game) ClearRequest() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.request = Card{}
	g.requestLevel = NoRequest
}

// Request returns the outstanding request and its level.
func (g *Game) Request() (Card, RequestLevel) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.request, g.requestLevel
}

// SetLastCard records the player's last-card declaration.
func (g *Game) SetLastCard(playerID string, declared bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	player := g.playerByIDLocked(playerID)
	if player == nil {
		return fmt.Errorf("player %s is not in this game", playerID)
	}
	player.LastCard = declared
	return nil
}

// SetWinner marks the game won.
func (g *Game) SetWinner(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	player := g.playerByIDLocked(playerID)
	if player == nil {
		return fmt.Errorf("player %s is not in this game", playerID)
	}
	g.winner = player
	return nil
}

// Winner returns the winning player, or nil while the game runs.
func (g *Game) Winner() *Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.winner
}

// RecordTurn appends one entry to the turn log.
func (g *Game) RecordTurn(rec TurnRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.turns = append(g.turns, rec)
}

// Turns returns a copy of the turn log.
func (g *Game) Turns() []TurnRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]TurnRecord, len(g.turns))
	copy(out, g.turns)
	return out
}

// Snapshot returns the read-only view the rule engine evaluates turns
// against.
func (g *Game) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	top, _ := g.pile.Peek()
	return Snapshot{
		Top:          top,
		Pick:         g.pick,
		Request:      g.request,
		RequestLevel: g.requestLevel,
	}
}

// TotalCards counts every card in play: deck, pile and all hands. A
// started game always totals the standard 54.
func (g *Game) TotalCards() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := g.deck.Size() + g.pile.Size()
	for _, p := range g.players {
		total += p.HandSize()
	}
	return total
}

func (g *Game) playerByIDLocked(id string) *Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerState is the persisted view of one seat.
type PlayerState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Seat     int    `json:"seat"`
	Hand     []Card `json:"hand"`
	LastCard bool   `json:"last_card"`
}

// GameState is the persisted view of a whole game, deep-copied in
// stable seat order.
type GameState struct {
	Started      bool          `json:"started"`
	CurrentTurn  int           `json:"current_turn"`
	IsForward    bool          `json:"is_forward"`
	Pick         int           `json:"pick"`
	Give         int           `json:"give"`
	Request      *Card         `json:"request,omitempty"`
	RequestLevel RequestLevel  `json:"request_level"`
	Deck         []Card        `json:"deck"`
	Pile         []Card        `json:"pile"`
	WinnerID     string        `json:"winner_id,omitempty"`
	Players      []PlayerState `json:"players"`
	Turns        []TurnRecord  `json:"turns,omitempty"`
}

// RestoreGame rebuilds a started game from a persisted snapshot. The
// snapshot must conserve the standard 54 cards across deck, pile and
// hands; anything else is a corrupt save and is refused.
func RestoreGame(cfg GameConfig, state GameState) (*Game, error) {
	if !state.Started {
		return nil, fmt.Errorf("cannot restore a game that never started")
	}
	if len(state.Players) < 2 || len(state.Players) > 4 {
		return nil, fmt.Errorf("karata needs 2 to 4 players, got %d", len(state.Players))
	}
	if state.CurrentTurn < 0 || state.CurrentTurn >= len(state.Players) {
		return nil, fmt.Errorf("turn index %d out of range", state.CurrentTurn)
	}

	total := len(state.Deck) + len(state.Pile)
	for _, ps := range state.Players {
		total += len(ps.Hand)
	}
	if total != StandardDeckSize {
		return nil, fmt.Errorf("snapshot holds %d cards, want %d", total, StandardDeckSize)
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}

	players := make([]*Player, 0, len(state.Players))
	for _, ps := range state.Players {
		p := NewPlayer(ps.ID, ps.Name, ps.Seat)
		p.Hand = append([]Card(nil), ps.Hand...)
		p.LastCard = ps.LastCard
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].Seat < players[j].Seat
	})

	g := &Game{
		log:          log,
		players:      players,
		deck:         NewDeckFromState(DeckState{RemainingCards: state.Deck}, rng),
		pile:         NewPile(),
		currentTurn:  state.CurrentTurn,
		isForward:    state.IsForward,
		pick:         state.Pick,
		give:         state.Give,
		requestLevel: state.RequestLevel,
		started:      true,
	}
	g.pile.SetCards(state.Pile)
	if state.Request != nil {
		g.request = *state.Request
	}
	if state.WinnerID != "" {
		g.winner = g.playerByIDLocked(state.WinnerID)
	}
	g.turns = append([]TurnRecord(nil), state.Turns...)
	return g, nil
}

// GetStateSnapshot captures the full game for persistence.
func (g *Game) GetStateSnapshot() GameState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	state := GameState{
		Started:      g.started,
		CurrentTurn:  g.currentTurn,
		IsForward:    g.isForward,
		Pick:         g.pick,
		Give:         g.give,
		RequestLevel: g.requestLevel,
		Deck:         g.deck.GetState().RemainingCards,
		Pile:         g.pile.GetCards(),
	}
	if g.requestLevel != NoRequest {
		req := g.request
		state.Request = &req
	}
	if g.winner != nil {
		state.WinnerID = g.winner.ID
	}
	state.Players = make([]PlayerState, 0, len(g.players))
	for _, p := range g.players {
		hand := make([]Card, len(p.Hand))
		copy(hand, p.Hand)
		state.Players = append(state.Players, PlayerState{
			ID:       p.ID,
			Name:     p.Name,
			Seat:     p.Seat,
			Hand:     hand,
			LastCard: p.LastCard,
		})
	}
	state.Turns = make([]TurnRecord, len(g.turns))
	copy(state.Turns, g.turns)
	return state
}
