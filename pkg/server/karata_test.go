package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

func allTestCards() []karata.Card {
	suits := []karata.Suit{karata.Spades, karata.Hearts, karata.Diamonds, karata.Clubs}
	cards := make([]karata.Card, 0, karata.StandardDeckSize)
	for _, s := range suits {
		for f := karata.Ace; f <= karata.King; f++ {
			cards = append(cards, karata.NewCard(s, f))
		}
	}
	return append(cards,
		karata.NewCard(karata.BlackJoker, karata.None),
		karata.NewCard(karata.RedJoker, karata.None))
}

func statePlayer(id string, seat int, lastCard bool, hand ...karata.Card) karata.PlayerState {
	return karata.PlayerState{ID: id, Name: id, Seat: seat, Hand: hand, LastCard: lastCard}
}

// buildGameState puts the given hands and pile on the table and the
// remaining cards in the draw deck, so the full deck stays accounted
// for. The pile's last card is its top.
func buildGameState(t *testing.T, players []karata.PlayerState, pile []karata.Card) karata.GameState {
	t.Helper()
	used := make(map[karata.Card]int)
	for _, p := range players {
		for _, c := range p.Hand {
			used[c]++
		}
	}
	for _, c := range pile {
		used[c]++
	}

	deck := make([]karata.Card, 0, karata.StandardDeckSize)
	for _, c := range allTestCards() {
		if used[c] > 0 {
			used[c]--
			continue
		}
		deck = append(deck, c)
	}
	for c, n := range used {
		if n > 0 {
			t.Fatalf("card %s placed more than once", c)
		}
	}

	return karata.GameState{
		Started:   true,
		IsForward: true,
		Deck:      deck,
		Pile:      pile,
		Players:   players,
	}
}

type gameFixture struct {
	s     *Server
	db    *InMemoryDB
	link  string
	room  *karata.Room
	conns map[string]*Connection
}

// startFixture seats the snapshot's players in a fresh room and
// restores the crafted game over them, so turn tests start from an
// exact table.
func startFixture(t *testing.T, cfg Config, gs karata.GameState) *gameFixture {
	t.Helper()
	s, db := newTestServer(t, cfg)
	conns := make(map[string]*Connection, len(gs.Players))

	host := gs.Players[0]
	hostConn := connectPlayer(s, host.ID)
	conns[host.ID] = hostConn
	link := createRoom(t, s, hostConn, len(gs.Players), len(gs.Players))
	for _, p := range gs.Players[1:] {
		c := connectPlayer(s, p.ID)
		conns[p.ID] = c
		s.handleJoinRoom(c, wire.JoinRoomPayload{InviteLink: link})
	}

	room := s.getRoom(link)
	require.NotNil(t, room)
	require.NoError(t, room.RestoreGame(gs))

	for _, c := range conns {
		drainConn(c)
	}
	return &gameFixture{s: s, db: db, link: link, room: room, conns: conns}
}

// turnAnswers scripts the prompts a turn may ask.
type turnAnswers struct {
	request  *karata.Card
	lastCard bool
}

// runTurn submits a turn, answers its prompts as scripted, and returns
// every frame the caller's connection received while it ran.
func runTurn(t *testing.T, s *Server, c *Connection, link string, cards []karata.Card, answers turnAnswers) []wire.Envelope {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handlePerformTurn(c, wire.PerformTurnPayload{InviteLink: link, Cards: cards})
	}()

	var got []wire.Envelope
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			for {
				select {
				case data := <-c.Send:
					var env wire.Envelope
					require.NoError(t, json.Unmarshal(data, &env))
					got = append(got, env)
				default:
					return got
				}
			}
		case data := <-c.Send:
			var env wire.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			got = append(got, env)
			switch env.Type {
			case wire.TypePromptCardRequest:
				require.NotNil(t, answers.request, "turn asked for a card request with no scripted answer")
				s.handleRequestCard(c, wire.RequestCardPayload{Card: *answers.request})
			case wire.TypePromptLastCardRequest:
				s.handleSetLastCardStatus(c, wire.SetLastCardStatusPayload{IsLastCard: answers.lastCard})
			}
		case <-deadline:
			t.Fatal("turn did not complete")
		}
	}
}

func findEnvelope(envs []wire.Envelope, msgType string) *wire.Envelope {
	for i := range envs {
		if envs[i].Type == msgType {
			return &envs[i]
		}
	}
	return nil
}

// waitForSystemMessage discards frames until a system message with the
// given text arrives.
func waitForSystemMessage(t *testing.T, c *Connection, text string) wire.SystemMessagePayload {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.Send:
			var env wire.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Type != wire.TypeReceiveSystemMessage {
				continue
			}
			var p wire.SystemMessagePayload
			require.NoError(t, env.Decode(&p))
			if p.Text == text {
				return p
			}
		case <-deadline:
			t.Fatalf("no system message %q arrived", text)
			return wire.SystemMessagePayload{}
		}
	}
}

// expectRejected submits a turn that must not go through and asserts
// the caller was told so. Leaves the table untouched by definition.
func expectRejected(t *testing.T, s *Server, c *Connection, link string, cards []karata.Card, wantText string) {
	t.Helper()
	s.handlePerformTurn(c, wire.PerformTurnPayload{InviteLink: link, Cards: cards})
	if wantText != "" {
		msg := waitForSystemMessage(t, c, wantText)
		assert.Equal(t, wire.MessageError, msg.Kind)
	}
	env := waitForMsg(t, c, wire.TypeNotifyTurnProcessed)
	processed := decodePayload[wire.NotifyTurnProcessedPayload](t, env)
	assert.False(t, processed.Valid)
}

// twoPlayerState is the baseline table: alice to act on a Seven of
// Hearts top.
func twoPlayerState(t *testing.T, aliceHand, bobHand []karata.Card) karata.GameState {
	t.Helper()
	return buildGameState(t, []karata.PlayerState{
		statePlayer("alice", 0, false, aliceHand...),
		statePlayer("bob", 1, false, bobHand...),
	}, []karata.Card{karata.NewCard(karata.Hearts, karata.Seven)})
}

func TestTurnRejections(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Hearts, karata.Five), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}

	t.Run("unknown room", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")

		s.handlePerformTurn(alice, wire.PerformTurnPayload{InviteLink: "no-such-room"})
		env := waitForMsg(t, alice, wire.TypeError)
		errPayload := decodePayload[wire.ErrorPayload](t, env)
		assert.Equal(t, "room not found", errPayload.Message)
	})

	t.Run("game not started", func(t *testing.T) {
		s, _ := newTestServer(t, Config{Seed: 42})
		alice := connectPlayer(s, "alice")
		link := createRoom(t, s, alice, 2, 4)

		expectRejected(t, s, alice, link, nil, karata.ErrNotStarted.Error())
	})

	t.Run("not your turn", func(t *testing.T) {
		fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))

		expectRejected(t, fx.s, fx.conns["bob"], fx.link, nil, karata.ErrNotYourTurn.Error())
		assert.Equal(t, 0, fx.room.Game().CurrentTurnIndex())
	})

	t.Run("cards not held", func(t *testing.T) {
		fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
		game := fx.room.Game()

		// Valid on the table, but sitting in the deck, not her hand.
		expectRejected(t, fx.s, fx.conns["alice"], fx.link,
			[]karata.Card{karata.NewCard(karata.Spades, karata.Seven)}, "")

		assert.Equal(t, 1, game.PileSize())
		assert.Equal(t, 2, game.PlayerByID("alice").HandSize())
		assert.Equal(t, 0, game.CurrentTurnIndex())
	})

	t.Run("sequence the table refuses", func(t *testing.T) {
		fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))

		// Ten of Clubs shares neither face nor suit with the top.
		expectRejected(t, fx.s, fx.conns["alice"], fx.link,
			[]karata.Card{karata.NewCard(karata.Clubs, karata.Ten)}, karata.ErrInvalidFirstCard.Error())
	})
}

func TestTurnEmptyDraws(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Hearts, karata.Five), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
	game := fx.room.Game()
	deckBefore := game.DeckSize()

	got := runTurn(t, fx.s, fx.conns["alice"], fx.link, nil, turnAnswers{})

	env := findEnvelope(got, wire.TypeNotifyTurnProcessed)
	require.NotNil(t, env)
	assert.True(t, decodePayload[wire.NotifyTurnProcessedPayload](t, env).Valid)

	env = findEnvelope(got, wire.TypeAddCardRangeToHand)
	require.NotNil(t, env)
	assert.Len(t, decodePayload[wire.CardRangePayload](t, env).Cards, 1)

	env = findEnvelope(got, wire.TypeRemoveCardsFromDeck)
	require.NotNil(t, env)
	assert.Equal(t, 1, decodePayload[wire.CardCountPayload](t, env).Count)

	require.NotNil(t, findEnvelope(got, wire.TypePromptLastCardRequest))

	env = findEnvelope(got, wire.TypeUpdateTurn)
	require.NotNil(t, env)
	assert.Equal(t, 1, decodePayload[wire.UpdateTurnPayload](t, env).Turn)

	assert.Equal(t, 3, game.PlayerByID("alice").HandSize())
	assert.Equal(t, deckBefore-1, game.DeckSize())
	assert.Equal(t, 1, game.CurrentTurnIndex())
	assert.Equal(t, karata.StandardDeckSize, game.TotalCards())

	// The other seat learns the count, not the card.
	env = waitForMsg(t, fx.conns["bob"], wire.TypeAddCardsToPlayerHand)
	count := decodePayload[wire.PlayerCardCountPayload](t, env)
	assert.Equal(t, "alice", count.PlayerID)
	assert.Equal(t, 1, count.Count)
}

func TestTurnPlaysCards(t *testing.T) {
	t.Run("single card", func(t *testing.T) {
		aliceHand := []karata.Card{karata.NewCard(karata.Hearts, karata.Five), karata.NewCard(karata.Clubs, karata.Ten)}
		bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
		fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
		game := fx.room.Game()
		played := karata.NewCard(karata.Hearts, karata.Five)

		got := runTurn(t, fx.s, fx.conns["alice"], fx.link, []karata.Card{played}, turnAnswers{})

		env := findEnvelope(got, wire.TypeAddCardRangeToPile)
		require.NotNil(t, env)
		assert.Equal(t, []karata.Card{played}, decodePayload[wire.CardRangePayload](t, env).Cards)

		env = findEnvelope(got, wire.TypeRemoveCardRangeFromHand)
		require.NotNil(t, env)
		assert.Equal(t, []karata.Card{played}, decodePayload[wire.CardRangePayload](t, env).Cards)

		assert.Nil(t, findEnvelope(got, wire.TypeAddCardRangeToHand), "a clean play must not draw")

		top, ok := game.PileTop()
		require.True(t, ok)
		assert.Equal(t, played, top)
		assert.Equal(t, 1, game.PlayerByID("alice").HandSize())
		assert.Equal(t, 1, game.CurrentTurnIndex())
		assert.Equal(t, 0, game.Pick())
		assert.Equal(t, 0, game.Give())

		// The slice that goes through the event pipeline ends up in the
		// database too.
		fx.s.saveWg.Wait()
		state, err := fx.db.LoadRoom(fx.link)
		require.NoError(t, err)
		require.NotNil(t, state.Game)
		require.NotEmpty(t, state.Game.Pile)
		assert.Equal(t, played, state.Game.Pile[len(state.Game.Pile)-1])
	})

	t.Run("same face run", func(t *testing.T) {
		aliceHand := []karata.Card{
			karata.NewCard(karata.Hearts, karata.Ten),
			karata.NewCard(karata.Clubs, karata.Ten),
			karata.NewCard(karata.Hearts, karata.Five),
		}
		bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
		fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
		game := fx.room.Game()
		run := []karata.Card{karata.NewCard(karata.Hearts, karata.Ten), karata.NewCard(karata.Clubs, karata.Ten)}

		runTurn(t, fx.s, fx.conns["alice"], fx.link, run, turnAnswers{})

		top, ok := game.PileTop()
		require.True(t, ok)
		assert.Equal(t, karata.NewCard(karata.Clubs, karata.Ten), top)
		assert.Equal(t, 1, game.PlayerByID("alice").HandSize())
		assert.Equal(t, 3, game.PileSize())
	})
}

func TestTurnLastCardDeclaration(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Hearts, karata.Five), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
	game := fx.room.Game()

	runTurn(t, fx.s, fx.conns["alice"], fx.link,
		[]karata.Card{karata.NewCard(karata.Hearts, karata.Five)}, turnAnswers{lastCard: true})

	assert.True(t, game.PlayerByID("alice").LastCard)

	msg := waitForSystemMessage(t, fx.conns["bob"], "alice is on their last card")
	assert.Equal(t, wire.MessageWarning, msg.Kind)
}

func TestTurnWin(t *testing.T) {
	state := buildGameState(t, []karata.PlayerState{
		statePlayer("alice", 0, true, karata.NewCard(karata.Hearts, karata.Five)),
		statePlayer("bob", 1, false, karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)),
	}, []karata.Card{karata.NewCard(karata.Hearts, karata.Seven)})
	fx := startFixture(t, Config{}, state)

	// The hand empties, so no prompt fires and the call is synchronous.
	fx.s.handlePerformTurn(fx.conns["alice"], wire.PerformTurnPayload{
		InviteLink: fx.link,
		Cards:      []karata.Card{karata.NewCard(karata.Hearts, karata.Five)},
	})

	env := waitForMsg(t, fx.conns["alice"], wire.TypeEndGame)
	end := decodePayload[wire.EndGamePayload](t, env)
	assert.Equal(t, "alice", end.WinnerID)
	assert.Equal(t, "alice won the game", end.Reason)

	env = waitForMsg(t, fx.conns["alice"], wire.TypeUpdateGameStatus)
	assert.False(t, decodePayload[wire.UpdateGameStatusPayload](t, env).Started)

	assert.False(t, fx.room.IsGameStarted())
	assert.Equal(t, 2, fx.room.UserCount(), "the room outlives the game")

	results, err := fx.db.ListMatchResults(10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].WinnerID)
	assert.Equal(t, 1, results[0].Turns)
}

func TestTurnCardlessWithoutDeclaration(t *testing.T) {
	state := buildGameState(t, []karata.PlayerState{
		statePlayer("alice", 0, false, karata.NewCard(karata.Hearts, karata.Five)),
		statePlayer("bob", 1, false, karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)),
	}, []karata.Card{karata.NewCard(karata.Hearts, karata.Seven)})
	fx := startFixture(t, Config{}, state)
	game := fx.room.Game()

	fx.s.handlePerformTurn(fx.conns["alice"], wire.PerformTurnPayload{
		InviteLink: fx.link,
		Cards:      []karata.Card{karata.NewCard(karata.Hearts, karata.Five)},
	})

	// Shedding the last card without the declaration does not win.
	msg := waitForSystemMessage(t, fx.conns["bob"], "alice is cardless")
	assert.Equal(t, wire.MessageInfo, msg.Kind)

	require.True(t, fx.room.IsGameStarted())
	assert.Equal(t, 0, game.PlayerByID("alice").HandSize())
	assert.Equal(t, 1, game.CurrentTurnIndex())

	// She stays in the game and draws on her next turn.
	runTurn(t, fx.s, fx.conns["bob"], fx.link, nil, turnAnswers{})
	got := runTurn(t, fx.s, fx.conns["alice"], fx.link, nil, turnAnswers{})
	env := findEnvelope(got, wire.TypeAddCardRangeToHand)
	require.NotNil(t, env)
	assert.Len(t, decodePayload[wire.CardRangePayload](t, env).Cards, 1)
	assert.Equal(t, 1, game.PlayerByID("alice").HandSize())
}

func TestTurnAceSuitRequest(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Diamonds, karata.Ace), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Clubs, karata.Four)}
	fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
	game := fx.room.Game()
	answer := karata.NewCard(karata.Clubs, karata.Nine)

	got := runTurn(t, fx.s, fx.conns["alice"], fx.link,
		[]karata.Card{karata.NewCard(karata.Diamonds, karata.Ace)},
		turnAnswers{request: &answer})

	env := findEnvelope(got, wire.TypePromptCardRequest)
	require.NotNil(t, env)
	assert.False(t, decodePayload[wire.PromptCardRequestPayload](t, env).Specific,
		"one ordinary ace buys a suit request, not a full card")

	env = findEnvelope(got, wire.TypeSetCurrentRequest)
	require.NotNil(t, env)
	published := decodePayload[wire.SetCurrentRequestPayload](t, env)
	require.NotNil(t, published.Card)
	assert.Equal(t, karata.Clubs, published.Card.GetSuit())
	assert.Equal(t, karata.None, published.Card.GetFace(), "a suit request carries no face")

	stored, level := game.Request()
	assert.Equal(t, karata.NewCard(karata.Clubs, karata.None), stored)
	assert.Equal(t, karata.SuitRequest, level)

	// The demand binds the next player's opening card.
	expectRejected(t, fx.s, fx.conns["bob"], fx.link,
		[]karata.Card{karata.NewCard(karata.Spades, karata.Four)}, karata.ErrCardRequested.Error())

	runTurn(t, fx.s, fx.conns["bob"], fx.link,
		[]karata.Card{karata.NewCard(karata.Clubs, karata.Four)}, turnAnswers{})

	// Conforming satisfies the turn; only an ace clears the demand.
	stored, level = game.Request()
	assert.Equal(t, karata.NewCard(karata.Clubs, karata.None), stored)
	assert.Equal(t, karata.SuitRequest, level)
}

func TestTurnAceOfSpadesCardRequest(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Spades, karata.Ace), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Hearts, karata.Four), karata.NewCard(karata.Hearts, karata.Nine)}
	fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
	game := fx.room.Game()
	answer := karata.NewCard(karata.Hearts, karata.Nine)

	got := runTurn(t, fx.s, fx.conns["alice"], fx.link,
		[]karata.Card{karata.NewCard(karata.Spades, karata.Ace)},
		turnAnswers{request: &answer})

	env := findEnvelope(got, wire.TypePromptCardRequest)
	require.NotNil(t, env)
	assert.True(t, decodePayload[wire.PromptCardRequestPayload](t, env).Specific,
		"the ace of spades alone buys a full card request")

	stored, level := game.Request()
	assert.Equal(t, answer, stored)
	assert.Equal(t, karata.CardRequest, level)

	// Same suit, wrong face: still not the demanded card.
	expectRejected(t, fx.s, fx.conns["bob"], fx.link,
		[]karata.Card{karata.NewCard(karata.Hearts, karata.Four)}, karata.ErrCardRequested.Error())

	runTurn(t, fx.s, fx.conns["bob"], fx.link, []karata.Card{answer}, turnAnswers{})
	top, ok := game.PileTop()
	require.True(t, ok)
	assert.Equal(t, answer, top)
}

func TestTurnAceClearsRequest(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Diamonds, karata.Ace), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	state := twoPlayerState(t, aliceHand, bobHand)
	pending := karata.NewCard(karata.Clubs, karata.None)
	state.Request = &pending
	state.RequestLevel = karata.SuitRequest
	fx := startFixture(t, Config{}, state)
	game := fx.room.Game()

	got := runTurn(t, fx.s, fx.conns["alice"], fx.link,
		[]karata.Card{karata.NewCard(karata.Diamonds, karata.Ace)}, turnAnswers{})

	// One ace against one pending level: discharge, nothing left to ask.
	assert.Nil(t, findEnvelope(got, wire.TypePromptCardRequest))
	env := findEnvelope(got, wire.TypeSetCurrentRequest)
	require.NotNil(t, env)
	assert.Nil(t, decodePayload[wire.SetCurrentRequestPayload](t, env).Card)

	_, level := game.Request()
	assert.Equal(t, karata.NoRequest, level)
	assert.Equal(t, 1, game.CurrentTurnIndex())
}

func TestTurnBombGive(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Hearts, karata.Two), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
	game := fx.room.Game()

	got := runTurn(t, fx.s, fx.conns["alice"], fx.link,
		[]karata.Card{karata.NewCard(karata.Hearts, karata.Two)}, turnAnswers{})

	// The bomb is owed by the next player, not drawn by this one.
	assert.Nil(t, findEnvelope(got, wire.TypeAddCardRangeToHand))
	assert.Equal(t, 2, game.Give())
	assert.Equal(t, 0, game.Pick())

	got = runTurn(t, fx.s, fx.conns["bob"], fx.link, nil, turnAnswers{})

	env := findEnvelope(got, wire.TypeAddCardRangeToHand)
	require.NotNil(t, env)
	assert.Len(t, decodePayload[wire.CardRangePayload](t, env).Cards, 2)
	assert.Equal(t, 4, game.PlayerByID("bob").HandSize())
	assert.Equal(t, 0, game.Give())
	assert.Equal(t, 0, game.Pick())
	assert.Equal(t, karata.StandardDeckSize, game.TotalCards())
}

func TestTurnQuestionDrawsWithoutAnswer(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Hearts, karata.Eight), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
	game := fx.room.Game()

	got := runTurn(t, fx.s, fx.conns["alice"], fx.link,
		[]karata.Card{karata.NewCard(karata.Hearts, karata.Eight)}, turnAnswers{})

	env := findEnvelope(got, wire.TypeAddCardRangeToHand)
	require.NotNil(t, env)
	assert.Len(t, decodePayload[wire.CardRangePayload](t, env).Cards, 1)
	assert.Equal(t, 2, game.PlayerByID("alice").HandSize(), "played one, drew one")
	assert.Equal(t, 1, game.CurrentTurnIndex())
}

func TestTurnJackAndKing(t *testing.T) {
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	carolHand := []karata.Card{karata.NewCard(karata.Clubs, karata.Six), karata.NewCard(karata.Diamonds, karata.Six)}

	threePlayerState := func(t *testing.T, aliceHand []karata.Card) karata.GameState {
		return buildGameState(t, []karata.PlayerState{
			statePlayer("alice", 0, false, aliceHand...),
			statePlayer("bob", 1, false, bobHand...),
			statePlayer("carol", 2, false, carolHand...),
		}, []karata.Card{karata.NewCard(karata.Hearts, karata.Seven)})
	}

	t.Run("jack skips the next player", func(t *testing.T) {
		fx := startFixture(t, Config{}, threePlayerState(t,
			[]karata.Card{karata.NewCard(karata.Hearts, karata.Jack), karata.NewCard(karata.Clubs, karata.Ten)}))
		game := fx.room.Game()

		got := runTurn(t, fx.s, fx.conns["alice"], fx.link,
			[]karata.Card{karata.NewCard(karata.Hearts, karata.Jack)}, turnAnswers{})

		env := findEnvelope(got, wire.TypeUpdateTurn)
		require.NotNil(t, env)
		assert.Equal(t, 2, decodePayload[wire.UpdateTurnPayload](t, env).Turn)
		assert.Equal(t, "carol", game.CurrentPlayer().ID)
	})

	t.Run("king reverses direction", func(t *testing.T) {
		fx := startFixture(t, Config{}, threePlayerState(t,
			[]karata.Card{karata.NewCard(karata.Hearts, karata.King), karata.NewCard(karata.Clubs, karata.Ten)}))
		game := fx.room.Game()

		runTurn(t, fx.s, fx.conns["alice"], fx.link,
			[]karata.Card{karata.NewCard(karata.Hearts, karata.King)}, turnAnswers{})

		assert.False(t, game.IsForward())
		assert.Equal(t, "carol", game.CurrentPlayer().ID, "play now runs backwards")
	})

	t.Run("king pair comes back around", func(t *testing.T) {
		fx := startFixture(t, Config{}, threePlayerState(t, []karata.Card{
			karata.NewCard(karata.Hearts, karata.King),
			karata.NewCard(karata.Spades, karata.King),
			karata.NewCard(karata.Clubs, karata.Ten),
		}))
		game := fx.room.Game()

		runTurn(t, fx.s, fx.conns["alice"], fx.link, []karata.Card{
			karata.NewCard(karata.Hearts, karata.King),
			karata.NewCard(karata.Spades, karata.King),
		}, turnAnswers{})

		assert.True(t, game.IsForward(), "two flips cancel out")
		assert.Equal(t, "alice", game.CurrentPlayer().ID, "the pair keeps the turn")
	})
}

func TestTurnReclaimReplenishes(t *testing.T) {
	all := allTestCards()
	pileCards := all[:8]
	deck := all[8:9]
	rest := all[9:]
	state := karata.GameState{
		Started:   true,
		IsForward: true,
		Give:      3,
		Deck:      deck,
		Pile:      pileCards,
		Players: []karata.PlayerState{
			statePlayer("alice", 0, false, rest[:len(rest)/2]...),
			statePlayer("bob", 1, false, rest[len(rest)/2:]...),
		},
	}
	fx := startFixture(t, Config{}, state)
	game := fx.room.Game()
	top, ok := game.PileTop()
	require.True(t, ok)
	aliceBefore := game.PlayerByID("alice").HandSize()

	got := runTurn(t, fx.s, fx.conns["alice"], fx.link, nil, turnAnswers{})

	require.NotNil(t, findEnvelope(got, wire.TypeReclaimPile))
	env := findEnvelope(got, wire.TypeAddCardsToDeck)
	require.NotNil(t, env)
	assert.Equal(t, 7, decodePayload[wire.CardCountPayload](t, env).Count)

	env = findEnvelope(got, wire.TypeAddCardRangeToHand)
	require.NotNil(t, env)
	assert.Len(t, decodePayload[wire.CardRangePayload](t, env).Cards, 3)

	assert.Equal(t, 1, game.PileSize(), "the reclaim leaves the top in place")
	newTop, ok := game.PileTop()
	require.True(t, ok)
	assert.Equal(t, top, newTop)
	assert.Equal(t, 5, game.DeckSize())
	assert.Equal(t, aliceBefore+3, game.PlayerByID("alice").HandSize())
	assert.Equal(t, karata.StandardDeckSize, game.TotalCards())
	assert.Equal(t, 0, game.Pick())
}

func TestTurnInsufficientCardsEndsGame(t *testing.T) {
	all := allTestCards()
	state := karata.GameState{
		Started:   true,
		IsForward: true,
		Give:      10,
		Deck:      all[8:9],
		Pile:      all[:1],
		Players: []karata.PlayerState{
			statePlayer("alice", 0, false, all[9:35]...),
			statePlayer("bob", 1, false, append(all[1:8:8], all[35:]...)...),
		},
	}
	fx := startFixture(t, Config{}, state)

	// Nothing to reclaim that could cover a ten card pick; the call is
	// synchronous because the game ends before any prompt.
	fx.s.handlePerformTurn(fx.conns["alice"], wire.PerformTurnPayload{InviteLink: fx.link})

	env := waitForMsg(t, fx.conns["alice"], wire.TypeEndGame)
	end := decodePayload[wire.EndGamePayload](t, env)
	assert.Equal(t, "insufficient cards", end.Reason)
	assert.Empty(t, end.WinnerID)
	assert.False(t, fx.room.IsGameStarted())

	results, err := fx.db.ListMatchResults(10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "insufficient cards", results[0].Reason)
	assert.Empty(t, results[0].WinnerID)
}

func TestTurnBlockedOnPromptRejectsAnother(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Diamonds, karata.Ace), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	fx := startFixture(t, Config{}, twoPlayerState(t, aliceHand, bobHand))
	game := fx.room.Game()
	alice := fx.conns["alice"]

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.s.handlePerformTurn(alice, wire.PerformTurnPayload{
			InviteLink: fx.link,
			Cards:      []karata.Card{karata.NewCard(karata.Diamonds, karata.Ace)},
		})
	}()
	waitForMsg(t, alice, wire.TypePromptCardRequest)

	// A second turn while the server waits on the answer bounces off
	// before it can deadlock behind the turn in flight.
	fx.s.handlePerformTurn(alice, wire.PerformTurnPayload{InviteLink: fx.link})
	msg := waitForSystemMessage(t, alice, karata.ErrOutstandingPrompt.Error())
	assert.Equal(t, wire.MessageError, msg.Kind)
	env := waitForMsg(t, alice, wire.TypeNotifyTurnProcessed)
	assert.False(t, decodePayload[wire.NotifyTurnProcessedPayload](t, env).Valid)

	// Answering lets the blocked turn finish normally.
	fx.s.handleRequestCard(alice, wire.RequestCardPayload{Card: karata.NewCard(karata.Clubs, karata.Nine)})
	waitForMsg(t, alice, wire.TypePromptLastCardRequest)
	fx.s.handleSetLastCardStatus(alice, wire.SetLastCardStatusPayload{IsLastCard: false})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked turn never finished")
	}
	stored, level := game.Request()
	assert.Equal(t, karata.NewCard(karata.Clubs, karata.None), stored)
	assert.Equal(t, karata.SuitRequest, level)
	assert.Equal(t, 1, game.CurrentTurnIndex())
}

func TestTurnPromptTimeoutEndsGame(t *testing.T) {
	aliceHand := []karata.Card{karata.NewCard(karata.Diamonds, karata.Ace), karata.NewCard(karata.Clubs, karata.Ten)}
	bobHand := []karata.Card{karata.NewCard(karata.Spades, karata.Four), karata.NewCard(karata.Diamonds, karata.Nine)}
	fx := startFixture(t, Config{PromptTimeout: 50 * time.Millisecond}, twoPlayerState(t, aliceHand, bobHand))
	alice := fx.conns["alice"]

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.s.handlePerformTurn(alice, wire.PerformTurnPayload{
			InviteLink: fx.link,
			Cards:      []karata.Card{karata.NewCard(karata.Diamonds, karata.Ace)},
		})
	}()
	waitForMsg(t, alice, wire.TypePromptCardRequest)

	// Nobody answers.
	env := waitForMsg(t, alice, wire.TypeEndGame)
	end := decodePayload[wire.EndGamePayload](t, env)
	assert.Equal(t, "alice took too long to answer", end.Reason)
	assert.Empty(t, end.WinnerID)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aborted turn never returned")
	}
	assert.False(t, fx.room.IsGameStarted())

	results, err := fx.db.ListMatchResults(10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice took too long to answer", results[0].Reason)
}
