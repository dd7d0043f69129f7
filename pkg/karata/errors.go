package karata

import "errors"

// Turn validation errors. This is the closed set a turn evaluation can
// fail with; the text is shown to the player as-is.
var (
	// ErrCardRequested rejects a turn that ignores an outstanding card
	// request without countering it with an ace.
	ErrCardRequested = errors.New("the requested card must be played or countered with an ace")

	// ErrDrawCards rejects a turn that ignores a pending pick penalty
	// with anything other than a matching bomb or an ace.
	ErrDrawCards = errors.New("counter the bomb or draw the penalty cards")

	// ErrInvalidFirstCard rejects an opening card that matches the pile
	// top by neither suit nor face.
	ErrInvalidFirstCard = errors.New("the first card must match the top of the pile by suit or face")

	// ErrSubsequentAceOrJoker rejects an ace or joker chained onto
	// anything but a question or its own kind.
	ErrSubsequentAceOrJoker = errors.New("an ace or joker can only follow a question or another of its kind")

	// ErrInvalidAnswer rejects an answer that matches its question by
	// neither suit nor face.
	ErrInvalidAnswer = errors.New("the answer must match the question by suit or face")

	// ErrInvalidCardSequence rejects chained cards that do not share a
	// face.
	ErrInvalidCardSequence = errors.New("cards played together must share a face")
)

// Turn execution errors.
var (
	// ErrNotStarted rejects turns before the game has started.
	ErrNotStarted = errors.New("the game has not started")

	// ErrNotYourTurn rejects turns from anyone but the current player.
	ErrNotYourTurn = errors.New("it is not your turn")

	// ErrOutstandingPrompt rejects a new turn while the server is still
	// waiting on the player's answer to a prompt.
	ErrOutstandingPrompt = errors.New("answer the pending prompt first")
)
