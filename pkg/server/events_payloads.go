package server

import "github.com/vctt94/karata/pkg/karata"

// Each event carries exactly one payload implementing this interface.
type EventPayload interface {
	Kind() GameEventType
}

// PlayerJoinedPayload records a player taking a seat.
type PlayerJoinedPayload struct {
	PlayerID string
	Name     string
	Seat     int
}

func (p *PlayerJoinedPayload) Kind() GameEventType { return GameEventPlayerJoined }

// PlayerLeftPayload records a player vacating their seat. NewHostID is
// set when the departure transferred the host role.
type PlayerLeftPayload struct {
	PlayerID  string
	Name      string
	NewHostID string
}

func (p *PlayerLeftPayload) Kind() GameEventType { return GameEventPlayerLeft }

// PlayerReadyPayload records a ready flag flip.
type PlayerReadyPayload struct {
	PlayerID string
	Name     string
	Ready    bool
}

func (p *PlayerReadyPayload) Kind() GameEventType { return GameEventPlayerReady }

// GameStartedPayload records a game starting.
type GameStartedPayload struct {
	Players int
	Starter karata.Card
}

func (p *GameStartedPayload) Kind() GameEventType { return GameEventGameStarted }

// TurnPlayedPayload records one completed turn.
type TurnPlayedPayload struct {
	PlayerID string
	Cards    int
	Picked   int
	NextTurn int
}

func (p *TurnPlayedPayload) Kind() GameEventType { return GameEventTurnPlayed }

// GameEndedPayload records a game ending, by win or otherwise.
type GameEndedPayload struct {
	Reason   string
	WinnerID string
	Turns    int
}

func (p *GameEndedPayload) Kind() GameEventType { return GameEventGameEnded }
