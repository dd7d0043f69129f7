// Package wire defines the JSON protocol spoken between the karata
// server and its clients. Every frame is an Envelope whose payload is
// one of the types below, keyed by the message type constants.
package wire

import (
	"encoding/json"
	"time"

	"github.com/vctt94/karata/pkg/karata"
)

// Client to server message types.
const (
	TypeHello             = "hello"
	TypeCreateRoom        = "createRoom"
	TypeJoinRoom          = "joinRoom"
	TypeLeaveRoom         = "leaveRoom"
	TypeSetReady          = "setReady"
	TypeListRooms         = "listRooms"
	TypeListMatches       = "listMatches"
	TypePerformTurn       = "performTurn"
	TypeRequestCard       = "requestCard"
	TypeSetLastCardStatus = "setLastCardStatus"
)

// Server to client message types. The card movement events mirror the
// server's mutations one for one, in the order they happen, so a
// client can replay them onto its local copy of the room.
const (
	TypeAddCardRangeToPile        = "addCardRangeToPile"
	TypeRemoveCardsFromDeck       = "removeCardsFromDeck"
	TypeAddCardsToDeck            = "addCardsToDeck"
	TypeReclaimPile               = "reclaimPile"
	TypeAddCardRangeToHand        = "addCardRangeToHand"
	TypeRemoveCardRangeFromHand   = "removeCardRangeFromHand"
	TypeAddCardsToPlayerHand      = "addCardsToPlayerHand"
	TypeRemoveCardsFromPlayerHand = "removeCardsFromPlayerHand"
	TypeSetCurrentRequest         = "setCurrentRequest"
	TypeUpdateTurn                = "updateTurn"
	TypeUpdateGameStatus          = "updateGameStatus"
	TypePromptCardRequest         = "promptCardRequest"
	TypePromptLastCardRequest     = "promptLastCardRequest"
	TypeNotifyTurnProcessed       = "notifyTurnProcessed"
	TypeReceiveSystemMessage      = "receiveSystemMessage"
	TypeEndGame                   = "endGame"
	TypeRoomCreated               = "roomCreated"
	TypeRoomList                  = "roomList"
	TypeMatchList                 = "matchList"
	TypeUpdateRoomState           = "updateRoomState"
	TypeError                     = "error"
)

// System message kinds.
const (
	MessageInfo    = "info"
	MessageWarning = "warning"
	MessageError   = "error"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal frames a payload under the given message type. A nil payload
// produces a bare envelope.
func Marshal(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals the payload into the given value.
func (e *Envelope) Decode(into any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, into)
}

// HelloPayload binds a connection to a player identity. A second hello
// for the same player supersedes the earlier connection.
type HelloPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

// CreateRoomPayload opens a new room hosted by the caller. Bounds
// outside 2..4 are clamped.
type CreateRoomPayload struct {
	MinPlayers int `json:"minPlayers"`
	MaxPlayers int `json:"maxPlayers"`
}

// JoinRoomPayload seats the caller in an existing room.
type JoinRoomPayload struct {
	InviteLink string `json:"inviteLink"`
}

// LeaveRoomPayload vacates the caller's seat. Leaving a started game
// ends it.
type LeaveRoomPayload struct {
	InviteLink string `json:"inviteLink"`
}

// SetReadyPayload flips the caller's ready flag. The game starts when
// everyone seated is ready and the minimum count is met.
type SetReadyPayload struct {
	InviteLink string `json:"inviteLink"`
	Ready      bool   `json:"ready"`
}

// ListMatchesPayload asks for recent match results.
type ListMatchesPayload struct {
	Limit int `json:"limit,omitempty"`
}

// PerformTurnPayload submits a turn: the card sequence to play, oldest
// first, or an empty sequence to draw.
type PerformTurnPayload struct {
	InviteLink string        `json:"inviteLink"`
	Cards      []karata.Card `json:"cards"`
}

// RequestCardPayload answers an outstanding card request prompt.
type RequestCardPayload struct {
	Card karata.Card `json:"card"`
}

// SetLastCardStatusPayload answers an outstanding last card prompt.
type SetLastCardStatusPayload struct {
	IsLastCard bool `json:"isLastCard"`
}

// CardRangePayload carries an ordered run of identified cards.
type CardRangePayload struct {
	Cards []karata.Card `json:"cards"`
}

// CardCountPayload carries an anonymous card count.
type CardCountPayload struct {
	Count int `json:"count"`
}

// PlayerCardCountPayload carries an anonymous card count attributed to
// a player. Other players learn hand sizes, never hand contents.
type PlayerCardCountPayload struct {
	PlayerID string `json:"playerId"`
	Count    int    `json:"count"`
}

// SetCurrentRequestPayload publishes the outstanding card request. A
// nil card means the request was cleared. A suit-level request carries
// a card with face zero.
type SetCurrentRequestPayload struct {
	Card *karata.Card `json:"card,omitempty"`
}

// UpdateTurnPayload announces whose seat index holds the turn.
type UpdateTurnPayload struct {
	Turn int `json:"turn"`
}

// UpdateGameStatusPayload announces the game starting or ending.
type UpdateGameStatusPayload struct {
	Started bool `json:"started"`
}

// PromptCardRequestPayload asks the turn's player which card they
// demand. Specific asks for a full card, otherwise just a suit.
type PromptCardRequestPayload struct {
	Specific bool `json:"specific"`
}

// NotifyTurnProcessedPayload reports whether the submitted turn was
// accepted.
type NotifyTurnProcessedPayload struct {
	Valid bool `json:"valid"`
}

// SystemMessagePayload is a human-readable notice.
type SystemMessagePayload struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// EndGamePayload announces the end of a game. WinnerID is empty when
// the game ended without a winner.
type EndGamePayload struct {
	Reason   string `json:"reason"`
	WinnerID string `json:"winnerId,omitempty"`
}

// RoomCreatedPayload confirms room creation to the host.
type RoomCreatedPayload struct {
	InviteLink string `json:"inviteLink"`
}

// RoomInfo is one row of the public room listing.
type RoomInfo struct {
	InviteLink  string `json:"inviteLink"`
	HostID      string `json:"hostId"`
	Phase       string `json:"phase"`
	PlayerCount int    `json:"playerCount"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
	GameStarted bool   `json:"gameStarted"`
}

// RoomListPayload carries the public room listing.
type RoomListPayload struct {
	Rooms []RoomInfo `json:"rooms"`
}

// MatchRecord is one finished game.
type MatchRecord struct {
	RoomID     string    `json:"roomId"`
	WinnerID   string    `json:"winnerId,omitempty"`
	Reason     string    `json:"reason"`
	Turns      int       `json:"turns"`
	FinishedAt time.Time `json:"finishedAt"`
}

// MatchListPayload carries recent match results, newest first.
type MatchListPayload struct {
	Matches []MatchRecord `json:"matches"`
}

// PlayerView is one seat as a particular viewer sees it: the viewer's
// own hand in full, everyone else's as a count.
type PlayerView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Seat         int           `json:"seat"`
	IsReady      bool          `json:"isReady"`
	IsHost       bool          `json:"isHost"`
	Disconnected bool          `json:"disconnected,omitempty"`
	HandCount    int           `json:"handCount"`
	LastCard     bool          `json:"lastCard,omitempty"`
	Hand         []karata.Card `json:"hand,omitempty"`
}

// RoomView is a whole room as a particular viewer sees it.
type RoomView struct {
	InviteLink      string       `json:"inviteLink"`
	HostID          string       `json:"hostId"`
	Phase           string       `json:"phase"`
	MinPlayers      int          `json:"minPlayers"`
	MaxPlayers      int          `json:"maxPlayers"`
	GameStarted     bool         `json:"gameStarted"`
	CurrentTurn     int          `json:"currentTurn"`
	CurrentPlayerID string       `json:"currentPlayerId,omitempty"`
	IsForward       bool         `json:"isForward"`
	DeckCount       int          `json:"deckCount"`
	PileCount       int          `json:"pileCount"`
	PileTop         *karata.Card `json:"pileTop,omitempty"`
	CurrentRequest  *karata.Card `json:"currentRequest,omitempty"`
	RequestLevel    string       `json:"requestLevel,omitempty"`
	Players         []PlayerView `json:"players"`
}

// RoomStatePayload carries one viewer's refreshed view of their room.
type RoomStatePayload struct {
	Room RoomView `json:"room"`
}

// ErrorPayload reports a failed request.
type ErrorPayload struct {
	Message string `json:"message"`
}
