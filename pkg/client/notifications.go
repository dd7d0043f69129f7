package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

// Following are the notification types. Add new types at the bottom of this
// list, then add a notifyX() to NotificationManager and initialize a new
// container in NewNotificationManager().

const onRoomCreatedNtfnType = "onRoomCreated"

// OnRoomCreatedNtfn is the handler for room creation notifications.
type OnRoomCreatedNtfn func(inviteLink string, ts time.Time)

func (_ OnRoomCreatedNtfn) typ() string { return onRoomCreatedNtfnType }

const onRoomStateNtfnType = "onRoomState"

// OnRoomStateNtfn is the handler for room state refresh notifications.
type OnRoomStateNtfn func(room *wire.RoomView, ts time.Time)

func (_ OnRoomStateNtfn) typ() string { return onRoomStateNtfnType }

const onGameStartedNtfnType = "onGameStarted"

// OnGameStartedNtfn is the handler for game started notifications.
type OnGameStartedNtfn func(roomID string, ts time.Time)

func (_ OnGameStartedNtfn) typ() string { return onGameStartedNtfnType }

const onGameEndedNtfnType = "onGameEnded"

// OnGameEndedNtfn is the handler for game ended notifications.
type OnGameEndedNtfn func(roomID, winnerID, reason string, ts time.Time)

func (_ OnGameEndedNtfn) typ() string { return onGameEndedNtfnType }

const onTurnChangedNtfnType = "onTurnChanged"

// OnTurnChangedNtfn is the handler for turn change notifications. The
// seat is the index of the player who now holds the turn.
type OnTurnChangedNtfn func(seat int, ts time.Time)

func (_ OnTurnChangedNtfn) typ() string { return onTurnChangedNtfnType }

const onTurnResultNtfnType = "onTurnResult"

// OnTurnResultNtfn is the handler for the accept/reject verdict on this
// player's submitted turn.
type OnTurnResultNtfn func(valid bool, ts time.Time)

func (_ OnTurnResultNtfn) typ() string { return onTurnResultNtfnType }

const onCardRequestPromptNtfnType = "onCardRequestPrompt"

// OnCardRequestPromptNtfn is the handler for the prompt asking this
// player which card they demand after playing an ace.
type OnCardRequestPromptNtfn func(specific bool, ts time.Time)

func (_ OnCardRequestPromptNtfn) typ() string { return onCardRequestPromptNtfnType }

const onLastCardPromptNtfnType = "onLastCardPrompt"

// OnLastCardPromptNtfn is the handler for the prompt asking this player
// whether they are on their last card.
type OnLastCardPromptNtfn func(ts time.Time)

func (_ OnLastCardPromptNtfn) typ() string { return onLastCardPromptNtfnType }

const onCurrentRequestNtfnType = "onCurrentRequest"

// OnCurrentRequestNtfn is the handler for the published card request. A
// nil card means the request was cleared.
type OnCurrentRequestNtfn func(card *karata.Card, ts time.Time)

func (_ OnCurrentRequestNtfn) typ() string { return onCurrentRequestNtfnType }

const onSystemMessageNtfnType = "onSystemMessage"

// OnSystemMessageNtfn is the handler for human-readable server notices.
type OnSystemMessageNtfn func(kind, text string, ts time.Time)

func (_ OnSystemMessageNtfn) typ() string { return onSystemMessageNtfnType }

// UINotificationsConfig is the configuration for how UI notifications are
// emitted.
type UINotificationsConfig struct {
	// GameStarted flag whether to emit notification after game starts.
	GameStarted bool

	RoomCreated bool

	// MaxLength is the max length of messages emitted.
	MaxLength int

	// EmitInterval is the interval to wait for additional messages before
	// emitting a notification. Multiple messages received within this
	// interval will only generate a single UI notification.
	EmitInterval time.Duration

	// CancelEmissionChannel may be set to a Context.Done() channel to
	// cancel emission of notifications.
	CancelEmissionChannel <-chan struct{}
}

func (cfg *UINotificationsConfig) clip(msg string) string {
	if len(msg) < cfg.MaxLength {
		return msg
	}
	return msg[:cfg.MaxLength]
}

// UINotificationType is the type of notification.
type UINotificationType string

const (
	UINtfnGameStarted UINotificationType = "gamestarted"
	UINtfnRoomCreated UINotificationType = "roomcreated"
	UINtfnMultiple    UINotificationType = "multiple"
)

// UINotification is a notification that should be shown as an UI alert.
type UINotification struct {
	// Type of notification.
	Type UINotificationType `json:"type"`

	// Text of the notification.
	Text string `json:"text"`

	// Count will be greater than one when multiple notifications were
	// batched.
	Count int `json:"count"`

	// From is the player or room the notification originated from.
	From string `json:"from"`

	// Timestamp is the unix timestamp in seconds of the first message.
	Timestamp int64 `json:"timestamp"`
}

const onUINtfnType = "uintfn"

// OnUINotification is called when a notification should be shown by the UI to
// the user. This should usually take the form of an alert dialog about a
// received message.
type OnUINotification func(ntfn UINotification)

func (_ OnUINotification) typ() string { return onUINtfnType }

// The following is used only in tests.

const onTestNtfnType = "testNtfnType"

type onTestNtfn func()

func (_ onTestNtfn) typ() string { return onTestNtfnType }

// Following is the generic notification code.

type NotificationRegistration struct {
	unreg func() bool
}

func (reg NotificationRegistration) Unregister() bool {
	return reg.unreg()
}

type NotificationHandler interface {
	typ() string
}

type handler[T any] struct {
	handler T
	async   bool
}

type handlersFor[T any] struct {
	mtx      sync.Mutex
	next     uint
	handlers map[uint]handler[T]
}

func (hn *handlersFor[T]) register(h T, async bool) NotificationRegistration {
	var id uint

	hn.mtx.Lock()
	id, hn.next = hn.next, hn.next+1
	if hn.handlers == nil {
		hn.handlers = make(map[uint]handler[T])
	}
	hn.handlers[id] = handler[T]{handler: h, async: async}
	registered := true
	hn.mtx.Unlock()

	return NotificationRegistration{
		unreg: func() bool {
			hn.mtx.Lock()
			res := registered
			if registered {
				delete(hn.handlers, id)
				registered = false
			}
			hn.mtx.Unlock()
			return res
		},
	}
}

func (hn *handlersFor[T]) visit(f func(T)) {
	hn.mtx.Lock()
	for _, h := range hn.handlers {
		if h.async {
			go f(h.handler)
		} else {
			f(h.handler)
		}
	}
	hn.mtx.Unlock()
}

func (hn *handlersFor[T]) Register(v interface{}, async bool) NotificationRegistration {
	if h, ok := v.(T); !ok {
		panic("wrong type")
	} else {
		return hn.register(h, async)
	}
}

func (hn *handlersFor[T]) AnyRegistered() bool {
	hn.mtx.Lock()
	res := len(hn.handlers) > 0
	hn.mtx.Unlock()
	return res
}

type handlersRegistry interface {
	Register(v interface{}, async bool) NotificationRegistration
	AnyRegistered() bool
}

type NotificationManager struct {
	handlers map[string]handlersRegistry

	uiMtx      sync.Mutex
	uiConfig   UINotificationsConfig
	uiNextNtfn UINotification
	uiTimer    *time.Timer
}

// UpdateUIConfig updates the config used to generate UI notifications about
// game events, room creation, etc.
func (nmgr *NotificationManager) UpdateUIConfig(cfg UINotificationsConfig) {
	nmgr.uiMtx.Lock()
	nmgr.uiConfig = cfg
	nmgr.uiMtx.Unlock()
}

func (nmgr *NotificationManager) register(handler NotificationHandler, async bool) NotificationRegistration {
	handlers := nmgr.handlers[handler.typ()]
	if handlers == nil {
		panic(fmt.Sprintf("forgot to init the handler type %T "+
			"in NewNotificationManager", handler))
	}

	return handlers.Register(handler, async)
}

// Register registers a callback notification function that is called
// asynchronously to the event (i.e. in a separate goroutine).
func (nmgr *NotificationManager) Register(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, true)
}

// RegisterSync registers a callback notification function that is called
// synchronously to the event. This callback SHOULD return as soon as possible,
// otherwise the client might hang.
//
// Synchronous callbacks are mostly intended for tests and when external
// callers need to ensure proper order of multiple sequential events. In
// general it is preferable to use callbacks registered with the Register call,
// to ensure the client will not deadlock or hang.
func (nmgr *NotificationManager) RegisterSync(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, false)
}

// AnyRegistered returns true if there are any handlers registered for the given
// handler type.
func (nmgr *NotificationManager) AnyRegistered(handler NotificationHandler) bool {
	return nmgr.handlers[handler.typ()].AnyRegistered()
}

func (nmgr *NotificationManager) waitAndEmitUINtfn(c <-chan time.Time, cancel <-chan struct{}) {
	select {
	case <-c:
	case <-cancel:
		return
	}

	nmgr.uiMtx.Lock()
	n := nmgr.uiNextNtfn
	nmgr.uiNextNtfn = UINotification{}
	nmgr.uiMtx.Unlock()

	nmgr.handlers[onUINtfnType].(*handlersFor[OnUINotification]).
		visit(func(h OnUINotification) { h(n) })
}

func (nmgr *NotificationManager) addUINtfn(from string, typ UINotificationType, msg string, ts time.Time) {
	nmgr.uiMtx.Lock()

	n := &nmgr.uiNextNtfn
	cfg := &nmgr.uiConfig

	switch {
	case typ == UINtfnRoomCreated && !cfg.RoomCreated,
		typ == UINtfnGameStarted && !cfg.GameStarted:
		// Ignore
		nmgr.uiMtx.Unlock()
		return

	case typ == UINtfnRoomCreated && n.Count == 0:
		n.Type = typ
		n.Count = 1
		n.From = from
		n.Timestamp = ts.Unix()
		n.Text = cfg.clip(msg)

	case typ == UINtfnGameStarted && cfg.GameStarted && n.Count == 0:
		n.Type = typ
		n.Count = 1
		n.From = from
		n.Timestamp = ts.Unix()
		n.Text = cfg.clip(msg)

	default:
		// Multiple types.
		n.Type = UINtfnMultiple
		n.From = "multiple"
		n.Count += 1
		n.Text = fmt.Sprintf("%d notifications received", n.Count)
	}

	// The first notification starts the timer to emit the actual UI
	// notification. Other notifications will get batched.
	if n.Count == 1 {
		nmgr.uiTimer.Reset(cfg.EmitInterval)
		c, cancel := nmgr.uiTimer.C, cfg.CancelEmissionChannel
		go nmgr.waitAndEmitUINtfn(c, cancel)
	}

	nmgr.uiMtx.Unlock()
}

// Following are the notifyX() calls (one for each type of notification).

func (nmgr *NotificationManager) notifyTest() {
	nmgr.handlers[onTestNtfnType].(*handlersFor[onTestNtfn]).
		visit(func(h onTestNtfn) { h() })
}

func (nmgr *NotificationManager) notifyRoomCreated(inviteLink string, ts time.Time) {
	nmgr.handlers[onRoomCreatedNtfnType].(*handlersFor[OnRoomCreatedNtfn]).
		visit(func(h OnRoomCreatedNtfn) { h(inviteLink, ts) })

	nmgr.addUINtfn(inviteLink, UINtfnRoomCreated, fmt.Sprintf("Room %s created", inviteLink), ts)
}

func (nmgr *NotificationManager) notifyRoomState(room *wire.RoomView, ts time.Time) {
	nmgr.handlers[onRoomStateNtfnType].(*handlersFor[OnRoomStateNtfn]).
		visit(func(h OnRoomStateNtfn) { h(room, ts) })
}

func (nmgr *NotificationManager) notifyGameStarted(roomID string, ts time.Time) {
	nmgr.handlers[onGameStartedNtfnType].(*handlersFor[OnGameStartedNtfn]).
		visit(func(h OnGameStartedNtfn) { h(roomID, ts) })

	nmgr.addUINtfn(roomID, UINtfnGameStarted, fmt.Sprintf("Game started in room %s", roomID), ts)
}

func (nmgr *NotificationManager) notifyGameEnded(roomID, winnerID, reason string, ts time.Time) {
	nmgr.handlers[onGameEndedNtfnType].(*handlersFor[OnGameEndedNtfn]).
		visit(func(h OnGameEndedNtfn) { h(roomID, winnerID, reason, ts) })
}

func (nmgr *NotificationManager) notifyTurnChanged(seat int, ts time.Time) {
	nmgr.handlers[onTurnChangedNtfnType].(*handlersFor[OnTurnChangedNtfn]).
		visit(func(h OnTurnChangedNtfn) { h(seat, ts) })
}

func (nmgr *NotificationManager) notifyTurnResult(valid bool, ts time.Time) {
	nmgr.handlers[onTurnResultNtfnType].(*handlersFor[OnTurnResultNtfn]).
		visit(func(h OnTurnResultNtfn) { h(valid, ts) })
}

func (nmgr *NotificationManager) notifyCardRequestPrompt(specific bool, ts time.Time) {
	nmgr.handlers[onCardRequestPromptNtfnType].(*handlersFor[OnCardRequestPromptNtfn]).
		visit(func(h OnCardRequestPromptNtfn) { h(specific, ts) })
}

func (nmgr *NotificationManager) notifyLastCardPrompt(ts time.Time) {
	nmgr.handlers[onLastCardPromptNtfnType].(*handlersFor[OnLastCardPromptNtfn]).
		visit(func(h OnLastCardPromptNtfn) { h(ts) })
}

func (nmgr *NotificationManager) notifyCurrentRequest(card *karata.Card, ts time.Time) {
	nmgr.handlers[onCurrentRequestNtfnType].(*handlersFor[OnCurrentRequestNtfn]).
		visit(func(h OnCurrentRequestNtfn) { h(card, ts) })
}

func (nmgr *NotificationManager) notifySystemMessage(kind, text string, ts time.Time) {
	nmgr.handlers[onSystemMessageNtfnType].(*handlersFor[OnSystemMessageNtfn]).
		visit(func(h OnSystemMessageNtfn) { h(kind, text, ts) })
}

func NewNotificationManager() *NotificationManager {
	nmgr := &NotificationManager{
		uiConfig: UINotificationsConfig{
			MaxLength:    255,
			EmitInterval: 30 * time.Second,
		},
		uiTimer: time.NewTimer(time.Hour * 24),
		handlers: map[string]handlersRegistry{
			onTestNtfnType:              &handlersFor[onTestNtfn]{},
			onRoomCreatedNtfnType:       &handlersFor[OnRoomCreatedNtfn]{},
			onRoomStateNtfnType:         &handlersFor[OnRoomStateNtfn]{},
			onGameStartedNtfnType:       &handlersFor[OnGameStartedNtfn]{},
			onGameEndedNtfnType:         &handlersFor[OnGameEndedNtfn]{},
			onTurnChangedNtfnType:       &handlersFor[OnTurnChangedNtfn]{},
			onTurnResultNtfnType:        &handlersFor[OnTurnResultNtfn]{},
			onCardRequestPromptNtfnType: &handlersFor[OnCardRequestPromptNtfn]{},
			onLastCardPromptNtfnType:    &handlersFor[OnLastCardPromptNtfn]{},
			onCurrentRequestNtfnType:    &handlersFor[OnCurrentRequestNtfn]{},
			onSystemMessageNtfnType:     &handlersFor[OnSystemMessageNtfn]{},

			onUINtfnType: &handlersFor[OnUINotification]{},
		},
	}
	if !nmgr.uiTimer.Stop() {
		<-nmgr.uiTimer.C
	}

	return nmgr
}
