package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"
	"github.com/vctt94/bisonbotkit/logging"
	"github.com/vctt94/karata/pkg/karata"
	karatautils "github.com/vctt94/karata/pkg/utils"
	"github.com/vctt94/karata/pkg/wire"
)

// Message types for UI communication. Every frame the server pushes is
// decoded into one of these and forwarded on UpdatesCh.
type (
	// RoomStateMsg is this viewer's refreshed picture of their room.
	RoomStateMsg wire.RoomView

	// RoomCreatedMsg confirms a room this client created.
	RoomCreatedMsg wire.RoomCreatedPayload

	// RoomListMsg carries the public room listing.
	RoomListMsg []wire.RoomInfo

	// MatchListMsg carries recent match results, newest first.
	MatchListMsg []wire.MatchRecord

	// GameStatusMsg announces the game starting or ending.
	GameStatusMsg wire.UpdateGameStatusPayload

	// TurnMsg announces whose seat index holds the turn.
	TurnMsg wire.UpdateTurnPayload

	// TurnResultMsg reports whether this client's submitted turn was
	// accepted.
	TurnResultMsg wire.NotifyTurnProcessedPayload

	// CardRequestPromptMsg asks this client which card they demand
	// after playing an ace.
	CardRequestPromptMsg wire.PromptCardRequestPayload

	// LastCardPromptMsg asks this client whether they are on their
	// last card.
	LastCardPromptMsg struct{}

	// CurrentRequestMsg publishes the outstanding card request. A nil
	// card means the request was cleared.
	CurrentRequestMsg wire.SetCurrentRequestPayload

	// SystemMessageMsg is a human-readable notice from the server.
	SystemMessageMsg wire.SystemMessagePayload

	// EndGameMsg announces the end of the game.
	EndGameMsg wire.EndGamePayload

	// ServerErrorMsg reports a request the server refused.
	ServerErrorMsg wire.ErrorPayload
)

// CardEventMsg is one granular card movement replayed from the server.
// Cards holds identified cards when the event names them, otherwise
// Count holds an anonymous total. PlayerID is set when the movement is
// attributed to another player's hand.
type CardEventMsg struct {
	Type     string
	Cards    []karata.Card
	Count    int
	PlayerID string
}

// replyWaiter is a one-shot tap on the read loop for a request's
// direct reply. The frame still goes through normal processing.
type replyWaiter struct {
	types []string
	ch    chan *wire.Envelope
}

// KarataClient is a karata client over a websocket connection, with
// room tracking and notification handling.
type KarataClient struct {
	sync.RWMutex
	ID      string
	Name    string
	DataDir string

	conn    *websocket.Conn
	writeMu sync.Mutex

	IsReady bool
	roomID  string

	cfg        *AppConfig
	ntfns      *NotificationManager
	log        slog.Logger
	logBackend *logging.LogBackend

	UpdatesCh chan tea.Msg
	ErrorsCh  chan error

	waitersMu sync.Mutex
	waiters   []*replyWaiter

	// For reconnection handling
	ctx          context.Context
	cancelFunc   context.CancelFunc
	reconnecting bool
	reconnectMu  sync.Mutex
}

// NewKarataClient creates a new karata client with notification support
func NewKarataClient(ctx context.Context, cfg *AppConfig) (*KarataClient, error) {
	// Validate that notifications are properly initialized
	if cfg.Notifications == nil {
		// initialize notification manager with NewNotificationManager
		return nil, fmt.Errorf("notification manager cannot be nil - client startup aborted")
	}

	// Create the base client
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create base client: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	kc := &KarataClient{
		ID:         client.ID,
		Name:       client.Name,
		DataDir:    client.DataDir,
		conn:       client.conn,
		cfg:        cfg,
		ntfns:      cfg.Notifications,
		log:        client.log,
		logBackend: client.logBackend,
		UpdatesCh:  make(chan tea.Msg, 100),
		ErrorsCh:   make(chan error, 10),
		ctx:        ctx,
		cancelFunc: cancel,
	}

	// Final validation that client is properly initialized
	if err := kc.validate(); err != nil {
		return nil, fmt.Errorf("client validation failed: %v", err)
	}

	// Bind our identity before anything else; a player who was seated
	// somewhere gets their room state replayed in response.
	if err := kc.hello(); err != nil {
		kc.conn.Close()
		return nil, fmt.Errorf("failed to send hello: %v", err)
	}

	go kc.readLoop(ctx)

	return kc, nil
}

// newClient creates a basic client without notification support (internal use)
func newClient(ctx context.Context, cfg *AppConfig) (*KarataClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg is nil")
	}
	// Ensure datadir exists
	if err := karatautils.EnsureDataDirExists(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %v", err)
	}

	if cfg.PlayerID == "" {
		return nil, fmt.Errorf("player id is required")
	}
	name := cfg.Name
	if name == "" {
		name = cfg.PlayerID
	}

	logCfg := logging.LogConfig{DebugLevel: "info"}
	if cfg.BRConfig != nil {
		logCfg = logging.LogConfig{
			LogFile:        cfg.BRConfig.LogFile,
			DebugLevel:     cfg.BRConfig.Debug,
			MaxLogFiles:    cfg.BRConfig.MaxLogFiles,
			MaxBufferLines: cfg.BRConfig.MaxBufferLines,
		}
		if logCfg.DebugLevel == "" {
			logCfg.DebugLevel = "info"
		}
	}
	logBackend, err := logging.NewLogBackend(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log backend: %v", err)
	}

	client := &KarataClient{
		ID:         cfg.PlayerID,
		Name:       name,
		DataDir:    cfg.DataDir,
		log:        logBackend.Logger("KarataClient"),
		logBackend: logBackend,
		cfg:        cfg,
	}

	client.log.Debugf("Using client ID: %s", client.ID)

	// Connect to the karata server
	conn, err := client.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to karata server: %v", err)
	}
	client.conn = conn

	return client, nil
}

// dial opens the websocket connection to the configured server. A bare
// host:port dials ws://host:port/ws; an address with a scheme is used
// verbatim.
func (kc *KarataClient) dial(ctx context.Context) (*websocket.Conn, error) {
	if kc.cfg == nil {
		return nil, fmt.Errorf("cfg is nil")
	}
	addr := kc.cfg.ServerAddr
	if addr == "" {
		return nil, fmt.Errorf("ServerAddr is not configured")
	}

	wsURL := addr
	if !strings.Contains(addr, "://") {
		u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
		wsURL = u.String()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", wsURL, err)
	}
	return conn, nil
}

// hello binds this connection to the client's player identity.
func (kc *KarataClient) hello() error {
	return kc.send(wire.TypeHello, wire.HelloPayload{PlayerID: kc.ID, Name: kc.Name})
}

// send frames and writes one message. Writes are serialized; the game
// loop and prompt answers share the connection.
func (kc *KarataClient) send(msgType string, payload any) error {
	kc.RLock()
	conn := kc.conn
	kc.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := wire.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %v", msgType, err)
	}

	kc.writeMu.Lock()
	defer kc.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// addWaiter registers a one-shot tap for the first frame matching one
// of the given types.
func (kc *KarataClient) addWaiter(types []string) *replyWaiter {
	w := &replyWaiter{types: types, ch: make(chan *wire.Envelope, 1)}
	kc.waitersMu.Lock()
	kc.waiters = append(kc.waiters, w)
	kc.waitersMu.Unlock()
	return w
}

func (kc *KarataClient) removeWaiter(w *replyWaiter) {
	kc.waitersMu.Lock()
	for i, cur := range kc.waiters {
		if cur == w {
			kc.waiters = append(kc.waiters[:i], kc.waiters[i+1:]...)
			break
		}
	}
	kc.waitersMu.Unlock()
}

// deliverToWaiters offers the frame to the oldest matching waiter, if
// any. The waiter is removed before the send, so it fires exactly once.
func (kc *KarataClient) deliverToWaiters(env *wire.Envelope) {
	kc.waitersMu.Lock()
	for i, w := range kc.waiters {
		for _, t := range w.types {
			if t != env.Type {
				continue
			}
			kc.waiters = append(kc.waiters[:i], kc.waiters[i+1:]...)
			kc.waitersMu.Unlock()
			w.ch <- env
			return
		}
	}
	kc.waitersMu.Unlock()
}

// call sends a request and waits for its direct reply. Error frames
// always count as replies and come back as errors.
func (kc *KarataClient) call(ctx context.Context, msgType string, payload any, replyTypes ...string) (*wire.Envelope, error) {
	w := kc.addWaiter(append(replyTypes, wire.TypeError))
	defer kc.removeWaiter(w)

	if err := kc.send(msgType, payload); err != nil {
		return nil, err
	}

	select {
	case env := <-w.ch:
		if env.Type == wire.TypeError {
			var p wire.ErrorPayload
			if err := env.Decode(&p); err != nil {
				return nil, fmt.Errorf("request refused")
			}
			return nil, fmt.Errorf("%s", p.Message)
		}
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-kc.ctx.Done():
		return nil, fmt.Errorf("client closed")
	}
}

// readLoop decodes server frames and fans them out: first to any
// waiter expecting a direct reply, then to the notification manager
// and the UI updates channel.
func (kc *KarataClient) readLoop(ctx context.Context) {
	kc.RLock()
	conn := kc.conn
	kc.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				kc.log.Info("connection closed")
				return
			}

			// The server keeps our seat while we are away and
			// replays the room state on the next hello.
			if reconnectErr := kc.reconnect(); reconnectErr != nil {
				kc.ErrorsCh <- fmt.Errorf("failed to reconnect: %v", reconnectErr)
			}
			return // This goroutine ends; reconnect started a new one.
		}

		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			kc.log.Errorf("unable to decode server frame: %v; full frame: %s", err, spew.Sdump(raw))
			continue
		}

		kc.deliverToWaiters(&env)
		kc.handleFrame(&env)
	}
}

// decode unmarshals a frame payload, logging a dump of anything the
// server sent that we cannot read.
func (kc *KarataClient) decode(env *wire.Envelope, into any) bool {
	if err := env.Decode(into); err != nil {
		kc.log.Errorf("unable to decode %s payload: %v; full payload: %s",
			env.Type, err, spew.Sdump(env.Payload))
		return false
	}
	return true
}

// handleFrame translates one server frame into notifications and a UI
// message.
func (kc *KarataClient) handleFrame(env *wire.Envelope) {
	ts := time.Now()
	switch env.Type {
	case wire.TypeRoomCreated:
		var p wire.RoomCreatedPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.SetCurrentRoomID(p.InviteLink)
		kc.ntfns.notifyRoomCreated(p.InviteLink, ts)
		kc.pushUpdate(RoomCreatedMsg(p))

	case wire.TypeUpdateRoomState:
		var p wire.RoomStatePayload
		if !kc.decode(env, &p) {
			return
		}
		kc.Lock()
		kc.roomID = p.Room.InviteLink
		for _, pl := range p.Room.Players {
			if pl.ID == kc.ID {
				kc.IsReady = pl.IsReady
			}
		}
		kc.Unlock()
		kc.ntfns.notifyRoomState(&p.Room, ts)
		kc.pushUpdate(RoomStateMsg(p.Room))

	case wire.TypeRoomList:
		var p wire.RoomListPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.pushUpdate(RoomListMsg(p.Rooms))

	case wire.TypeMatchList:
		var p wire.MatchListPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.pushUpdate(MatchListMsg(p.Matches))

	case wire.TypeUpdateGameStatus:
		var p wire.UpdateGameStatusPayload
		if !kc.decode(env, &p) {
			return
		}
		if p.Started {
			kc.ntfns.notifyGameStarted(kc.GetCurrentRoomID(), ts)
		}
		kc.pushUpdate(GameStatusMsg(p))

	case wire.TypeUpdateTurn:
		var p wire.UpdateTurnPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.ntfns.notifyTurnChanged(p.Turn, ts)
		kc.pushUpdate(TurnMsg(p))

	case wire.TypeNotifyTurnProcessed:
		var p wire.NotifyTurnProcessedPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.ntfns.notifyTurnResult(p.Valid, ts)
		kc.pushUpdate(TurnResultMsg(p))

	case wire.TypePromptCardRequest:
		var p wire.PromptCardRequestPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.ntfns.notifyCardRequestPrompt(p.Specific, ts)
		kc.pushUpdate(CardRequestPromptMsg(p))

	case wire.TypePromptLastCardRequest:
		kc.ntfns.notifyLastCardPrompt(ts)
		kc.pushUpdate(LastCardPromptMsg{})

	case wire.TypeSetCurrentRequest:
		var p wire.SetCurrentRequestPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.ntfns.notifyCurrentRequest(p.Card, ts)
		kc.pushUpdate(CurrentRequestMsg(p))

	case wire.TypeReceiveSystemMessage:
		var p wire.SystemMessagePayload
		if !kc.decode(env, &p) {
			return
		}
		kc.ntfns.notifySystemMessage(p.Kind, p.Text, ts)
		kc.pushUpdate(SystemMessageMsg(p))

	case wire.TypeEndGame:
		var p wire.EndGamePayload
		if !kc.decode(env, &p) {
			return
		}
		kc.ntfns.notifyGameEnded(kc.GetCurrentRoomID(), p.WinnerID, p.Reason, ts)
		kc.pushUpdate(EndGameMsg(p))

	case wire.TypeError:
		var p wire.ErrorPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.pushUpdate(ServerErrorMsg(p))

	case wire.TypeAddCardRangeToPile, wire.TypeAddCardRangeToHand,
		wire.TypeRemoveCardRangeFromHand:
		var p wire.CardRangePayload
		if !kc.decode(env, &p) {
			return
		}
		kc.pushUpdate(CardEventMsg{Type: env.Type, Cards: p.Cards})

	case wire.TypeRemoveCardsFromDeck, wire.TypeAddCardsToDeck:
		var p wire.CardCountPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.pushUpdate(CardEventMsg{Type: env.Type, Count: p.Count})

	case wire.TypeAddCardsToPlayerHand, wire.TypeRemoveCardsFromPlayerHand:
		var p wire.PlayerCardCountPayload
		if !kc.decode(env, &p) {
			return
		}
		kc.pushUpdate(CardEventMsg{Type: env.Type, Count: p.Count, PlayerID: p.PlayerID})

	case wire.TypeReclaimPile:
		kc.pushUpdate(CardEventMsg{Type: env.Type})

	default:
		kc.log.Debugf("received unknown frame type %q", env.Type)
	}
}

// pushUpdate forwards a message to the UI without ever blocking the
// read loop.
func (kc *KarataClient) pushUpdate(msg tea.Msg) {
	select {
	case kc.UpdatesCh <- msg:
	case <-kc.ctx.Done():
	default:
		// Channel is full, drop the update
		kc.log.Warn("Updates channel full, dropping update")
	}
}

// reconnect attempts to reconnect to the server and rebind the player
// identity. The server restores our seat on hello.
func (kc *KarataClient) reconnect() error {
	kc.reconnectMu.Lock()
	defer kc.reconnectMu.Unlock()

	if kc.reconnecting {
		return nil // Already reconnecting
	}

	kc.reconnecting = true
	defer func() { kc.reconnecting = false }()

	kc.log.Info("attempting to reconnect...")

	// Close existing connection
	kc.RLock()
	old := kc.conn
	kc.RUnlock()
	if old != nil {
		old.Close()
	}

	conn, err := kc.dial(kc.ctx)
	if err != nil {
		return fmt.Errorf("failed to reconnect client: %v", err)
	}

	kc.Lock()
	kc.conn = conn
	kc.Unlock()

	if err := kc.hello(); err != nil {
		return fmt.Errorf("failed to rebind identity: %v", err)
	}

	go kc.readLoop(kc.ctx)

	kc.log.Info("successfully reconnected")
	return nil
}

// GetCurrentRoomID returns the invite link of the room this client is
// seated in, or empty.
func (kc *KarataClient) GetCurrentRoomID() string {
	kc.RLock()
	defer kc.RUnlock()
	return kc.roomID
}

// SetCurrentRoomID sets the current room without talking to the server.
// This is useful for stateless CLI invocations that target a room by
// its invite link.
func (kc *KarataClient) SetCurrentRoomID(roomID string) {
	kc.Lock()
	kc.roomID = roomID
	kc.Unlock()
}

// LogBackend exposes the client's log backend so applications can hang
// their own loggers off it.
func (kc *KarataClient) LogBackend() *logging.LogBackend {
	return kc.logBackend
}

// Close closes the karata client and its connection
func (kc *KarataClient) Close() error {
	if kc.cancelFunc != nil {
		kc.cancelFunc()
	}

	kc.RLock()
	conn := kc.conn
	kc.RUnlock()
	if conn != nil {
		// Best effort close handshake before tearing down.
		kc.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		kc.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// validate checks if the KarataClient is properly initialized and ready to use
func (kc *KarataClient) validate() error {
	if kc == nil {
		return fmt.Errorf("karata client is nil")
	}
	if kc.log == nil {
		return fmt.Errorf("logger is not initialized")
	}
	if kc.logBackend == nil {
		return fmt.Errorf("log backend is not initialized")
	}
	if kc.ntfns == nil {
		return fmt.Errorf("notification manager is not initialized")
	}
	if kc.conn == nil {
		return fmt.Errorf("connection is not initialized")
	}
	if kc.ID == "" {
		return fmt.Errorf("client ID is not set")
	}
	if kc.UpdatesCh == nil {
		return fmt.Errorf("updates channel is not initialized")
	}
	if kc.ErrorsCh == nil {
		return fmt.Errorf("errors channel is not initialized")
	}
	return nil
}
