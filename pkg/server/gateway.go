package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vctt94/karata/pkg/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 65536
	// Outbound queue depth per connection.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients connect from arbitrary origins; identity is established
	// by hello, not by the HTTP layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Connection is one websocket subscriber. Outbound frames are queued
// on Send and drained by the write pump; a subscriber that stops
// draining is closed rather than allowed to stall a turn.
type Connection struct {
	ID   string
	Send chan []byte

	srv  *Server
	ws   *websocket.Conn
	done chan struct{}

	mu       sync.RWMutex
	playerID string
	name     string

	closeOnce sync.Once
}

// PlayerID returns the player bound by hello, or "".
func (c *Connection) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// Name returns the display name bound by hello.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Connection) bind(playerID, name string) {
	c.mu.Lock()
	c.playerID = playerID
	c.name = name
	c.mu.Unlock()
}

// trySend queues a frame without ever blocking the caller. A full
// queue closes the connection: the game cannot wait for a subscriber
// that is not keeping up.
func (c *Connection) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.close()
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

func (c *Connection) readPump() {
	defer func() {
		c.srv.removeConnection(c)
		c.close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.srv.log.Debugf("conn %s read: %v", c.ID, err)
			}
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.srv.sendError(c, "malformed message")
			continue
		}
		c.srv.dispatch(c, &env)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case data := <-c.Send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// HandleWebSocket upgrades an HTTP request into a karata connection
// and starts its pumps. Mount it on the server's /ws route.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	conn := &Connection{
		ID:   uuid.New().String(),
		Send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		srv:  s,
		ws:   ws,
	}
	s.addConnection(conn)
	s.log.Debugf("conn %s opened from %s", conn.ID, r.RemoteAddr)
	go conn.writePump()
	go conn.readPump()
}

// dispatch routes one inbound envelope. Handlers that may block on a
// room's turn mutex run off the read loop so the connection can still
// deliver prompt answers for the turn in flight; prompt answers and
// quick lobby calls stay on it.
func (s *Server) dispatch(c *Connection, env *wire.Envelope) {
	if c.PlayerID() == "" && env.Type != wire.TypeHello {
		s.sendError(c, "say hello first")
		return
	}
	switch env.Type {
	case wire.TypeHello:
		var p wire.HelloPayload
		if s.decode(c, env, &p) {
			s.handleHello(c, p)
		}
	case wire.TypeCreateRoom:
		var p wire.CreateRoomPayload
		if s.decode(c, env, &p) {
			s.handleCreateRoom(c, p)
		}
	case wire.TypeJoinRoom:
		var p wire.JoinRoomPayload
		if s.decode(c, env, &p) {
			s.handleJoinRoom(c, p)
		}
	case wire.TypeLeaveRoom:
		var p wire.LeaveRoomPayload
		if s.decode(c, env, &p) {
			go s.handleLeaveRoom(c, p)
		}
	case wire.TypeSetReady:
		var p wire.SetReadyPayload
		if s.decode(c, env, &p) {
			go s.handleSetReady(c, p)
		}
	case wire.TypeListRooms:
		s.handleListRooms(c)
	case wire.TypeListMatches:
		var p wire.ListMatchesPayload
		if s.decode(c, env, &p) {
			s.handleListMatches(c, p)
		}
	case wire.TypePerformTurn:
		var p wire.PerformTurnPayload
		if s.decode(c, env, &p) {
			go s.handlePerformTurn(c, p)
		}
	case wire.TypeRequestCard:
		var p wire.RequestCardPayload
		if s.decode(c, env, &p) {
			s.handleRequestCard(c, p)
		}
	case wire.TypeSetLastCardStatus:
		var p wire.SetLastCardStatusPayload
		if s.decode(c, env, &p) {
			s.handleSetLastCardStatus(c, p)
		}
	default:
		s.sendError(c, fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func (s *Server) decode(c *Connection, env *wire.Envelope, into any) bool {
	if err := env.Decode(into); err != nil {
		s.log.Debugf("bad %s payload from conn %s: %v", env.Type, c.ID, err)
		s.sendError(c, fmt.Sprintf("bad %s payload", env.Type))
		return false
	}
	return true
}
