package server

import (
	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/wire"
)

// Delivery helpers. Per-connection send queues preserve order, so
// events queued here arrive at each subscriber in the order the game
// produced them. A player without a live connection simply misses the
// event; the room state fanout catches them up when they return.

// sendToConn queues one event on a single connection.
func (s *Server) sendToConn(c *Connection, msgType string, payload any) bool {
	if c == nil {
		return false
	}
	data, err := wire.Marshal(msgType, payload)
	if err != nil {
		s.log.Errorf("marshal %s: %v", msgType, err)
		return false
	}
	return c.trySend(data)
}

// sendToPlayer queues one event on the player's current connection,
// if any.
func (s *Server) sendToPlayer(playerID, msgType string, payload any) bool {
	return s.sendToConn(s.connForPlayer(playerID), msgType, payload)
}

// broadcastToRoom queues one event for every seated player.
func (s *Server) broadcastToRoom(room *karata.Room, msgType string, payload any) {
	for _, u := range room.GetUsers() {
		s.sendToPlayer(u.ID, msgType, payload)
	}
}

// sendToOthers queues one event for every seated player except one.
func (s *Server) sendToOthers(room *karata.Room, exceptID, msgType string, payload any) {
	for _, u := range room.GetUsers() {
		if u.ID == exceptID {
			continue
		}
		s.sendToPlayer(u.ID, msgType, payload)
	}
}

func (s *Server) sendError(c *Connection, message string) {
	s.sendToConn(c, wire.TypeError, wire.ErrorPayload{Message: message})
}

func (s *Server) sendSystemMessage(c *Connection, kind, text string) {
	s.sendToConn(c, wire.TypeReceiveSystemMessage, wire.SystemMessagePayload{Text: text, Kind: kind})
}

func (s *Server) broadcastSystemMessage(room *karata.Room, kind, text string) {
	s.broadcastToRoom(room, wire.TypeReceiveSystemMessage, wire.SystemMessagePayload{Text: text, Kind: kind})
}

func (s *Server) systemMessageToOthers(room *karata.Room, exceptID, kind, text string) {
	s.sendToOthers(room, exceptID, wire.TypeReceiveSystemMessage, wire.SystemMessagePayload{Text: text, Kind: kind})
}
