package server

import (
	"fmt"

	"github.com/decred/slog"
	"github.com/vctt94/karata/pkg/wire"
)

// The three standing event handlers. They run on the event processor's
// workers, off the turn pipeline, and none of them is allowed to touch
// game state: they read the snapshot the event carried or re-read the
// room through its own locks.

// NotificationHandler turns lobby events into chat-style notices for
// the room.
type NotificationHandler struct {
	srv *Server
	log slog.Logger
}

func (h *NotificationHandler) Name() string { return "notifications" }

func (h *NotificationHandler) HandleEvent(ev *GameEvent) error {
	room := h.srv.getRoom(ev.RoomID)
	if room == nil {
		return nil
	}
	switch p := ev.Payload.(type) {
	case *PlayerJoinedPayload:
		h.srv.systemMessageToOthers(room, p.PlayerID, wire.MessageInfo,
			fmt.Sprintf("%s joined the room", p.Name))
	case *PlayerLeftPayload:
		h.srv.broadcastSystemMessage(room, wire.MessageInfo,
			fmt.Sprintf("%s left the room", p.Name))
		if p.NewHostID != "" {
			if host := room.GetUser(p.NewHostID); host != nil {
				h.srv.broadcastSystemMessage(room, wire.MessageInfo,
					fmt.Sprintf("%s is now the host", host.Name))
			}
		}
	case *PlayerReadyPayload:
		text := fmt.Sprintf("%s is ready", p.Name)
		if !p.Ready {
			text = fmt.Sprintf("%s is not ready", p.Name)
		}
		h.srv.broadcastSystemMessage(room, wire.MessageInfo, text)
	case *GameStartedPayload:
		h.srv.broadcastSystemMessage(room, wire.MessageInfo,
			fmt.Sprintf("the game has started with %d players", p.Players))
	}
	return nil
}

// RoomStateHandler fans the room snapshot out to every seated player,
// each from their own side of the table. It is the catch-up path: a
// client that missed a targeted event converges on the next refresh.
type RoomStateHandler struct {
	srv *Server
	log slog.Logger
}

func (h *RoomStateHandler) Name() string { return "roomstate" }

func (h *RoomStateHandler) HandleEvent(ev *GameEvent) error {
	snap := ev.RoomSnapshot
	if snap == nil {
		return nil
	}
	for _, u := range snap.Users {
		view := buildRoomView(snap, u.ID)
		h.srv.sendToPlayer(u.ID, wire.TypeUpdateRoomState, wire.RoomStatePayload{Room: view})
	}
	return nil
}

// PersistenceHandler writes the room through to the database after
// every event, off the hot path.
type PersistenceHandler struct {
	srv *Server
	log slog.Logger
}

func (h *PersistenceHandler) Name() string { return "persistence" }

func (h *PersistenceHandler) HandleEvent(ev *GameEvent) error {
	if h.srv.getRoom(ev.RoomID) == nil {
		// Room already removed; its row went with it.
		return nil
	}
	return h.srv.saveRoomState(ev.RoomID, string(ev.Type))
}
