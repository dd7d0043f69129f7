package client

import (
	"context"
	"fmt"

	"github.com/vctt94/karata/pkg/wire"
)

// CreateRoom opens a new room with this client as host and returns its
// invite link. Player bounds outside 2..4 are clamped by the server.
func (kc *KarataClient) CreateRoom(ctx context.Context, minPlayers, maxPlayers int) (string, error) {
	env, err := kc.call(ctx, wire.TypeCreateRoom, wire.CreateRoomPayload{
		MinPlayers: minPlayers,
		MaxPlayers: maxPlayers,
	}, wire.TypeRoomCreated)
	if err != nil {
		return "", err
	}

	var p wire.RoomCreatedPayload
	if err := env.Decode(&p); err != nil {
		return "", fmt.Errorf("bad roomCreated reply: %v", err)
	}

	kc.Lock()
	kc.roomID = p.InviteLink
	kc.Unlock()

	return p.InviteLink, nil
}

// JoinRoom seats this client in an existing room. The first room state
// refresh confirms the seat.
func (kc *KarataClient) JoinRoom(ctx context.Context, inviteLink string) error {
	_, err := kc.call(ctx, wire.TypeJoinRoom, wire.JoinRoomPayload{
		InviteLink: inviteLink,
	}, wire.TypeUpdateRoomState)
	if err != nil {
		return err
	}

	kc.Lock()
	kc.roomID = inviteLink
	kc.Unlock()

	return nil
}

// LeaveRoom vacates this client's seat and clears the room ID. Leaving
// a running game ends it for everyone; the server confirms with a
// notice.
func (kc *KarataClient) LeaveRoom() error {
	kc.RLock()
	roomID := kc.roomID
	kc.RUnlock()

	if roomID == "" {
		return fmt.Errorf("not currently in a room")
	}

	if err := kc.send(wire.TypeLeaveRoom, wire.LeaveRoomPayload{InviteLink: roomID}); err != nil {
		return err
	}

	kc.Lock()
	kc.roomID = ""
	kc.IsReady = false
	kc.Unlock()

	return nil
}

// SetReady marks this client ready to play. The game starts once
// everyone seated is ready and the minimum count is met.
func (kc *KarataClient) SetReady() error {
	return kc.setReady(true)
}

// SetUnready withdraws this client's ready flag.
func (kc *KarataClient) SetUnready() error {
	return kc.setReady(false)
}

func (kc *KarataClient) setReady(ready bool) error {
	kc.RLock()
	roomID := kc.roomID
	kc.RUnlock()

	if roomID == "" {
		return fmt.Errorf("not currently in a room")
	}

	return kc.send(wire.TypeSetReady, wire.SetReadyPayload{
		InviteLink: roomID,
		Ready:      ready,
	})
}

// ListRooms returns the public room listing, oldest room first.
func (kc *KarataClient) ListRooms(ctx context.Context) ([]wire.RoomInfo, error) {
	env, err := kc.call(ctx, wire.TypeListRooms, nil, wire.TypeRoomList)
	if err != nil {
		return nil, err
	}

	var p wire.RoomListPayload
	if err := env.Decode(&p); err != nil {
		return nil, fmt.Errorf("bad roomList reply: %v", err)
	}
	return p.Rooms, nil
}

// ListMatches returns recent finished games, newest first. A zero
// limit asks for the server default.
func (kc *KarataClient) ListMatches(ctx context.Context, limit int) ([]wire.MatchRecord, error) {
	env, err := kc.call(ctx, wire.TypeListMatches, wire.ListMatchesPayload{Limit: limit}, wire.TypeMatchList)
	if err != nil {
		return nil, err
	}

	var p wire.MatchListPayload
	if err := env.Decode(&p); err != nil {
		return nil, fmt.Errorf("bad matchList reply: %v", err)
	}
	return p.Matches, nil
}
