package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/karata/pkg/client"
	"github.com/vctt94/karata/pkg/karata"
)

// Messages produced by dispatcher commands. Everything else the UI
// consumes comes straight off the client's update stream.
type errorMsg struct{ err error }

// clientErrorMsg carries a background failure from the client itself,
// e.g. a dropped connection that could not be re-established.
type clientErrorMsg struct{ err error }

type leftRoomMsg struct{}

// CommandDispatcher turns UI intents into client calls wrapped as
// bubbletea commands.
type CommandDispatcher struct {
	ctx context.Context
	kc  *client.KarataClient
}

func NewCommandDispatcher(ctx context.Context, kc *client.KarataClient) *CommandDispatcher {
	return &CommandDispatcher{
		ctx: ctx,
		kc:  kc,
	}
}

// waitForUpdate blocks until the client pushes its next update and
// hands it to the UI as a message. The UI re-arms it after every
// delivery, so exactly one listener is pending at a time.
func (d *CommandDispatcher) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg, ok := <-d.kc.UpdatesCh:
			if !ok {
				return nil
			}
			return msg
		case err, ok := <-d.kc.ErrorsCh:
			if !ok {
				return nil
			}
			return clientErrorMsg{err}
		case <-d.ctx.Done():
			return nil
		}
	}
}

// Command methods on the dispatcher. Calls that have a direct reply
// still let the update stream drive the UI; the command only surfaces
// failures.

func (d *CommandDispatcher) listRoomsCmd() tea.Cmd {
	return func() tea.Msg {
		if _, err := d.kc.ListRooms(d.ctx); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) listMatchesCmd(limit int) tea.Cmd {
	return func() tea.Msg {
		if _, err := d.kc.ListMatches(d.ctx, limit); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) createRoomCmd(minPlayers, maxPlayers int) tea.Cmd {
	return func() tea.Msg {
		if _, err := d.kc.CreateRoom(d.ctx, minPlayers, maxPlayers); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) joinRoomCmd(inviteLink string) tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.JoinRoom(d.ctx, inviteLink); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) leaveRoomCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.LeaveRoom(); err != nil {
			return errorMsg{err}
		}
		return leftRoomMsg{}
	}
}

func (d *CommandDispatcher) setReadyCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.SetReady(); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) setUnreadyCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.SetUnready(); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) playCardsCmd(cards []karata.Card) tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.PerformTurn(cards); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) drawCardCmd() tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.DrawCard(); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) requestCardCmd(card karata.Card) tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.RequestCard(card); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

func (d *CommandDispatcher) lastCardCmd(isLastCard bool) tea.Cmd {
	return func() tea.Msg {
		if err := d.kc.SetLastCard(isLastCard); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}
