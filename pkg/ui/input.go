package ui

import (
	"errors"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/utils"
)

// InputHandler routes key presses to the handler for the active screen.
type InputHandler struct {
	ui *KarataUI
}

func (h *InputHandler) Handle(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	if msg.String() == "ctrl+c" {
		return ui, tea.Quit
	}
	// Any other key acknowledges a displayed error.
	ui.err = nil

	switch ui.state {
	case stateMainMenu:
		return h.handleMainMenu(msg)
	case stateRoomList:
		return h.handleRoomList(msg)
	case stateMatchList:
		return h.handleMatchList(msg)
	case stateCreateRoom:
		return h.handleCreateRoom(msg)
	case stateJoinRoom:
		return h.handleJoinRoom(msg)
	case stateGameLobby:
		return h.handleGameLobby(msg)
	case stateActiveGame:
		return h.handleActiveGame(msg)
	case statePlayInput:
		return h.handlePlayInput(msg)
	case stateSuitRequest:
		return h.handleSuitRequest(msg)
	case stateCardRequest:
		return h.handleCardRequest(msg)
	case stateLastCardPrompt:
		return h.handleLastCardPrompt(msg)
	}
	return ui, nil
}

func (h *InputHandler) handleMainMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "q", "esc":
		return ui, tea.Quit
	case "up", "k":
		if ui.selectedItem > 0 {
			ui.selectedItem--
		}
	case "down", "j":
		if ui.selectedItem < len(ui.menuOptions)-1 {
			ui.selectedItem++
		}
	case "enter", " ":
		return h.executeMainOption(ui.menuOptions[ui.selectedItem])
	}
	return ui, nil
}

func (h *InputHandler) executeMainOption(opt menuOption) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch opt {
	case optionReturnToRoom:
		if ui.room != nil && ui.room.GameStarted {
			ui.switchTo(stateActiveGame)
		} else {
			ui.switchTo(stateGameLobby)
		}
	case optionListRooms:
		ui.switchTo(stateRoomList)
		ui.selectedRoom = 0
		return ui, ui.dispatcher.listRoomsCmd()
	case optionCreateRoom:
		ui.formField = 0
		ui.switchTo(stateCreateRoom)
	case optionJoinRoom:
		ui.inviteInput = ""
		ui.switchTo(stateJoinRoom)
	case optionMatchHistory:
		ui.switchTo(stateMatchList)
		return ui, ui.dispatcher.listMatchesCmd(20)
	case optionQuit:
		return ui, tea.Quit
	}
	return ui, nil
}

func (h *InputHandler) handleRoomList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "q", "esc":
		ui.switchTo(stateMainMenu)
	case "up", "k":
		if ui.selectedRoom > 0 {
			ui.selectedRoom--
		}
	case "down", "j":
		if ui.selectedRoom < len(ui.rooms)-1 {
			ui.selectedRoom++
		}
	case "r":
		return ui, ui.dispatcher.listRoomsCmd()
	case "enter", " ":
		if len(ui.rooms) > 0 {
			ui.message = "Joining room..."
			return ui, ui.dispatcher.joinRoomCmd(ui.rooms[ui.selectedRoom].InviteLink)
		}
	}
	return ui, nil
}

func (h *InputHandler) handleMatchList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "q", "esc":
		ui.switchTo(stateMainMenu)
	case "r":
		return ui, ui.dispatcher.listMatchesCmd(20)
	}
	return ui, nil
}

func (h *InputHandler) handleCreateRoom(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	field := &ui.minPlayersInput
	if ui.formField == 1 {
		field = &ui.maxPlayersInput
	}
	switch msg.String() {
	case "esc":
		ui.switchTo(stateMainMenu)
	case "tab", "down", "up":
		ui.formField = 1 - ui.formField
	case "enter":
		minPlayers, err1 := strconv.Atoi(ui.minPlayersInput)
		maxPlayers, err2 := strconv.Atoi(ui.maxPlayersInput)
		if err1 != nil || err2 != nil {
			ui.err = errors.New("player counts must be numbers")
			return ui, nil
		}
		ui.message = "Creating room..."
		return ui, ui.dispatcher.createRoomCmd(minPlayers, maxPlayers)
	case "backspace":
		if len(*field) > 0 {
			*field = (*field)[:len(*field)-1]
		}
	default:
		s := msg.String()
		if len(s) == 1 && s[0] >= '0' && s[0] <= '9' && len(*field) < 2 {
			*field += s
		}
	}
	return ui, nil
}

func (h *InputHandler) handleJoinRoom(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "esc":
		ui.switchTo(stateMainMenu)
	case "enter":
		link := strings.TrimSpace(ui.inviteInput)
		if link == "" {
			ui.err = errors.New("enter an invite link")
			return ui, nil
		}
		ui.message = "Joining room..."
		return ui, ui.dispatcher.joinRoomCmd(link)
	case "backspace":
		if len(ui.inviteInput) > 0 {
			ui.inviteInput = ui.inviteInput[:len(ui.inviteInput)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 {
			ui.inviteInput += s
		}
	}
	return ui, nil
}

func (h *InputHandler) handleGameLobby(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "q", "esc":
		ui.switchTo(stateMainMenu)
	case "up", "k":
		if ui.selectedItem > 0 {
			ui.selectedItem--
		}
	case "down", "j":
		if ui.selectedItem < len(ui.menuOptions)-1 {
			ui.selectedItem++
		}
	case "enter", " ":
		switch ui.menuOptions[ui.selectedItem] {
		case optionSetReady:
			return ui, ui.dispatcher.setReadyCmd()
		case optionSetUnready:
			return ui, ui.dispatcher.setUnreadyCmd()
		case optionLeaveRoom:
			return ui, ui.dispatcher.leaveRoomCmd()
		}
	}
	return ui, nil
}

func (h *InputHandler) handleActiveGame(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "q", "esc":
		ui.switchTo(stateMainMenu)
	case "up", "k":
		if ui.selectedItem > 0 {
			ui.selectedItem--
		}
	case "down", "j":
		if ui.selectedItem < len(ui.menuOptions)-1 {
			ui.selectedItem++
		}
	case "p":
		ui.playInput = ""
		ui.switchTo(statePlayInput)
	case "d":
		return ui, ui.dispatcher.drawCardCmd()
	case "enter", " ":
		switch ui.menuOptions[ui.selectedItem] {
		case optionPlayCards:
			ui.playInput = ""
			ui.switchTo(statePlayInput)
		case optionDrawCard:
			return ui, ui.dispatcher.drawCardCmd()
		case optionLeaveRoom:
			return ui, ui.dispatcher.leaveRoomCmd()
		}
	}
	return ui, nil
}

func (h *InputHandler) handlePlayInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "esc":
		ui.switchTo(stateActiveGame)
	case "enter":
		cards, err := utils.ParseCards(ui.playInput)
		if err != nil {
			ui.err = err
			return ui, nil
		}
		if len(cards) == 0 {
			ui.err = errors.New("enter at least one card")
			return ui, nil
		}
		ui.switchTo(stateActiveGame)
		return ui, ui.dispatcher.playCardsCmd(cards)
	case "backspace":
		if len(ui.playInput) > 0 {
			ui.playInput = ui.playInput[:len(ui.playInput)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 {
			ui.playInput += s
		}
	}
	return ui, nil
}

func (h *InputHandler) handleSuitRequest(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "esc":
		// Abandon the prompt; the server falls back after its timeout.
		ui.switchTo(stateActiveGame)
	case "up", "k":
		if ui.selectedSuit > 0 {
			ui.selectedSuit--
		}
	case "down", "j":
		if ui.selectedSuit < len(suitChoices)-1 {
			ui.selectedSuit++
		}
	case "enter", " ":
		suit := suitChoices[ui.selectedSuit].suit
		ui.switchTo(stateActiveGame)
		return ui, ui.dispatcher.requestCardCmd(karata.NewCard(suit, karata.None))
	}
	return ui, nil
}

func (h *InputHandler) handleCardRequest(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "esc":
		ui.switchTo(stateActiveGame)
	case "enter":
		card, err := utils.ParseCard(strings.TrimSpace(ui.requestInput))
		if err != nil {
			ui.err = err
			return ui, nil
		}
		ui.switchTo(stateActiveGame)
		return ui, ui.dispatcher.requestCardCmd(card)
	case "backspace":
		if len(ui.requestInput) > 0 {
			ui.requestInput = ui.requestInput[:len(ui.requestInput)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 {
			ui.requestInput += s
		}
	}
	return ui, nil
}

func (h *InputHandler) handleLastCardPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ui := h.ui
	switch msg.String() {
	case "esc":
		ui.switchTo(stateActiveGame)
	case "y":
		ui.switchTo(stateActiveGame)
		return ui, ui.dispatcher.lastCardCmd(true)
	case "n":
		ui.switchTo(stateActiveGame)
		return ui, ui.dispatcher.lastCardCmd(false)
	case "up", "k", "down", "j":
		ui.selectedItem = 1 - ui.selectedItem
	case "enter", " ":
		declare := ui.selectedItem == 0
		ui.switchTo(stateActiveGame)
		return ui, ui.dispatcher.lastCardCmd(declare)
	}
	return ui, nil
}
