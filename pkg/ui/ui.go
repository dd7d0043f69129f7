package ui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/karata/pkg/client"
	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/utils"
	"github.com/vctt94/karata/pkg/wire"
)

// screenState identifies which screen the UI is showing.
type screenState int

const (
	stateMainMenu screenState = iota
	stateRoomList
	stateMatchList
	stateCreateRoom
	stateJoinRoom
	stateGameLobby
	stateActiveGame
	statePlayInput
	stateSuitRequest
	stateCardRequest
	stateLastCardPrompt
)

type menuOption string

const (
	optionListRooms    menuOption = "List Rooms"
	optionCreateRoom   menuOption = "Create Room"
	optionJoinRoom     menuOption = "Join Room"
	optionMatchHistory menuOption = "Match History"
	optionReturnToRoom menuOption = "Return to Room"
	optionQuit         menuOption = "Quit"

	optionSetReady   menuOption = "Set Ready"
	optionSetUnready menuOption = "Set Unready"
	optionLeaveRoom  menuOption = "Leave Room"

	optionPlayCards menuOption = "Play Cards"
	optionDrawCard  menuOption = "Draw Card"
)

// activityLimit bounds the in-game activity log.
const activityLimit = 8

// suitChoices is the fixed option list for the suit demand prompt.
var suitChoices = []struct {
	label string
	suit  karata.Suit
}{
	{"♠ Spades", karata.Spades},
	{"♥ Hearts", karata.Hearts},
	{"♦ Diamonds", karata.Diamonds},
	{"♣ Clubs", karata.Clubs},
}

// KarataUI is the top-level bubbletea model. It owns all screen state
// and delegates key handling to InputHandler and drawing to Renderer.
type KarataUI struct {
	ctx      context.Context
	kc       *client.KarataClient
	clientID string

	dispatcher *CommandDispatcher
	input      *InputHandler
	renderer   *Renderer

	state        screenState
	menuOptions  []menuOption
	selectedItem int

	width  int
	height int

	rooms        []wire.RoomInfo
	selectedRoom int
	matches      []wire.MatchRecord

	// room is the latest view of the joined room, nil outside one.
	room *wire.RoomView

	// Create room form.
	minPlayersInput string
	maxPlayersInput string
	formField       int

	// Join room form.
	inviteInput string

	// Play form: cards typed in shorthand, e.g. "7h 8h bj".
	playInput string

	// Card request prompt.
	requestInput    string
	requestSpecific bool
	selectedSuit    int

	activity []string

	message string
	err     error
}

// NewKarataUI builds the UI around an established client connection.
func NewKarataUI(ctx context.Context, kc *client.KarataClient) *KarataUI {
	ui := &KarataUI{
		ctx:             ctx,
		kc:              kc,
		clientID:        kc.ID,
		state:           stateMainMenu,
		minPlayersInput: "2",
		maxPlayersInput: "4",
	}
	ui.menuOptions = ui.mainMenuOptions()
	ui.dispatcher = NewCommandDispatcher(ctx, kc)
	ui.input = &InputHandler{ui: ui}
	ui.renderer = &Renderer{ui: ui}
	return ui
}

// Run drives the UI until the user quits or ctx is canceled.
func Run(ctx context.Context, kc *client.KarataClient) error {
	p := tea.NewProgram(NewKarataUI(ctx, kc), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (ui *KarataUI) Init() tea.Cmd {
	return ui.dispatcher.waitForUpdate()
}

func (ui *KarataUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return ui.input.Handle(msg)
	case tea.WindowSizeMsg:
		ui.width = msg.Width
		ui.height = msg.Height
		return ui, nil
	case errorMsg:
		ui.err = msg.err
		return ui, nil
	case leftRoomMsg:
		ui.room = nil
		ui.activity = nil
		ui.message = "Left the room"
		ui.switchTo(stateMainMenu)
		return ui, nil
	default:
		return ui.handleClientUpdate(msg)
	}
}

func (ui *KarataUI) View() string {
	return ui.renderer.Render()
}

// handleClientUpdate processes one message from the client's update
// stream and re-arms the listener.
func (ui *KarataUI) handleClientUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case clientErrorMsg:
		ui.err = msg.err

	case client.RoomStateMsg:
		rv := wire.RoomView(msg)
		ui.room = &rv
		ui.syncRoomScreen()

	case client.RoomCreatedMsg:
		ui.message = fmt.Sprintf("Room created. Invite link: %s", msg.InviteLink)
		ui.switchTo(stateGameLobby)

	case client.RoomListMsg:
		ui.rooms = msg
		if ui.selectedRoom >= len(ui.rooms) {
			ui.selectedRoom = 0
		}

	case client.MatchListMsg:
		ui.matches = msg

	case client.GameStatusMsg:
		if msg.Started {
			ui.activity = nil
			ui.message = "Game started!"
			ui.switchTo(stateActiveGame)
		}

	case client.TurnMsg:
		if ui.room != nil {
			if name := ui.seatName(msg.Turn); name != "" {
				ui.logActivity(fmt.Sprintf("turn: %s", name))
			}
		}

	case client.TurnResultMsg:
		if msg.Valid {
			ui.message = "Turn accepted"
		} else {
			ui.message = "Turn rejected"
		}

	case client.CardRequestPromptMsg:
		ui.requestSpecific = msg.Specific
		ui.requestInput = ""
		ui.selectedSuit = 0
		if msg.Specific {
			ui.message = "Ace pair played: demand any card"
			ui.switchTo(stateCardRequest)
		} else {
			ui.message = "Ace played: demand a suit"
			ui.switchTo(stateSuitRequest)
		}

	case client.LastCardPromptMsg:
		ui.message = "One card left!"
		ui.switchTo(stateLastCardPrompt)

	case client.CurrentRequestMsg:
		if msg.Card != nil {
			ui.logActivity(fmt.Sprintf("demand set: %s", msg.Card.String()))
		} else {
			ui.logActivity("demand satisfied")
		}

	case client.SystemMessageMsg:
		switch msg.Kind {
		case wire.MessageError:
			ui.err = errors.New(msg.Text)
		case wire.MessageWarning:
			ui.message = msg.Text
			ui.logActivity(msg.Text)
		default:
			ui.logActivity(msg.Text)
		}

	case client.EndGameMsg:
		switch {
		case msg.WinnerID == ui.clientID:
			ui.message = "You won the game!"
		case msg.WinnerID != "":
			ui.message = fmt.Sprintf("%s won the game", ui.playerName(msg.WinnerID))
		default:
			ui.message = fmt.Sprintf("Game over: %s", msg.Reason)
		}
		ui.logActivity(ui.message)
		ui.switchTo(stateGameLobby)

	case client.CardEventMsg:
		ui.logCardEvent(msg)

	case client.ServerErrorMsg:
		ui.err = errors.New(msg.Message)
	}
	return ui, ui.dispatcher.waitForUpdate()
}

// syncRoomScreen moves between lobby and game screens to follow the
// room's phase, without yanking the user out of menus or forms.
func (ui *KarataUI) syncRoomScreen() {
	if ui.room == nil {
		return
	}
	switch ui.state {
	case stateGameLobby:
		if ui.room.GameStarted {
			ui.switchTo(stateActiveGame)
		} else {
			// Refresh the ready toggle.
			ui.menuOptions = ui.lobbyMenuOptions()
			if ui.selectedItem >= len(ui.menuOptions) {
				ui.selectedItem = 0
			}
		}
	case stateActiveGame:
		if !ui.room.GameStarted {
			ui.switchTo(stateGameLobby)
		}
	case stateMainMenu, stateRoomList, stateCreateRoom, stateJoinRoom:
		if ui.room.GameStarted {
			ui.switchTo(stateActiveGame)
		} else {
			ui.switchTo(stateGameLobby)
		}
	}
}

// switchTo changes screens and resets the cursor and menu for the
// target screen.
func (ui *KarataUI) switchTo(state screenState) {
	ui.state = state
	ui.selectedItem = 0
	switch state {
	case stateMainMenu:
		ui.menuOptions = ui.mainMenuOptions()
	case stateGameLobby:
		ui.menuOptions = ui.lobbyMenuOptions()
	case stateActiveGame:
		ui.menuOptions = []menuOption{optionPlayCards, optionDrawCard, optionLeaveRoom}
	}
}

func (ui *KarataUI) mainMenuOptions() []menuOption {
	opts := []menuOption{optionListRooms, optionCreateRoom, optionJoinRoom, optionMatchHistory, optionQuit}
	if ui.kc.GetCurrentRoomID() != "" {
		opts = append([]menuOption{optionReturnToRoom}, opts...)
	}
	return opts
}

func (ui *KarataUI) lobbyMenuOptions() []menuOption {
	ready := optionSetReady
	if pv := ui.myView(); pv != nil && pv.IsReady {
		ready = optionSetUnready
	}
	return []menuOption{ready, optionLeaveRoom}
}

// myView returns the local player's seat in the current room view.
func (ui *KarataUI) myView() *wire.PlayerView {
	if ui.room == nil {
		return nil
	}
	for i := range ui.room.Players {
		if ui.room.Players[i].ID == ui.clientID {
			return &ui.room.Players[i]
		}
	}
	return nil
}

// isMyTurn reports whether the local player holds the turn.
func (ui *KarataUI) isMyTurn() bool {
	return ui.room != nil && ui.room.GameStarted && ui.room.CurrentPlayerID == ui.clientID
}

// playerName resolves a player id to a display name, falling back to
// the id itself.
func (ui *KarataUI) playerName(id string) string {
	if ui.room != nil {
		for _, p := range ui.room.Players {
			if p.ID == id && p.Name != "" {
				return p.Name
			}
		}
	}
	return id
}

// seatName resolves a seat index to a display name.
func (ui *KarataUI) seatName(seat int) string {
	if ui.room == nil {
		return ""
	}
	for _, p := range ui.room.Players {
		if p.Seat == seat {
			return ui.playerName(p.ID)
		}
	}
	return ""
}

func (ui *KarataUI) logActivity(line string) {
	ui.activity = append(ui.activity, line)
	if len(ui.activity) > activityLimit {
		ui.activity = ui.activity[len(ui.activity)-activityLimit:]
	}
}

// logCardEvent turns a granular card movement into an activity line.
func (ui *KarataUI) logCardEvent(ev client.CardEventMsg) {
	switch ev.Type {
	case wire.TypeAddCardRangeToPile:
		ui.logActivity(fmt.Sprintf("played: %s", utils.FormatCards(ev.Cards)))
	case wire.TypeAddCardRangeToHand:
		ui.logActivity(fmt.Sprintf("you drew: %s", utils.FormatCards(ev.Cards)))
	case wire.TypeRemoveCardsFromDeck:
		ui.logActivity(fmt.Sprintf("%d drawn from the deck", ev.Count))
	case wire.TypeAddCardsToPlayerHand:
		ui.logActivity(fmt.Sprintf("%s picked up %d", ui.playerName(ev.PlayerID), ev.Count))
	case wire.TypeRemoveCardsFromPlayerHand:
		ui.logActivity(fmt.Sprintf("%s played %d", ui.playerName(ev.PlayerID), ev.Count))
	case wire.TypeReclaimPile:
		ui.logActivity("pile reshuffled into the deck")
	}
}
