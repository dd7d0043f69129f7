package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vctt94/karata/pkg/karata"
)

// Renderer handles all rendering of UI screens and game elements.
type Renderer struct {
	ui *KarataUI
}

// Render draws the active screen plus any pending message or error.
func (r *Renderer) Render() string {
	var s string
	switch r.ui.state {
	case stateMainMenu:
		s = r.RenderMainMenu()
	case stateRoomList:
		s = r.RenderRoomList()
	case stateMatchList:
		s = r.RenderMatchList()
	case stateCreateRoom:
		s = r.RenderCreateRoom()
	case stateJoinRoom:
		s = r.RenderJoinRoom()
	case stateGameLobby:
		s = r.RenderGameLobby()
	case stateActiveGame:
		s = r.RenderActiveGame()
	case statePlayInput:
		s = r.RenderPlayInput()
	case stateSuitRequest:
		s = r.RenderSuitRequest()
	case stateCardRequest:
		s = r.RenderCardRequest()
	case stateLastCardPrompt:
		s = r.RenderLastCardPrompt()
	}

	if r.ui.err != nil {
		s += "\n" + ErrorStyle.Render(fmt.Sprintf("⚠ %v", r.ui.err))
	} else if r.ui.message != "" {
		s += "\n" + MessageStyle.Render(r.ui.message)
	}
	return s
}

// RenderMainMenu renders the main menu screen.
func (r *Renderer) RenderMainMenu() string {
	var s string
	s += TitleStyle.Render("🃏 Karata - Main Menu 🃏") + "\n\n"
	s += fmt.Sprintf("Player: %s (%s)\n", r.ui.kc.Name, r.ui.clientID)

	if roomID := r.ui.kc.GetCurrentRoomID(); roomID != "" {
		phase := "waiting"
		if r.ui.room != nil {
			phase = r.ui.room.Phase
		}
		s += fmt.Sprintf("🎴 Current Room: %s (%s)\n", roomID, phase)
	}
	s += "\n"

	s += r.renderMenu()
	s += "\n" + HelpStyle.Render("Use arrow keys to navigate, Enter to select, 'q' to quit")
	return s
}

// RenderRoomList renders the open room listing.
func (r *Renderer) RenderRoomList() string {
	var s string
	s += TitleStyle.Render("🎯 Open Rooms 🎯") + "\n\n"

	if len(r.ui.rooms) == 0 {
		s += BlurredStyle.Render("No rooms open right now.") + "\n"
	} else {
		for i, room := range r.ui.rooms {
			link := room.InviteLink
			if len(link) > 20 {
				link = link[:17] + "..."
			}

			var status string
			switch {
			case room.GameStarted:
				status = "🎮" // Game in progress
			case room.PlayerCount >= room.MinPlayers:
				status = "⏳" // Enough players, waiting for ready
			default:
				status = "📍" // Waiting for more players
			}

			roomInfo := fmt.Sprintf("%s %s | 👥 %d/%d | %s",
				status, link, room.PlayerCount, room.MaxPlayers, room.Phase)

			if i == r.ui.selectedRoom {
				s += FocusedStyle.Render("▶ "+roomInfo) + "\n"
			} else {
				s += BlurredStyle.Render("  "+roomInfo) + "\n"
			}
		}
	}

	s += "\n" + HelpStyle.Render("Press Enter to join selected room, 'r' to refresh, or 'q' to go back")
	return s
}

// RenderMatchList renders recent finished games.
func (r *Renderer) RenderMatchList() string {
	var s string
	s += TitleStyle.Render("📜 Match History 📜") + "\n\n"

	if len(r.ui.matches) == 0 {
		s += BlurredStyle.Render("No finished games yet.") + "\n"
	} else {
		for _, m := range r.ui.matches {
			winner := m.WinnerID
			switch {
			case winner == r.ui.clientID:
				winner = "you"
			case winner == "":
				winner = "no winner"
			}
			s += fmt.Sprintf("  🏆 %s | %s | %d turns | %s\n",
				winner, m.Reason, m.Turns, m.FinishedAt.Format("Jan 2 15:04"))
		}
	}

	s += "\n" + HelpStyle.Render("Press 'r' to refresh or 'q' to go back")
	return s
}

// RenderCreateRoom renders the create room form.
func (r *Renderer) RenderCreateRoom() string {
	var s string
	s += TitleStyle.Render("🆕 Create Room 🆕") + "\n\n"

	fields := []struct {
		label string
		value string
	}{
		{"👥 Min Players", r.ui.minPlayersInput},
		{"👥 Max Players", r.ui.maxPlayersInput},
	}

	for i, field := range fields {
		style := BlurredStyle
		cursor := " "
		if i == r.ui.formField {
			style = FocusedStyle
			cursor = "▶"
		}
		s += style.Render(fmt.Sprintf("%s %s: %s", cursor, field.label, field.value)) + "\n"
	}

	s += "\n" + HelpStyle.Render("Tab to switch fields, type to edit, Enter to create, Esc to go back")
	return s
}

// RenderJoinRoom renders the invite link entry screen.
func (r *Renderer) RenderJoinRoom() string {
	var s string
	s += TitleStyle.Render("🎯 Join Room 🎯") + "\n\n"
	s += FocusedStyle.Render(fmt.Sprintf("🔗 Invite link: %s▏", r.ui.inviteInput)) + "\n\n"
	s += HelpStyle.Render("Type the invite link and press Enter to join, Esc to go back")
	return s
}

// RenderGameLobby renders the pre-game room lobby.
func (r *Renderer) RenderGameLobby() string {
	ui := r.ui
	var s string
	s += TitleStyle.Render(fmt.Sprintf("🎰 Room Lobby - %s 🎰", ui.kc.GetCurrentRoomID())) + "\n\n"

	if ui.room == nil {
		s += "Loading room information...\n\n"
	} else {
		s += fmt.Sprintf("👥 Players: %d/%d (min %d to start)\n", len(ui.room.Players), ui.room.MaxPlayers, ui.room.MinPlayers)
		s += fmt.Sprintf("🎯 Phase: %s\n\n", ui.room.Phase)

		for _, p := range ui.room.Players {
			readyStatus := " ⏳ Not Ready"
			if p.IsReady {
				readyStatus = " ✅ Ready"
			}

			var markers string
			if p.IsHost {
				markers += " ★"
			}
			if p.ID == ui.clientID {
				markers += " (You)"
			}
			if p.Disconnected {
				markers += " 🔌 disconnected"
			}

			s += fmt.Sprintf("  %s:%s%s\n", ui.playerName(p.ID), readyStatus, markers)
		}
		s += "\n"
	}

	s += r.renderMenu()
	s += "\n" + HelpStyle.Render("The game starts when everyone is ready • 'q' for main menu")
	return s
}

// RenderActiveGame draws the karata table.
func (r *Renderer) RenderActiveGame() string {
	ui := r.ui
	if ui.room == nil {
		return TitleStyle.Render("🃏 Karata 🃏") + "\n\nLoading game state...\n"
	}

	var s string
	s += TitleStyle.Render(fmt.Sprintf("🃏 Karata - Room %s 🃏", ui.room.InviteLink)) + "\n\n"

	s += r.renderTableSection() + "\n"
	s += r.renderYourHandSection() + "\n"
	s += r.renderGameStatusHeader() + "\n"
	s += r.renderPlayersRow() + "\n"

	if len(ui.activity) > 0 {
		s += HelpStyle.Render("Recent:") + "\n"
		for _, line := range ui.activity {
			s += BlurredStyle.Render("  "+line) + "\n"
		}
		s += "\n"
	}

	s += r.renderActionButtons()
	s += "\n" + HelpStyle.Render("'p' play cards, 'd' draw, Esc for main menu")
	return s
}

// renderTableSection shows the discard pile, deck and the active
// demand.
func (r *Renderer) renderTableSection() string {
	room := r.ui.room
	var s string

	s += lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true).
		Background(lipgloss.Color("22")).
		Padding(0, 2).
		Margin(0, 0, 1, 0).
		Render("🃏 TABLE") + "\n"

	top := "🂠"
	if room.PileTop != nil {
		top = r.formatCard(*room.PileTop)
	}
	direction := "➡ forward"
	if !room.IsForward {
		direction = "⬅ reversed"
	}
	s += fmt.Sprintf("  Top of pile: %s\n", top)
	s += fmt.Sprintf("  🂠 Deck: %d | 🗂 Pile: %d | %s\n", room.DeckCount, room.PileCount, direction)

	if room.CurrentRequest != nil {
		s += lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true).
			Render(fmt.Sprintf("  🎯 DEMAND: %s", formatRequest(room.CurrentRequest))) + "\n"
	}

	return s
}

// renderYourHandSection shows the local player's full hand.
func (r *Renderer) renderYourHandSection() string {
	pv := r.ui.myView()
	var s string

	count := 0
	if pv != nil {
		count = len(pv.Hand)
	}
	s += lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true).
		Background(lipgloss.Color("17")).
		Padding(0, 2).
		Render(fmt.Sprintf("🂠 YOUR HAND (%d)", count)) + "\n"

	if pv == nil || len(pv.Hand) == 0 {
		s += BlurredStyle.Render("  (empty)") + "\n"
		return s
	}

	var cardElements []string
	for _, card := range pv.Hand {
		cardElements = append(cardElements, r.formatCard(card))
	}
	s += strings.Join(cardElements, " ") + "\n"

	if pv.LastCard {
		s += MessageStyle.Render("  🔔 LAST CARD declared") + "\n"
	}
	return s
}

// renderGameStatusHeader shows whose turn it is.
func (r *Renderer) renderGameStatusHeader() string {
	ui := r.ui
	var statusMsg string
	switch {
	case ui.isMyTurn():
		statusMsg = "🎯 YOUR TURN - play cards or draw"
	case ui.room.CurrentPlayerID != "":
		name := ui.playerName(ui.room.CurrentPlayerID)
		if len(name) > 12 {
			name = name[:12] + "..."
		}
		statusMsg = fmt.Sprintf("⏰ Waiting for %s to act...", name)
	default:
		statusMsg = "⏳ Waiting for game to start..."
	}
	return TitleStyle.Render(statusMsg)
}

// renderPlayersRow frames every seat in a box, highlighting the turn
// holder and the local player.
func (r *Renderer) renderPlayersRow() string {
	ui := r.ui
	if len(ui.room.Players) == 0 {
		return HelpStyle.Render("👥 No players in room")
	}

	var boxes []string
	for _, p := range ui.room.Players {
		name := ui.playerName(p.ID)
		if len(name) > 10 {
			name = name[:10] + "..."
		}

		info := fmt.Sprintf("👤 S%d %s\n🂠 %d", p.Seat+1, name, p.HandCount)
		if p.LastCard {
			info += "\n🔔 LAST"
		}
		if p.Disconnected {
			info += "\n🔌 away"
		}

		style := PlayerBoxStyle
		switch {
		case p.ID == ui.clientID:
			style = SelfPlayerStyle
		case p.Seat == ui.room.CurrentTurn:
			style = TurnPlayerStyle
		}
		boxes = append(boxes, style.Render(info))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

// renderActionButtons lists the in-game menu with icons.
func (r *Renderer) renderActionButtons() string {
	var result string
	for i, option := range r.ui.menuOptions {
		var icon string
		switch option {
		case optionPlayCards:
			icon = "🎴"
		case optionDrawCard:
			icon = "🂠"
		case optionLeaveRoom:
			icon = "🚪"
		default:
			icon = "🔧"
		}

		buttonText := fmt.Sprintf("%s %s", icon, option)
		if i == r.ui.selectedItem {
			result += FocusedStyle.Render(fmt.Sprintf("▶ %s", buttonText)) + "\n"
		} else {
			result += BlurredStyle.Render(fmt.Sprintf("  %s", buttonText)) + "\n"
		}
	}
	return result
}

// RenderPlayInput renders the card entry screen.
func (r *Renderer) RenderPlayInput() string {
	var s string
	s += TitleStyle.Render("🎴 Play Cards 🎴") + "\n\n"

	if pv := r.ui.myView(); pv != nil && len(pv.Hand) > 0 {
		var cardElements []string
		for _, card := range pv.Hand {
			cardElements = append(cardElements, r.formatCard(card))
		}
		s += "Your hand:\n" + strings.Join(cardElements, " ") + "\n\n"
	}

	s += FocusedStyle.Render(fmt.Sprintf("Cards: %s▏", r.ui.playInput)) + "\n\n"
	s += HelpStyle.Render("Shorthand: face then suit, e.g. \"7h 8h\" or \"qs\" or \"bj\" • Enter to play, Esc to cancel")
	return s
}

// RenderSuitRequest renders the suit demand prompt.
func (r *Renderer) RenderSuitRequest() string {
	var s string
	s += TitleStyle.Render("🎯 Demand a Suit 🎯") + "\n\n"
	s += "Your ace lets you demand the suit played next.\n\n"

	for i, choice := range suitChoices {
		if i == r.ui.selectedSuit {
			s += FocusedStyle.Render(fmt.Sprintf("▶ %s", choice.label)) + "\n"
		} else {
			s += BlurredStyle.Render(fmt.Sprintf("  %s", choice.label)) + "\n"
		}
	}

	s += "\n" + HelpStyle.Render("Use arrow keys and Enter to choose")
	return s
}

// RenderCardRequest renders the exact card demand prompt.
func (r *Renderer) RenderCardRequest() string {
	var s string
	s += TitleStyle.Render("🎯 Demand a Card 🎯") + "\n\n"
	s += "A pair of aces lets you demand an exact card.\n\n"
	s += FocusedStyle.Render(fmt.Sprintf("Card: %s▏", r.ui.requestInput)) + "\n\n"
	s += HelpStyle.Render("e.g. \"9h\" or \"qs\" • Enter to demand, Esc to cancel")
	return s
}

// RenderLastCardPrompt renders the last card declaration prompt.
func (r *Renderer) RenderLastCardPrompt() string {
	var s string
	s += TitleStyle.Render("🔔 Last Card 🔔") + "\n\n"
	s += "This play leaves you with one card. Declare last card?\n\n"

	options := []string{"Yes, declare it", "No, stay quiet"}
	for i, option := range options {
		if i == r.ui.selectedItem {
			s += FocusedStyle.Render(fmt.Sprintf("▶ %s", option)) + "\n"
		} else {
			s += BlurredStyle.Render(fmt.Sprintf("  %s", option)) + "\n"
		}
	}

	s += "\n" + HelpStyle.Render("'y'/'n' or Enter • without a declaration the win will not count")
	return s
}

// renderMenu draws the current menu with the selection cursor.
func (r *Renderer) renderMenu() string {
	var s string
	for i, option := range r.ui.menuOptions {
		if i == r.ui.selectedItem {
			s += FocusedStyle.Render(fmt.Sprintf("▶ %s", option)) + "\n"
		} else {
			s += BlurredStyle.Render(fmt.Sprintf("  %s", option)) + "\n"
		}
	}
	return s
}

// formatCard renders one card with suit-appropriate coloring.
func (r *Renderer) formatCard(card karata.Card) string {
	if isRedSuit(card.GetSuit()) {
		return RedCardStyle.Render(card.String())
	}
	return CardStyle.Render(card.String())
}

// formatRequest describes an active demand: a full card, or any card
// of a suit.
func formatRequest(card *karata.Card) string {
	if card == nil {
		return ""
	}
	if card.GetFace() == karata.None {
		return fmt.Sprintf("any %s", card.GetSuit())
	}
	return card.String()
}

// isRedSuit determines if a suit should be displayed in red.
func isRedSuit(suit karata.Suit) bool {
	return suit == karata.Hearts || suit == karata.Diamonds || suit == karata.RedJoker
}
