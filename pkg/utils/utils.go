package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vctt94/karata/pkg/karata"
)

// FormatCards is a helper function for displaying a hand of cards.
func FormatCards(cards []karata.Card) string {
	if len(cards) == 0 {
		return "None"
	}

	result := ""
	for i, card := range cards {
		if i > 0 {
			result += " "
		}
		result += card.String()
	}

	return result
}

// EnsureDataDirExists creates the datadir and necessary subdirectories if they don't exist
func EnsureDataDirExists(datadir string) error {
	// Create main datadir
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return fmt.Errorf("failed to create datadir %s: %v", datadir, err)
	}

	// Create logs subdirectory
	logsDir := filepath.Join(datadir, "logs")
	if err := os.MkdirAll(logsDir, 0700); err != nil {
		return fmt.Errorf("failed to create logs directory %s: %v", logsDir, err)
	}

	return nil
}

var suitLetters = map[byte]karata.Suit{
	's': karata.Spades,
	'h': karata.Hearts,
	'd': karata.Diamonds,
	'c': karata.Clubs,
}

var faceNames = map[string]karata.Face{
	"a": karata.Ace, "2": karata.Two, "3": karata.Three, "4": karata.Four,
	"5": karata.Five, "6": karata.Six, "7": karata.Seven, "8": karata.Eight,
	"9": karata.Nine, "10": karata.Ten, "t": karata.Ten, "j": karata.Jack,
	"q": karata.Queen, "k": karata.King,
}

// ParseCard parses compact card notation: a face followed by a suit
// letter, like "9h", "10s", "qd" or "as". The jokers are "bj" and "rj".
// Case does not matter.
func ParseCard(s string) (karata.Card, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "bj":
		return karata.NewCard(karata.BlackJoker, karata.None), nil
	case "rj":
		return karata.NewCard(karata.RedJoker, karata.None), nil
	}
	if len(s) < 2 {
		return karata.Card{}, fmt.Errorf("unrecognized card %q", s)
	}

	suit, ok := suitLetters[s[len(s)-1]]
	if !ok {
		return karata.Card{}, fmt.Errorf("unrecognized suit in %q", s)
	}
	face, ok := faceNames[s[:len(s)-1]]
	if !ok {
		return karata.Card{}, fmt.Errorf("unrecognized face in %q", s)
	}
	return karata.NewCard(suit, face), nil
}

// ParseCards parses a whitespace or comma separated list of cards.
func ParseCards(s string) ([]karata.Card, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	cards := make([]karata.Card, 0, len(fields))
	for _, f := range fields {
		card, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if len(cards) == 0 {
		return nil, nil
	}
	return cards, nil
}
