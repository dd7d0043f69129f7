package utils

import (
	"testing"

	"github.com/vctt94/karata/pkg/karata"
)

func TestParseCard(t *testing.T) {
	tests := []struct {
		in   string
		want karata.Card
	}{
		{"as", karata.NewCard(karata.Spades, karata.Ace)},
		{"AS", karata.NewCard(karata.Spades, karata.Ace)},
		{"10h", karata.NewCard(karata.Hearts, karata.Ten)},
		{"th", karata.NewCard(karata.Hearts, karata.Ten)},
		{"qd", karata.NewCard(karata.Diamonds, karata.Queen)},
		{"2c", karata.NewCard(karata.Clubs, karata.Two)},
		{" kc ", karata.NewCard(karata.Clubs, karata.King)},
		{"bj", karata.NewCard(karata.BlackJoker, karata.None)},
		{"RJ", karata.NewCard(karata.RedJoker, karata.None)},
	}
	for _, tt := range tests {
		got, err := ParseCard(tt.in)
		if err != nil {
			t.Errorf("ParseCard(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCard(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, in := range []string{"", "x", "5x", "11h", "joker"} {
		if _, err := ParseCard(in); err == nil {
			t.Errorf("ParseCard(%q) should fail", in)
		}
	}
}

func TestParseCards(t *testing.T) {
	cards, err := ParseCards("5h, 5d 5s")
	if err != nil {
		t.Fatalf("ParseCards failed: %v", err)
	}
	want := []karata.Card{
		karata.NewCard(karata.Hearts, karata.Five),
		karata.NewCard(karata.Diamonds, karata.Five),
		karata.NewCard(karata.Spades, karata.Five),
	}
	if len(cards) != len(want) {
		t.Fatalf("Expected %d cards, got %d", len(want), len(cards))
	}
	for i := range want {
		if cards[i] != want[i] {
			t.Errorf("Card %d: expected %s, got %s", i, want[i], cards[i])
		}
	}

	if cards, err := ParseCards("  "); err != nil || cards != nil {
		t.Errorf("Blank input should parse to no cards, got %v, %v", cards, err)
	}

	if _, err := ParseCards("5h xx"); err == nil {
		t.Error("Bad list entry should fail the whole parse")
	}
}

func TestFormatCards(t *testing.T) {
	if got := FormatCards(nil); got != "None" {
		t.Errorf("Expected None for an empty hand, got %q", got)
	}
	cards := []karata.Card{
		karata.NewCard(karata.Spades, karata.Ace),
		karata.NewCard(karata.RedJoker, karata.None),
	}
	if got := FormatCards(cards); got != "A♠ RJoker" {
		t.Errorf("Expected 'A♠ RJoker', got %q", got)
	}
}
