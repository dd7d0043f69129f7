package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vctt94/karata/pkg/client"
	"github.com/vctt94/karata/pkg/karata"
	"github.com/vctt94/karata/pkg/utils"
	"github.com/vctt94/karata/pkg/wire"
)

// Common flags
var (
	dataDir        = flag.String("datadir", "", "Directory to load config file from")
	serverAddr     = flag.String("server", "", "Karata server address (host:port or ws:// URL)")
	playerID       = flag.String("id", "", "Explicit player ID")
	playerName     = flag.String("name", "", "Display name")
	logFile        = flag.String("logfile", "", "Path to log file")
	maxLogFiles    = flag.Int("maxlogfiles", 10, "Maximum number of log files")
	maxBufferLines = flag.Int("maxbufferlines", 1000, "Maximum number of buffer lines")
	debug          = flag.String("debug", "", "Debug level for logging")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [global flags] <command> [args]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  id                               Show player ID")
		fmt.Fprintln(os.Stderr, "  rooms                            List open rooms (JSON)")
		fmt.Fprintln(os.Stderr, "  matches [--limit N]              List finished games (JSON)")
		fmt.Fprintln(os.Stderr, "  create-room [opts]               Create room; prints invite link")
		fmt.Fprintln(os.Stderr, "  join --room LINK                 Join a room")
		fmt.Fprintln(os.Stderr, "  leave                            Leave current room")
		fmt.Fprintln(os.Stderr, "  ready set|unset [--room LINK]    Set or unset ready state")
		fmt.Fprintln(os.Stderr, "  state [--room LINK]              Print room state (JSON)")
		fmt.Fprintln(os.Stderr, "  watch [--room LINK]              Stream room states (JSON)")
		fmt.Fprintln(os.Stderr, "  act play CARDS...|draw|request C|lastcard yes|no")
		fmt.Fprintln(os.Stderr, "  autoplay [--room LINK]           Play greedily until the game ends")
		fmt.Fprintln(os.Stderr, "\nGlobal flags:")
		flag.PrintDefaults()
	}

	// Suppress default flag errors to avoid noisy usage on subcommands
	flag.CommandLine.SetOutput(io.Discard)
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cmd := flag.Arg(0)

	cfg, err := client.LoadAppConfig(*dataDir, client.ConfigOverrides{})
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	flagOverrides := make(map[string]interface{})
	if *serverAddr != "" {
		flagOverrides["serveraddr"] = *serverAddr
	}
	if *playerID != "" {
		flagOverrides["id"] = *playerID
	}
	if *playerName != "" {
		flagOverrides["name"] = *playerName
	}
	if *logFile != "" {
		flagOverrides["logfile"] = *logFile
	}
	if *maxLogFiles != 10 {
		flagOverrides["maxlogfiles"] = *maxLogFiles
	}
	if *maxBufferLines != 1000 {
		flagOverrides["maxbufferlines"] = *maxBufferLines
	}
	if *debug != "" {
		flagOverrides["debug"] = *debug
	}
	cfg.SetConfigValues(flagOverrides)

	if cfg.PlayerID == "" {
		fmt.Println("a player id is required (from config file or -id)")
		os.Exit(1)
	}
	if err := cfg.ValidateConfig(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Notification manager is required by the client.
	cfg.Notifications = client.NewNotificationManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kc, err := client.NewKarataClient(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to create karata client: %v\n", err)
		os.Exit(1)
	}
	defer kc.Close()

	switch cmd {
	case "id":
		fmt.Println(kc.ID)
		return

	case "rooms":
		if err := handleRooms(ctx, kc); err != nil {
			fatalErr(err)
		}
		return

	case "matches":
		if err := handleMatches(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	case "create-room":
		if err := handleCreateRoom(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	case "join":
		if err := handleJoin(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	case "leave":
		if err := kc.LeaveRoom(); err != nil {
			fatalErr(err)
		}
		return

	case "ready":
		if err := handleReady(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	case "state":
		if err := handleState(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	case "watch":
		if err := handleWatch(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	case "act":
		if err := handleAct(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	case "autoplay":
		if err := handleAutoplay(ctx, kc, flag.Args()[1:]); err != nil {
			fatalErr(err)
		}
		return

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func fatalErr(err error) {
	fatal(err.Error())
}

func handleRooms(ctx context.Context, kc *client.KarataClient) error {
	rooms, err := kc.ListRooms(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rooms)
}

func handleMatches(ctx context.Context, kc *client.KarataClient, args []string) error {
	fs := flag.NewFlagSet("matches", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "Maximum results")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("matches: %w", err)
	}
	matches, err := kc.ListMatches(ctx, *limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(matches)
}

func handleCreateRoom(ctx context.Context, kc *client.KarataClient, args []string) error {
	// Use sub-FlagSet to avoid global flag confusion
	fs := flag.NewFlagSet("create-room", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	minPlayers := fs.Int("min-players", 2, "Min players")
	maxPlayers := fs.Int("max-players", 4, "Max players")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("create-room: %w", err)
	}

	link, err := kc.CreateRoom(ctx, *minPlayers, *maxPlayers)
	if err != nil {
		return err
	}
	fmt.Println(link)
	return nil
}

func handleJoin(ctx context.Context, kc *client.KarataClient, args []string) error {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	room := fs.String("room", "", "Room invite link")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if *room == "" {
		return errors.New("join: --room is required")
	}
	return kc.JoinRoom(ctx, *room)
}

func handleReady(ctx context.Context, kc *client.KarataClient, args []string) error {
	fs := flag.NewFlagSet("ready", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	room := fs.String("room", "", "Room invite link")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("ready: %w", err)
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return errors.New("ready requires set|unset")
	}
	if *room != "" {
		if err := kc.JoinRoom(ctx, *room); err != nil {
			return err
		}
	}
	switch rest[0] {
	case "set":
		return kc.SetReady()
	case "unset":
		return kc.SetUnready()
	default:
		return errors.New("ready requires set|unset")
	}
}

func handleState(ctx context.Context, kc *client.KarataClient, args []string) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	room := fs.String("room", "", "Room invite link")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if *room != "" {
		if err := kc.JoinRoom(ctx, *room); err != nil {
			return err
		}
	}
	if kc.GetCurrentRoomID() == "" {
		return errors.New("state: no room provided and not in a room")
	}

	// The server replays the room view after hello or join; wait for
	// it on the update stream.
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case msg := <-kc.UpdatesCh:
			if rv, ok := msg.(client.RoomStateMsg); ok {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(wire.RoomView(rv))
			}
		case err := <-kc.ErrorsCh:
			return err
		case <-deadline.C:
			return errors.New("timed out waiting for room state")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleWatch(ctx context.Context, kc *client.KarataClient, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	room := fs.String("room", "", "Room invite link")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if *room != "" {
		if err := kc.JoinRoom(ctx, *room); err != nil {
			return err
		}
	}
	if kc.GetCurrentRoomID() == "" {
		return errors.New("join a room first or pass --room")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for {
		select {
		case msg := <-kc.UpdatesCh:
			switch m := msg.(type) {
			case client.RoomStateMsg:
				if err := enc.Encode(wire.RoomView(m)); err != nil {
					return err
				}
			case client.EndGameMsg:
				if err := enc.Encode(wire.EndGamePayload(m)); err != nil {
					return err
				}
			}
		case err := <-kc.ErrorsCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleAct(ctx context.Context, kc *client.KarataClient, args []string) error {
	fs := flag.NewFlagSet("act", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	room := fs.String("room", "", "Room invite link")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("act: %w", err)
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return errors.New("act requires a subcommand")
	}
	if *room != "" {
		if err := kc.JoinRoom(ctx, *room); err != nil {
			return err
		}
	}

	sub := rest[0]
	switch sub {
	case "play":
		if len(rest) < 2 {
			return errors.New("play requires cards, e.g. act play 7h 8h")
		}
		cards, err := utils.ParseCards(strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		if err := kc.PerformTurn(cards); err != nil {
			return err
		}
		return waitTurnResult(ctx, kc)
	case "draw":
		if err := kc.DrawCard(); err != nil {
			return err
		}
		return waitTurnResult(ctx, kc)
	case "request":
		if len(rest) < 2 {
			return errors.New("request requires a card or suit, e.g. act request 9h or act request h")
		}
		card, err := parseRequestArg(rest[1])
		if err != nil {
			return err
		}
		return kc.RequestCard(card)
	case "lastcard":
		if len(rest) < 2 {
			return errors.New("lastcard requires yes|no")
		}
		return kc.SetLastCard(rest[1] == "yes")
	default:
		return fmt.Errorf("unknown act subcommand: %s", sub)
	}
}

// waitTurnResult drains the update stream until the server reports the
// turn's verdict, keeping any rejection reason it announced.
func waitTurnResult(ctx context.Context, kc *client.KarataClient) error {
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()
	reason := ""
	for {
		select {
		case msg := <-kc.UpdatesCh:
			switch m := msg.(type) {
			case client.TurnResultMsg:
				if !m.Valid {
					if reason != "" {
						return errors.New(reason)
					}
					return errors.New("turn rejected")
				}
				fmt.Println("ok")
				return nil
			case client.SystemMessageMsg:
				if m.Kind == wire.MessageError {
					reason = m.Text
				}
			}
		case err := <-kc.ErrorsCh:
			return err
		case <-deadline.C:
			return errors.New("timed out waiting for turn result")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseRequestArg accepts a bare suit letter or word for suit demands,
// or full card notation for exact demands.
func parseRequestArg(s string) (karata.Card, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "spades":
		return karata.NewCard(karata.Spades, karata.None), nil
	case "h", "hearts":
		return karata.NewCard(karata.Hearts, karata.None), nil
	case "d", "diamonds":
		return karata.NewCard(karata.Diamonds, karata.None), nil
	case "c", "clubs":
		return karata.NewCard(karata.Clubs, karata.None), nil
	}
	return utils.ParseCard(s)
}

// handleAutoplay plays the dumbest legal game: try each held card in
// order, draw when nothing fits, always declare last card, and answer
// demands from the hand. Useful for soak tests and as a sparring
// partner.
func handleAutoplay(ctx context.Context, kc *client.KarataClient, args []string) error {
	fs := flag.NewFlagSet("autoplay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	room := fs.String("room", "", "Room invite link")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("autoplay: %w", err)
	}
	if *room != "" {
		if err := kc.JoinRoom(ctx, *room); err != nil {
			return err
		}
	}
	if kc.GetCurrentRoomID() == "" {
		return errors.New("join a room first or pass --room")
	}
	_ = kc.SetReady()

	deadline := time.NewTimer(4 * time.Minute)
	defer deadline.Stop()

	// trying indexes the card currently being attempted; -1 means
	// waiting for our turn, -2 means we acted and the turn is moving.
	trying := -1
	var hand []karata.Card

	for {
		select {
		case <-deadline.C:
			return errors.New("autoplay timeout")
		case err := <-kc.ErrorsCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-kc.UpdatesCh:
			switch m := msg.(type) {
			case client.TurnMsg:
				// A fresh turn boundary, even if it lands on us again.
				trying = -1

			case client.RoomStateMsg:
				rv := wire.RoomView(m)
				if !rv.GameStarted || rv.CurrentPlayerID != kc.ID {
					continue
				}
				if trying != -1 {
					continue
				}
				hand = myHand(&rv, kc.ID)
				if len(hand) == 0 {
					continue
				}
				trying = 0
				if err := kc.PerformTurn(hand[:1]); err != nil {
					return err
				}

			case client.TurnResultMsg:
				if m.Valid {
					trying = -2
					continue
				}
				if trying < 0 {
					continue
				}
				trying++
				if trying < len(hand) {
					if err := kc.PerformTurn(hand[trying : trying+1]); err != nil {
						return err
					}
				} else {
					if err := kc.DrawCard(); err != nil {
						return err
					}
					trying = -2
				}

			case client.CardRequestPromptMsg:
				if err := kc.RequestCard(autoRequest(hand, m.Specific)); err != nil {
					return err
				}

			case client.LastCardPromptMsg:
				if err := kc.SetLastCard(true); err != nil {
					return err
				}

			case client.EndGameMsg:
				if m.WinnerID != "" {
					fmt.Println(m.WinnerID)
				}
				return nil
			}
		}
	}
}

func myHand(rv *wire.RoomView, id string) []karata.Card {
	for _, p := range rv.Players {
		if p.ID == id {
			return p.Hand
		}
	}
	return nil
}

// autoRequest answers a demand prompt from the hand so the bot asks
// for something it can follow up with.
func autoRequest(hand []karata.Card, specific bool) karata.Card {
	for _, c := range hand {
		if c.IsBoring() {
			if specific {
				return c
			}
			return karata.NewCard(c.GetSuit(), karata.None)
		}
	}
	if specific {
		return karata.NewCard(karata.Spades, karata.Four)
	}
	return karata.NewCard(karata.Spades, karata.None)
}
