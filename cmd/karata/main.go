package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/vctt94/karata/pkg/client"
	"github.com/vctt94/karata/pkg/ui"
)

var (
	serverAddr = flag.String("server", "", "Karata server address (host:port or ws:// URL)")
	datadir    = flag.String("datadir", "", "Data directory for config and logs")
	playerID   = flag.String("id", "", "Player ID (defaults to the configured or a generated one)")
	name       = flag.String("name", "", "Display name shown to other players")
)

func main() {
	flag.Parse()

	// Load configuration; flags win over the .conf file.
	cfg, err := client.LoadAppConfig(*datadir, client.ConfigOverrides{
		ServerAddr: *serverAddr,
		PlayerID:   *playerID,
		Name:       *name,
	})
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	if cfg.PlayerID == "" {
		// First run: mint an identity and keep it for next time.
		cfg.PlayerID = uuid.NewString()[:8]
		cfg.BRConfig.SetString("playerid", cfg.PlayerID)
	}
	if err := cfg.ValidateConfig(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	cfg.Notifications = client.NewNotificationManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kc, err := client.NewKarataClient(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to connect to %s: %v\n", cfg.ServerAddr, err)
		os.Exit(1)
	}
	defer kc.Close()

	log := kc.LogBackend().Logger("UI")
	log.Infof("Connected to %s as %s (%s)", cfg.ServerAddr, kc.Name, kc.ID)

	if err := ui.Run(ctx, kc); err != nil {
		fmt.Printf("UI error: %v\n", err)
		os.Exit(1)
	}
}
