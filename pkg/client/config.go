package client

import (
	"fmt"

	"github.com/vctt94/bisonbotkit/config"
	"github.com/vctt94/bisonbotkit/utils"
)

// ConfigOverrides carries optional CLI/runtime overrides for config values.
type ConfigOverrides struct {
	// Karata-specific (stored under ExtraConfig in the .conf)
	ServerAddr string
	PlayerID   string
	Name       string
}

// AppConfig is the unified configuration structure for the karata
// client applications.
type AppConfig struct {
	// BRConfig holds the on-disk client configuration options,
	// including the logging knobs.
	BRConfig *config.ClientConfig

	// Data directory
	DataDir string

	// Player identity. The server trusts whatever the client claims.
	PlayerID string
	Name     string

	// ServerAddr is the host:port the karata server listens on.
	ServerAddr string

	// Notifications
	Notifications *NotificationManager
}

// LoadConfig loads and processes the complete configuration from files only
func LoadConfig(appName string, datadir string, ov ConfigOverrides) (*AppConfig, error) {
	// Set up configuration directory
	if datadir == "" {
		datadir = utils.AppDataDir(appName, false)
	}
	cfg, err := config.LoadClientConfig(datadir, appName+".conf")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Karata settings live in ExtraConfig; let overrides win but persist in cfg
	serverAddr := cfg.GetString("serveraddr")
	if ov.ServerAddr != "" {
		serverAddr = ov.ServerAddr
		cfg.SetString("serveraddr", serverAddr)
	}

	playerID := cfg.GetString("playerid")
	if ov.PlayerID != "" {
		playerID = ov.PlayerID
		cfg.SetString("playerid", playerID)
	}

	name := cfg.GetString("name")
	if ov.Name != "" {
		name = ov.Name
		cfg.SetString("name", name)
	}

	return &AppConfig{
		BRConfig:   cfg,
		DataDir:    datadir,
		PlayerID:   playerID,
		Name:       name,
		ServerAddr: serverAddr,
	}, nil
}

// LoadAppConfig loads the karata application config with optional overrides.
func LoadAppConfig(datadir string, ov ConfigOverrides) (*AppConfig, error) {
	return LoadConfig("karata", datadir, ov)
}

// SetConfigValues allows the main app to override configuration values from flags or other sources
func (cfg *AppConfig) SetConfigValues(values map[string]interface{}) {
	for key, value := range values {
		switch key {
		case "id", "playerid":
			if v, ok := value.(string); ok && v != "" {
				cfg.PlayerID = v
			}
		case "name":
			if v, ok := value.(string); ok && v != "" {
				cfg.Name = v
			}
		case "serveraddr":
			if v, ok := value.(string); ok && v != "" {
				cfg.ServerAddr = v
			}
		case "logfile":
			if v, ok := value.(string); ok && v != "" {
				cfg.BRConfig.LogFile = v
			}
		case "maxlogfiles":
			if v, ok := value.(int); ok {
				cfg.BRConfig.MaxLogFiles = v
			}
		case "maxbufferlines":
			if v, ok := value.(int); ok {
				cfg.BRConfig.MaxBufferLines = v
			}
		case "debug":
			if v, ok := value.(string); ok && v != "" {
				cfg.BRConfig.Debug = v
			}
		}
	}
}

// ValidateConfig checks that all required configuration values are present
func (cfg *AppConfig) ValidateConfig() error {
	var missingConfigs []string

	if cfg.ServerAddr == "" {
		missingConfigs = append(missingConfigs, "ServerAddr")
	}
	if cfg.PlayerID == "" {
		missingConfigs = append(missingConfigs, "PlayerID")
	}

	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configuration values: %v", missingConfigs)
	}

	return nil
}
