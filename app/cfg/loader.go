package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage and configuration files
	ConfigDir string `long:"config-dir" env:"CONFIG_DIR" default:"./config" description:"Directory containing criteria.yml and rules.yml"`
	DBPath    string `long:"db-path" env:"DB_PATH" default:"./data/autocomb.db" description:"SQLite database file"`

	// Marketplace
	BaseURL string `long:"base-url" env:"MARKETPLACE_URL" default:"https://www.leboncoin.fr" description:"Marketplace base URL"`

	// Operator surfaces
	Port             string `long:"port" env:"PORT" description:"HTTP operator API port (empty disables the API)"`
	APIAccessKey     string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key; operator endpoints are disabled without it"`
	DiscordToken     string `long:"discord-token" env:"DISCORD_TOKEN" description:"Discord bot token (empty logs alerts instead)"`
	DiscordChannelID string `long:"discord-channel" env:"DISCORD_CHANNEL_ID" description:"Discord channel receiving alerts and commands"`
	DiscordGuildID   string `long:"discord-guild" env:"DISCORD_GUILD_ID" description:"Discord guild for slash command registration (empty registers globally)"`
	DiscordAlertRole string `long:"discord-alert-role" env:"DISCORD_ALERT_ROLE" description:"Role mentioned on high priority alerts (empty uses @here)"`

	// Application behaviour
	RunAtStartup bool   `long:"run-at-startup" env:"RUN_AT_STARTUP" description:"Run a cycle immediately instead of waiting for the first tick"`
	Once         bool   `long:"once" description:"Run a single cycle and exit"`
	DryRun       bool   `long:"dry-run" description:"Use an in-memory store and print alerts instead of sending them"`
	EnvFile      string `long:"env-file" env:"ENV_FILE" default:".env" description:"Optional dotenv file loaded before parsing"`
	Timezone     string `long:"timezone" env:"TZ" default:"Europe/Paris" description:"Timezone for timestamps (e.g., UTC, Europe/Paris)"`
	Debug        bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses flags and environment. A dotenv file, when present, seeds the environment
// first without overriding variables that are already set.
func Load(args []string) (*Cfg, error) {
	if err := loadEnvFile(envFileFromArgs(args)); err != nil {
		return nil, err
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		ConfigDir:        raw.ConfigDir,
		DBPath:           raw.DBPath,
		BaseURL:          raw.BaseURL,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		DiscordToken:     raw.DiscordToken,
		DiscordChannelID: raw.DiscordChannelID,
		DiscordGuildID:   raw.DiscordGuildID,
		DiscordAlertRole: raw.DiscordAlertRole,
		RunAtStartup:     raw.RunAtStartup,
		Once:             raw.Once,
		DryRun:           raw.DryRun,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if cfg.DiscordToken != "" && cfg.DiscordChannelID == "" {
		return nil, fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// envFileFromArgs looks the env file up before flag parsing so its values reach go-flags.
func envFileFromArgs(args []string) string {
	path := cmp.Or(os.Getenv("ENV_FILE"), ".env")
	for i, arg := range args {
		switch {
		case arg == "--env-file" && i+1 < len(args):
			path = args[i+1]
		case strings.HasPrefix(arg, "--env-file="):
			path = strings.TrimPrefix(arg, "--env-file=")
		}
	}
	return path
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
