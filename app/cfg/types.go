package cfg

type Cfg struct {
	// Storage and configuration files
	ConfigDir string
	DBPath    string

	// Marketplace
	BaseURL string

	// Operator surfaces
	Port             string
	APIAccessKey     string
	DiscordToken     string
	DiscordChannelID string
	DiscordGuildID   string
	DiscordAlertRole string

	// Application behaviour
	RunAtStartup bool
	Once         bool
	DryRun       bool
	Timezone     string
	Debug        bool
	Version      string
}
