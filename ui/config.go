package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Title shown in the header, usually the source file name
	Title string

	// Watching tells the user that file changes start narration
	Watching bool

	// Number of notifications kept on screen
	HistorySize int `env:"SOVITS_PLAYER_HISTORY" envDefault:"5"`

	// For debugging the UI
	ShowSpinner bool `env:"SOVITS_PLAYER_SPINNER" envDefault:"true"`
	AltScreen   bool `env:"SOVITS_PLAYER_ALT_SCREEN" envDefault:"false"`
}
