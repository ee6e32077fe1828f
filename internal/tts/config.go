package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the narration configuration
type Config struct {
	// Synthesis service settings
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Scheduling and task defaults
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`

	// Clip cache settings
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Playback settings
	Playback PlaybackConfig `yaml:"playback" mapstructure:"playback"`

	// Text detection and voice assignment
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// APIConfig holds synthesis service settings
type APIConfig struct {
	// Base URL of the GPT-SoVITS style service
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Default API version for voices that do not name one
	Version string `yaml:"version" mapstructure:"version"`

	// Per-request synthesis timeout
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Timeout for the voice catalog request
	CatalogTimeout time.Duration `yaml:"catalog_timeout" mapstructure:"catalog_timeout"`

	// Request pacing, 0 disables it
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// How the service splits long text
	TextSplitMethod string `yaml:"text_split_method" mapstructure:"text_split_method"`

	// Server side batch size
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// GenerationConfig holds scheduler settings
type GenerationConfig struct {
	// Maximum synthesis calls in flight
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// Emotion used when none is requested or the voice lacks it
	DefaultEmotion string `yaml:"default_emotion" mapstructure:"default_emotion"`

	// Language used when the text has no kana
	FallbackLanguage string `yaml:"fallback_language" mapstructure:"fallback_language"`

	// Global speaking rate
	Speed float64 `yaml:"speed" mapstructure:"speed"`
}

// CacheConfig holds clip cache settings
type CacheConfig struct {
	// Entry lifetime
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`

	// Trim is triggered above this many entries
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`

	// Entries kept after a trim
	TrimTo int `yaml:"trim_to" mapstructure:"trim_to"`
}

// PlaybackConfig holds playback settings
type PlaybackConfig struct {
	// Fetch the next clip while the current one plays
	Preload bool `yaml:"preload" mapstructure:"preload"`

	// Spool fetched clips to compressed temp files in this directory
	SpoolDir string `yaml:"spool_dir" mapstructure:"spool_dir"`

	// Volume level (0.0 to 1.0)
	Volume float64 `yaml:"volume" mapstructure:"volume"`

	// Start narration automatically when watched text changes
	AutoPlay bool `yaml:"auto_play" mapstructure:"auto_play"`
}

// DetectionConfig holds text detection settings
type DetectionConfig struct {
	// Detection mode, see the detect package
	Mode string `yaml:"mode" mapstructure:"mode"`

	// "japanese" for 「」 or "western" for ""
	QuotationStyle string `yaml:"quotation_style" mapstructure:"quotation_style"`

	// Voice for narration parts
	NarrationVoice string `yaml:"narration_voice" mapstructure:"narration_voice"`

	// Voice for quoted dialogue
	DialogueVoice string `yaml:"dialogue_voice" mapstructure:"dialogue_voice"`

	// Voice when nothing more specific applies
	DefaultVoice string `yaml:"default_voice" mapstructure:"default_voice"`

	// Only voice the selected character
	SingleCharacter bool `yaml:"single_character" mapstructure:"single_character"`

	// Character voiced in single character mode
	Character string `yaml:"character" mapstructure:"character"`

	// Per-character voice assignments
	Characters map[string]ttypes.VoiceSetting `yaml:"characters" mapstructure:"characters"`
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	// Listen address for /metrics, empty disables it
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:         "http://127.0.0.1:8000",
			Version:         "v4",
			Timeout:         30 * time.Second,
			CatalogTimeout:  10 * time.Second,
			TextSplitMethod: "按标点符号切",
			BatchSize:       10,
		},
		Generation: GenerationConfig{
			MaxConcurrent:    3,
			DefaultEmotion:   DefaultEmotion,
			FallbackLanguage: LanguageChinese,
			Speed:            1.0,
		},
		Cache: CacheConfig{
			TTL:        300 * time.Second,
			MaxEntries: 50,
			TrimTo:     30,
		},
		Playback: PlaybackConfig{
			Preload: true,
			Volume:  1.0,
		},
		Detection: DetectionConfig{
			Mode:           "narration_and_dialogue",
			QuotationStyle: "japanese",
			Characters:     map[string]ttypes.VoiceSetting{},
		},
	}
}

// Defaults returns the task defaults derived from the configuration.
func (c *Config) Defaults() Defaults {
	return Defaults{
		Version:          c.API.Version,
		Emotion:          c.Generation.DefaultEmotion,
		Speed:            c.Generation.Speed,
		FallbackLanguage: c.Generation.FallbackLanguage,
	}
}

// SetDefaults registers every default value on v so that environment
// variables and flags can override keys missing from the file.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.version", d.API.Version)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.catalog_timeout", d.API.CatalogTimeout)
	v.SetDefault("api.requests_per_minute", d.API.RequestsPerMinute)
	v.SetDefault("api.text_split_method", d.API.TextSplitMethod)
	v.SetDefault("api.batch_size", d.API.BatchSize)
	v.SetDefault("generation.max_concurrent", d.Generation.MaxConcurrent)
	v.SetDefault("generation.default_emotion", d.Generation.DefaultEmotion)
	v.SetDefault("generation.fallback_language", d.Generation.FallbackLanguage)
	v.SetDefault("generation.speed", d.Generation.Speed)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.trim_to", d.Cache.TrimTo)
	v.SetDefault("playback.preload", d.Playback.Preload)
	v.SetDefault("playback.spool_dir", d.Playback.SpoolDir)
	v.SetDefault("playback.volume", d.Playback.Volume)
	v.SetDefault("playback.auto_play", d.Playback.AutoPlay)
	v.SetDefault("detection.mode", d.Detection.Mode)
	v.SetDefault("detection.quotation_style", d.Detection.QuotationStyle)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// LoadConfig unmarshals the configuration held by v on top of the defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// viper lower-cases map keys; character names are case sensitive.
	if path := v.ConfigFileUsed(); path != "" {
		chars, err := readCharacters(path)
		if err != nil {
			return nil, err
		}
		if chars != nil {
			config.Detection.Characters = chars
		}
	}
	if config.Detection.Characters == nil {
		config.Detection.Characters = map[string]ttypes.VoiceSetting{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.Debug("Loaded configuration", "path", used)
	} else {
		log.Debug("No config file found, using defaults")
	}
	return config, nil
}

// LoadConfigFile reads a single YAML file.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadConfig(v)
}

func readCharacters(path string) (map[string]ttypes.VoiceSetting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var doc struct {
		Detection struct {
			Characters map[string]ttypes.VoiceSetting `yaml:"characters"`
		} `yaml:"detection"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse characters: %w", err)
	}
	return doc.Detection.Characters, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(config *Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("Saved configuration", "path", path)
	return nil
}

// RecordCharacters adds names not yet configured as muted characters and
// reports whether anything changed.
func (c *Config) RecordCharacters(names []string) bool {
	changed := false
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := c.Detection.Characters[name]; ok {
			continue
		}
		c.Detection.Characters[name] = ttypes.VoiceSetting{Voice: ttypes.DoNotPlay}
		changed = true
	}
	return changed
}

// GenerateExampleConfig generates an example configuration file
func GenerateExampleConfig() string {
	config := DefaultConfig()

	speed := 1.1
	config.Detection.NarrationVoice = "narrator"
	config.Detection.DialogueVoice = "heroine"
	config.Detection.Characters = map[string]ttypes.VoiceSetting{
		"Alice": {Voice: "heroine", Version: "v2", Speed: &speed},
		"Bob":   {Voice: ttypes.DoNotPlay},
	}

	data, _ := yaml.Marshal(config)

	header := `# sovits-player configuration
#
# Characters set to _DO_NOT_PLAY_ are detected but never voiced.
# New characters are added here automatically with that value.

`

	return header + string(data)
}
