package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/jamclick/internal/metronome"
)

// ErrProfileNotFound is returned when a requested profile is not in the file.
var ErrProfileNotFound = errors.New("configuration profile not found")

// RootConfig mirrors the config file layout.
type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Server       *ServerConfig             `mapstructure:"server,omitempty" yaml:"server,omitempty"`
	Sound        *SoundSection             `mapstructure:"sound,omitempty" yaml:"sound,omitempty"`
	TempoPresets []int                     `mapstructure:"tempo_presets" yaml:"tempo_presets"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

// ConfigProfile is one named practice setup. Zero fields inherit from the
// default profile.
type ConfigProfile struct {
	Metronome MetronomeProfile `mapstructure:"metronome" yaml:"metronome"`
}

// MetronomeProfile uses pointers so an explicit "enabled: false" or
// "volume: 0" can be told apart from a missing key.
type MetronomeProfile struct {
	BPM           int    `mapstructure:"bpm" yaml:"bpm,omitempty"`
	TimeSignature string `mapstructure:"time_signature" yaml:"time_signature,omitempty"`
	Volume        *int   `mapstructure:"volume" yaml:"volume,omitempty"`
	Enabled       *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// SoundSection is the file form of SoundConfig.
type SoundSection struct {
	Enabled    *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Player     string `mapstructure:"player" yaml:"player,omitempty"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate,omitempty"`
}

type SoundConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Player     string `mapstructure:"player" yaml:"player"` // "auto", "aplay", "paplay", "pw-play", "ffplay"
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Config is the resolved configuration for one profile.
type Config struct {
	Profile      string             `yaml:"profile"`
	Metronome    metronome.Settings `yaml:"metronome"`
	Enabled      bool               `yaml:"enabled"`
	Server       ServerConfig       `yaml:"server"`
	Sound        SoundConfig        `yaml:"sound"`
	TempoPresets []int              `yaml:"tempo_presets"`

	// Where each metronome field came from, for the profiles command
	Inheritance map[string]string `yaml:"-"`
}

// DefaultPath is where the CLI looks when --config is not given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/jamclick.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Profile:   "default",
		Metronome: metronome.DefaultSettings(),
		Enabled:   true,
		Server:    ServerConfig{Port: "8080"},
		Sound: SoundConfig{
			Enabled:    true,
			Player:     "auto",
			SampleRate: 44100,
		},
		TempoPresets: []int{60, 80, 100, 120, 140, 160, 180},
	}
}

// LoadWithProfile reads configFile and resolves profile, or the file's
// active_config when profile is empty.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return Resolve(rootConfig, profile)
}

// Resolve builds the Config for one profile of an already parsed file.
func Resolve(rootConfig *RootConfig, profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selected, exists := rootConfig.Configs[configName]
	if !exists && configName != "default" {
		return nil, fmt.Errorf("%w: '%s'", ErrProfileNotFound, configName)
	}

	cfg := Default()
	cfg.Profile = configName
	cfg.Inheritance = map[string]string{
		"bpm":            "built-in",
		"time_signature": "built-in",
		"volume":         "built-in",
		"enabled":        "built-in",
	}

	if rootConfig.Server != nil && rootConfig.Server.Port != "" {
		cfg.Server.Port = rootConfig.Server.Port
	}
	if rootConfig.Sound != nil {
		if rootConfig.Sound.Enabled != nil {
			cfg.Sound.Enabled = *rootConfig.Sound.Enabled
		}
		if rootConfig.Sound.Player != "" {
			cfg.Sound.Player = rootConfig.Sound.Player
		}
		if rootConfig.Sound.SampleRate != 0 {
			cfg.Sound.SampleRate = rootConfig.Sound.SampleRate
		}
	}
	if len(rootConfig.TempoPresets) > 0 {
		cfg.TempoPresets = rootConfig.TempoPresets
	}

	// Default profile first, then the selected one on top
	if configName != "default" {
		if base, ok := rootConfig.Configs["default"]; ok {
			applyProfile(cfg, base, "inherited")
		}
	}
	if selected != nil {
		applyProfile(cfg, selected, "profile-specific")
	}

	if err := cfg.Metronome.Validate(); err != nil {
		return nil, fmt.Errorf("config '%s': %w", configName, err)
	}

	return cfg, nil
}

func applyProfile(cfg *Config, p *ConfigProfile, source string) {
	m := p.Metronome
	if m.BPM != 0 {
		cfg.Metronome.BPM = m.BPM
		cfg.Inheritance["bpm"] = source
	}
	if m.TimeSignature != "" {
		cfg.Metronome.TimeSignature = metronome.TimeSignature(strings.TrimSpace(m.TimeSignature))
		cfg.Inheritance["time_signature"] = source
	}
	if m.Volume != nil {
		cfg.Metronome.Volume = *m.Volume
		cfg.Inheritance["volume"] = source
	}
	if m.Enabled != nil {
		cfg.Enabled = *m.Enabled
		cfg.Inheritance["enabled"] = source
	}
}

// ValidateConfigurationFormat parses configFile and checks every profile.
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("JAMCLICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// AutomaticEnv only applies to keys read through Get, so pick up the
	// top-level overrides explicitly.
	if active := v.GetString("active_config"); active != "" {
		rootConfig.ActiveConfig = active
	}
	if port := v.GetString("server.port"); port != "" {
		if rootConfig.Server == nil {
			rootConfig.Server = &ServerConfig{}
		}
		rootConfig.Server.Port = port
	}

	for name, profile := range rootConfig.Configs {
		if err := validateProfile(profile); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", name, err)
		}
	}

	if rootConfig.Sound != nil && rootConfig.Sound.SampleRate < 0 {
		return nil, fmt.Errorf("sound.sample_rate must be > 0, got: %d", rootConfig.Sound.SampleRate)
	}

	for i, bpm := range rootConfig.TempoPresets {
		if bpm < metronome.MinBPM || bpm > metronome.MaxBPM {
			return nil, fmt.Errorf("tempo_presets[%d]: bpm must be between %d and %d, got: %d",
				i, metronome.MinBPM, metronome.MaxBPM, bpm)
		}
	}

	return &rootConfig, nil
}

// validateProfile checks the fields a profile sets. Missing fields are fine,
// they are filled in by Resolve.
func validateProfile(p *ConfigProfile) error {
	if p == nil {
		return nil
	}
	m := p.Metronome

	if m.BPM != 0 && (m.BPM < metronome.MinBPM || m.BPM > metronome.MaxBPM) {
		return fmt.Errorf("metronome.bpm must be between %d and %d, got: %d", metronome.MinBPM, metronome.MaxBPM, m.BPM)
	}
	if m.TimeSignature != "" {
		if _, err := metronome.ParseTimeSignature(m.TimeSignature); err != nil {
			return fmt.Errorf("metronome.time_signature: %w", err)
		}
	}
	if m.Volume != nil && (*m.Volume < metronome.MinVolume || *m.Volume > metronome.MaxVolume) {
		return fmt.Errorf("metronome.volume must be between %d and %d, got: %d", metronome.MinVolume, metronome.MaxVolume, *m.Volume)
	}

	return nil
}

// ProfileNames lists the profiles defined in configFile, sorted.
func ProfileNames(configFile string) ([]string, error) {
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rootConfig.Configs))
	for name := range rootConfig.Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return err
	}
	if _, ok := rootConfig.Configs[newActiveConfig]; !ok {
		return fmt.Errorf("%w: '%s'", ErrProfileNotFound, newActiveConfig)
	}

	// Separate viper instance, so env overrides are not written back
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// ExpandPath resolves a leading "~/" against the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
