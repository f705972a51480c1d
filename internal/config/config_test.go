package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/audiolibrelab/jamclick/internal/metronome"
)

func TestResolve_ActiveProfileInheritsFromDefault(t *testing.T) {
	cfg, err := LoadWithProfile(createTempConfig(t, validConfig), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Profile != "ballad" {
		t.Errorf("Expected profile 'ballad', got %s", cfg.Profile)
	}

	want := metronome.Settings{BPM: 72, TimeSignature: metronome.SixEight, Volume: 40}
	if cfg.Metronome != want {
		t.Errorf("Expected %+v, got %+v", want, cfg.Metronome)
	}
	if !cfg.Enabled {
		t.Error("Expected enabled inherited from default")
	}

	expectedInheritance := map[string]string{
		"bpm":            "profile-specific",
		"time_signature": "profile-specific",
		"volume":         "inherited",
		"enabled":        "inherited",
	}
	if !reflect.DeepEqual(cfg.Inheritance, expectedInheritance) {
		t.Errorf("Expected inheritance %v, got %v", expectedInheritance, cfg.Inheritance)
	}
}

func TestResolve_ExplicitZeroValues(t *testing.T) {
	cfg, err := LoadWithProfile(createTempConfig(t, validConfig), "warmup")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Metronome.Volume != 0 {
		t.Errorf("Expected explicit volume 0, got %d", cfg.Metronome.Volume)
	}
	if cfg.Enabled {
		t.Error("Expected explicit enabled false")
	}
	// Not set in warmup, so from default
	if cfg.Metronome.BPM != 100 || cfg.Metronome.TimeSignature != metronome.FourFour {
		t.Errorf("Expected bpm/signature from default, got %+v", cfg.Metronome)
	}
}

func TestResolve_GlobalSections(t *testing.T) {
	cfg, err := LoadWithProfile(createTempConfig(t, validConfig), "default")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Sound.Player != "aplay" || cfg.Sound.SampleRate != 48000 {
		t.Errorf("Expected aplay at 48000, got %+v", cfg.Sound)
	}
	if !cfg.Sound.Enabled {
		t.Error("Expected sound enabled by default when the key is absent")
	}
	if !reflect.DeepEqual(cfg.TempoPresets, []int{70, 90, 110}) {
		t.Errorf("Expected tempo presets from file, got %v", cfg.TempoPresets)
	}
}

func TestResolve_EmptyFileUsesBuiltins(t *testing.T) {
	cfg, err := Resolve(&RootConfig{}, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	def := Default()
	if cfg.Metronome != def.Metronome {
		t.Errorf("Expected built-in settings %+v, got %+v", def.Metronome, cfg.Metronome)
	}
	if cfg.Inheritance["bpm"] != "built-in" {
		t.Errorf("Expected built-in bpm, got %s", cfg.Inheritance["bpm"])
	}
	if !reflect.DeepEqual(cfg.TempoPresets, def.TempoPresets) {
		t.Errorf("Expected default presets, got %v", cfg.TempoPresets)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Metronome.Validate(); err != nil {
		t.Fatalf("Default settings must be valid: %v", err)
	}
	if cfg.Metronome.BPM != 120 || cfg.Metronome.TimeSignature != metronome.FourFour || cfg.Metronome.Volume != 50 {
		t.Errorf("Unexpected defaults: %+v", cfg.Metronome)
	}
	if !cfg.Enabled {
		t.Error("Metronome should be enabled by default")
	}
}

func TestProfileNames(t *testing.T) {
	names, err := ProfileNames(createTempConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"ballad", "default", "warmup"}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("Expected %v, got %v", expected, names)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, validConfig)

	if err := UpdateActiveConfig(configFile, "warmup"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected reload to succeed, got: %v", err)
	}
	if cfg.Profile != "warmup" {
		t.Errorf("Expected active profile 'warmup', got %s", cfg.Profile)
	}

	if err := UpdateActiveConfig(configFile, "metal"); err == nil {
		t.Error("Expected error for unknown profile")
	}
	if err := UpdateActiveConfig("", "warmup"); err == nil {
		t.Error("Expected error for empty config path")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("Cannot get home directory: %v", err)
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/.config/jamclick.yaml", filepath.Join(homeDir, ".config/jamclick.yaml")},
		{"/etc/jamclick.yaml", "/etc/jamclick.yaml"},
		{"relative.yaml", "relative.yaml"},
	}

	for _, tt := range tests {
		if result := ExpandPath(tt.input); result != tt.expected {
			t.Errorf("ExpandPath(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}
