package metronome

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinBPM    = 40
	MaxBPM    = 240
	MinVolume = 0
	MaxVolume = 100
)

var (
	// ErrInvalidConfig is returned when a configuration call is rejected.
	// The scheduler keeps its previous settings.
	ErrInvalidConfig = errors.New("invalid metronome config")

	// ErrClosed is returned by mutators called after Close.
	ErrClosed = errors.New("metronome closed")
)

// TimeSignature is one of the supported meters, written as "beats/unit".
type TimeSignature string

const (
	TwoFour   TimeSignature = "2/4"
	ThreeFour TimeSignature = "3/4"
	FourFour  TimeSignature = "4/4"
	SixEight  TimeSignature = "6/8"
)

// TimeSignatures lists the supported meters in display order.
var TimeSignatures = []TimeSignature{TwoFour, ThreeFour, FourFour, SixEight}

// ParseTimeSignature accepts the forms in TimeSignatures, ignoring surrounding spaces.
func ParseTimeSignature(s string) (TimeSignature, error) {
	ts := TimeSignature(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if !ts.Valid() {
		return "", fmt.Errorf("%w: time signature must be one of %v, got %q", ErrInvalidConfig, TimeSignatures, s)
	}
	return ts, nil
}

// Valid reports whether ts is a supported meter.
func (ts TimeSignature) Valid() bool {
	for _, known := range TimeSignatures {
		if ts == known {
			return true
		}
	}
	return false
}

// BeatsPerBar returns the numerator, or 0 for an unsupported signature.
func (ts TimeSignature) BeatsPerBar() int {
	if !ts.Valid() {
		return 0
	}
	n, err := strconv.Atoi(strings.SplitN(string(ts), "/", 2)[0])
	if err != nil {
		return 0
	}
	return n
}

func (ts TimeSignature) String() string {
	return string(ts)
}

// Settings is the user-facing metronome configuration.
type Settings struct {
	BPM           int           `json:"bpm" yaml:"bpm" mapstructure:"bpm"`
	TimeSignature TimeSignature `json:"time_signature" yaml:"time_signature" mapstructure:"time_signature"`
	Volume        int           `json:"volume" yaml:"volume" mapstructure:"volume"`
}

// DefaultSettings mirrors the values the practice page starts with.
func DefaultSettings() Settings {
	return Settings{BPM: 120, TimeSignature: FourFour, Volume: 50}
}

// Validate checks every field and wraps ErrInvalidConfig on failure.
func (s Settings) Validate() error {
	if s.BPM < MinBPM || s.BPM > MaxBPM {
		return fmt.Errorf("%w: bpm must be between %d and %d, got %d", ErrInvalidConfig, MinBPM, MaxBPM, s.BPM)
	}
	if !s.TimeSignature.Valid() {
		return fmt.Errorf("%w: time signature must be one of %v, got %q", ErrInvalidConfig, TimeSignatures, s.TimeSignature)
	}
	return validateVolume(s.Volume)
}

func validateVolume(v int) error {
	if v < MinVolume || v > MaxVolume {
		return fmt.Errorf("%w: volume must be between %d and %d, got %d", ErrInvalidConfig, MinVolume, MaxVolume, v)
	}
	return nil
}

// Period is the nominal time between clicks at bpm.
func Period(bpm int) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Minute / time.Duration(bpm)
}
