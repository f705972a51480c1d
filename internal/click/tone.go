// Package click synthesizes metronome click sounds and renders click tracks.
package click

import (
	"fmt"
	"math"
	"time"

	"github.com/audiolibrelab/jamclick/internal/metronome"
)

const (
	AccentFrequency = 1000.0
	BeatFrequency   = 800.0
	Duration        = 50 * time.Millisecond

	// MaxGain is the gain at volume 100. Clicks sit well under full scale so
	// they don't clip on top of a backing track.
	MaxGain = 0.3

	DefaultSampleRate = 44100

	fadeOut = 5 * time.Millisecond
)

// Gain maps a 0-100 volume to a linear amplitude.
func Gain(volume int) float64 {
	if volume <= metronome.MinVolume {
		return 0
	}
	if volume >= metronome.MaxVolume {
		return MaxGain
	}
	return float64(volume) / 100 * MaxGain
}

// Frequency returns the pitch used for a click.
func Frequency(accent bool) float64 {
	if accent {
		return AccentFrequency
	}
	return BeatFrequency
}

// Tone returns one mono click as samples in [-1, 1].
func Tone(accent bool, volume, sampleRate int) []float64 {
	n := samplesFor(Duration, sampleRate)
	fade := samplesFor(fadeOut, sampleRate)
	gain := Gain(volume)
	freq := Frequency(accent)

	out := make([]float64, n)
	for i := range out {
		amp := gain
		if remaining := n - i; remaining <= fade {
			amp *= float64(remaining-1) / float64(fade)
		}
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// RenderTrack lays out clicks for the given number of bars. Click i starts at
// i * period, the same grid the live scheduler emits on, so the first click is
// the downbeat at t=0.
func RenderTrack(settings metronome.Settings, bars, sampleRate int) ([]float64, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0, got %d", sampleRate)
	}
	if bars <= 0 {
		return nil, nil
	}

	beatsPerBar := settings.TimeSignature.BeatsPerBar()
	beats := bars * beatsPerBar
	period := metronome.Period(settings.BPM)

	accent := Tone(true, settings.Volume, sampleRate)
	beat := Tone(false, settings.Volume, sampleRate)

	out := make([]float64, samplesFor(time.Duration(beats)*period, sampleRate))
	for i := 0; i < beats; i++ {
		tone := beat
		if i%beatsPerBar == 0 {
			tone = accent
		}
		start := samplesFor(time.Duration(i)*period, sampleRate)
		for j, v := range tone {
			if start+j >= len(out) {
				break
			}
			out[start+j] += v
		}
	}
	return out, nil
}

func samplesFor(d time.Duration, sampleRate int) int {
	return int(d * time.Duration(sampleRate) / time.Second)
}
