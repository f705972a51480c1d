package click

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/jamclick/internal/metronome"
)

func upwardCrossings(samples []float64) int {
	n := 0
	for i := 1; i < len(samples); i++ {
		if samples[i-1] < 0 && samples[i] >= 0 {
			n++
		}
	}
	return n
}

func peak(samples []float64) float64 {
	p := 0.0
	for _, v := range samples {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

func TestGain(t *testing.T) {
	tests := []struct {
		volume int
		want   float64
	}{
		{-5, 0},
		{0, 0},
		{50, 0.15},
		{100, MaxGain},
		{150, MaxGain},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Gain(tt.volume), 1e-9, "volume %d", tt.volume)
	}
}

func TestTone(t *testing.T) {
	accent := Tone(true, 100, DefaultSampleRate)
	beat := Tone(false, 100, DefaultSampleRate)

	require.Len(t, accent, 2205)
	require.Len(t, beat, 2205)

	// 50ms of 1000Hz and 800Hz.
	assert.InDelta(t, 50, upwardCrossings(accent), 1)
	assert.InDelta(t, 40, upwardCrossings(beat), 1)

	assert.LessOrEqual(t, peak(accent), MaxGain)
	assert.Greater(t, peak(accent), MaxGain*0.95)
	assert.Zero(t, accent[len(accent)-1], "tone fades to silence")

	assert.Zero(t, peak(Tone(true, 0, DefaultSampleRate)))
}

func TestRenderTrack(t *testing.T) {
	settings := metronome.Settings{BPM: 120, TimeSignature: metronome.ThreeFour, Volume: 80}
	const sr = 8000

	samples, err := RenderTrack(settings, 2, sr)
	require.NoError(t, err)

	// 6 beats of 500ms.
	require.Len(t, samples, 6*sr/2)

	toneLen := len(Tone(true, 80, sr))
	for i := 0; i < 6; i++ {
		start := i * sr / 2
		window := samples[start : start+toneLen]
		want := 40
		if i%3 == 0 {
			want = 50
		}
		assert.InDelta(t, want, upwardCrossings(window), 1, "beat %d", i)

		gap := samples[start+toneLen : start+sr/2]
		assert.Zero(t, peak(gap), "silence after beat %d", i)
	}
}

func TestRenderTrack_Invalid(t *testing.T) {
	_, err := RenderTrack(metronome.Settings{BPM: 300, TimeSignature: metronome.FourFour, Volume: 50}, 1, sr8k)
	assert.ErrorIs(t, err, metronome.ErrInvalidConfig)

	_, err = RenderTrack(metronome.DefaultSettings(), 1, 0)
	assert.Error(t, err)

	samples, err := RenderTrack(metronome.DefaultSettings(), 0, sr8k)
	assert.NoError(t, err)
	assert.Empty(t, samples)
}

const sr8k = 8000

func TestWriteWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "click.wav")
	samples := Tone(true, 100, sr8k)
	samples = append(samples, 2, -2)

	require.NoError(t, WriteWAVFile(path, samples, sr8k))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.EqualValues(t, sr8k, dec.SampleRate)
	assert.EqualValues(t, 1, dec.NumChans)
	assert.EqualValues(t, 16, dec.BitDepth)
	require.Len(t, buf.Data, len(samples))

	// Out-of-range samples are clamped to full scale.
	assert.Equal(t, math.MaxInt16, buf.Data[len(samples)-2])
	assert.Equal(t, -math.MaxInt16, buf.Data[len(samples)-1])
}
