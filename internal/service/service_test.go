package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/jamclick/internal/config"
	"github.com/audiolibrelab/jamclick/internal/metronome"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

const profilesYAML = `
active_config: default
configs:
  default:
    metronome:
      bpm: 120
      time_signature: 4/4
      volume: 50
  slow:
    metronome:
      bpm: 60
      time_signature: 3/4
  silent:
    metronome:
      enabled: false
`

func newTestService(t *testing.T, cfg *config.Config, configFile string) (*PracticeService, fakeClock) {
	t.Helper()
	var fc fakeClock = clockwork.NewFakeClock()
	svc, err := New(cfg, configFile, metronome.WithClock(fc))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, fc
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jamclick.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0644))
	return path
}

func receive(t *testing.T, ch <-chan metronome.ClickEvent) metronome.ClickEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscriber channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for click")
		return metronome.ClickEvent{}
	}
}

func TestService_FansOutClicks(t *testing.T) {
	svc, fc := newTestService(t, nil, "")

	_, a := svc.Subscribe(4)
	_, b := svc.Subscribe(4)
	assert.Equal(t, 2, svc.Status().Subscribers)

	svc.SetTransport(true)
	fc.Advance(500 * time.Millisecond)

	assert.True(t, receive(t, a).Accent)
	assert.True(t, receive(t, b).Accent)
}

func TestService_UnsubscribeClosesChannel(t *testing.T) {
	svc, _ := newTestService(t, nil, "")

	id, ch := svc.Subscribe(1)
	svc.Unsubscribe(id)
	svc.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, svc.Status().Subscribers)
}

func TestService_CloseClosesSubscribers(t *testing.T) {
	svc, fc := newTestService(t, nil, "")
	_, ch := svc.Subscribe(4)
	svc.SetTransport(true)

	require.NoError(t, svc.Close())
	fc.Advance(2 * time.Second)

	for range ch {
		t.Fatal("no click expected after close")
	}

	_, late := svc.Subscribe(1)
	_, ok := <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestService_ConfigureErrorsAreRecorded(t *testing.T) {
	svc, _ := newTestService(t, nil, "")

	err := svc.Configure(metronome.Settings{BPM: 500, TimeSignature: metronome.FourFour, Volume: 50})
	assert.ErrorIs(t, err, metronome.ErrInvalidConfig)
	assert.Contains(t, svc.GetLastError(), "Invalid metronome settings")
	assert.Equal(t, 120, svc.Status().Settings.BPM)

	require.NoError(t, svc.Configure(metronome.Settings{BPM: 90, TimeSignature: metronome.ThreeFour, Volume: 20}))
	assert.Empty(t, svc.GetLastError())
	assert.Equal(t, 90, svc.GetConfig().Metronome.BPM)

	assert.Error(t, svc.SetVolume(101))
	require.NoError(t, svc.SetVolume(30))
	assert.Equal(t, 30, svc.Status().Settings.Volume)
}

func TestService_StatusMessages(t *testing.T) {
	svc, _ := newTestService(t, nil, "")

	st := svc.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "Metronome starts automatically when the music plays", st.Message)
	assert.Equal(t, 500.0, st.PeriodMs)
	assert.Equal(t, config.Default().TempoPresets, st.TempoPresets)

	svc.SetTransport(true)
	st = svc.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "Metronome is running with the music", st.Message)

	svc.SetEnabled(false)
	st = svc.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "Metronome is off", st.Message)
	assert.False(t, svc.GetConfig().Enabled)
}

func TestService_LoadProfile(t *testing.T) {
	configFile := writeConfig(t)
	cfg, err := config.LoadWithProfile(configFile, "")
	require.NoError(t, err)

	svc, fc := newTestService(t, cfg, configFile)
	_, ch := svc.Subscribe(8)
	svc.SetTransport(true)

	require.NoError(t, svc.LoadProfile("slow"))
	st := svc.Status()
	assert.Equal(t, "slow", st.Profile)
	assert.Equal(t, 60, st.Settings.BPM)
	assert.Equal(t, metronome.ThreeFour, st.Settings.TimeSignature)

	for i := 0; i < 4; i++ {
		fc.Advance(time.Second)
		ev := receive(t, ch)
		assert.Equal(t, i%3 == 0, ev.Accent, "click %d", i)
	}

	require.NoError(t, svc.LoadProfile("silent"))
	assert.False(t, svc.Status().Running)

	err = svc.LoadProfile("missing")
	assert.ErrorIs(t, err, config.ErrProfileNotFound)
	assert.Contains(t, svc.GetLastError(), "Failed to load profile")
	assert.Equal(t, "silent", svc.Status().Profile)

	names, err := svc.Profiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "silent", "slow"}, names)
}

func TestService_LoadProfileWithoutFile(t *testing.T) {
	svc, _ := newTestService(t, nil, "")

	assert.Error(t, svc.LoadProfile("slow"))

	names, err := svc.Profiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, names)
}
