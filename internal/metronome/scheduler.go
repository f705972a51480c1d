package metronome

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ClickEvent is one metronome pulse.
type ClickEvent struct {
	Accent      bool      `json:"accent"`
	Beat        int       `json:"beat"`
	BeatsPerBar int       `json:"beats_per_bar"`
	Volume      int       `json:"volume"`
	At          time.Time `json:"at"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Settings Settings      `json:"settings"`
	Enabled  bool          `json:"enabled"`
	Playing  bool          `json:"playing"`
	Running  bool          `json:"running"`
	NextBeat int           `json:"next_beat"`
	Period   time.Duration `json:"period"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithBuffer sets the capacity of the click channel.
func WithBuffer(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// Scheduler emits clicks while it is both enabled and the transport is playing.
//
// All mutators take the same lock and funnel through restartLocked, so there is
// never more than one live ticker. Clicks are delivered on the channel returned
// by Clicks; a consumer that falls behind loses clicks instead of blocking the
// timer. The channel is closed by Close.
type Scheduler struct {
	clock  clockwork.Clock
	logger *slog.Logger
	buffer int

	mu       sync.Mutex
	settings Settings
	enabled  bool
	playing  bool
	closed   bool
	current  *run

	clicks chan ClickEvent
	wg     sync.WaitGroup
}

// run is the state of one live ticker. It is discarded, never reused, when
// anything changes.
type run struct {
	ticker      clockwork.Ticker
	period      time.Duration
	beatsPerBar int
	beat        int
	stop        chan struct{}
}

// New creates an idle scheduler. The metronome starts out enabled, matching the
// practice page; nothing is emitted until the transport reports playing.
func New(settings Settings, opts ...Option) (*Scheduler, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		buffer:   16,
		settings: settings,
		enabled:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clicks = make(chan ClickEvent, s.buffer)
	return s, nil
}

// Clicks returns the event stream. It is closed once the scheduler is closed.
func (s *Scheduler) Clicks() <-chan ClickEvent {
	return s.clicks
}

// Configure validates and applies new settings. A running metronome restarts
// with the new period and the bar position reset, even if nothing changed.
func (s *Scheduler) Configure(settings Settings) error {
	if err := settings.Validate(); err != nil {
		s.logger.Warn("Rejected metronome config", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.settings = settings
	s.logger.Debug("Metronome configured",
		"bpm", settings.BPM,
		"time_signature", settings.TimeSignature,
		"volume", settings.Volume)
	s.restartLocked()
	return nil
}

// SetVolume changes the volume of future clicks without touching the timer.
func (s *Scheduler) SetVolume(volume int) error {
	if err := validateVolume(volume); err != nil {
		s.logger.Warn("Rejected metronome volume", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.settings.Volume = volume
	return nil
}

// SetEnabled toggles the metronome. While the transport is stopped it only
// records the flag.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.enabled == enabled {
		return
	}
	s.enabled = enabled
	s.restartLocked()
}

// OnTransportChange is called by the host player on play and pause.
func (s *Scheduler) OnTransportChange(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.playing == playing {
		return
	}
	s.playing = playing
	s.restartLocked()
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Settings: s.settings,
		Enabled:  s.enabled,
		Playing:  s.playing,
		Period:   Period(s.settings.BPM),
	}
	if s.current != nil {
		st.Running = true
		st.NextBeat = s.current.beat
		st.Period = s.current.period
	}
	return st
}

// Close stops the timer and closes the click channel. No click is delivered
// after Close returns. Close is safe to call more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopLocked()
	close(s.clicks)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("Metronome closed")
	return nil
}

// restartLocked tears down the live ticker and, if the metronome should be
// sounding, builds a new one. Must be called with mu held.
func (s *Scheduler) restartLocked() {
	wasRunning := s.current != nil
	s.stopLocked()

	if s.closed || !s.enabled || !s.playing {
		if wasRunning {
			s.logger.Info("Metronome stopped", "enabled", s.enabled, "playing", s.playing)
		}
		return
	}

	r := &run{
		period:      Period(s.settings.BPM),
		beatsPerBar: s.settings.TimeSignature.BeatsPerBar(),
		stop:        make(chan struct{}),
	}
	r.ticker = s.clock.NewTicker(r.period)
	s.current = r

	s.wg.Add(1)
	go s.loop(r)

	s.logger.Info("Metronome started",
		"bpm", s.settings.BPM,
		"time_signature", s.settings.TimeSignature,
		"period", r.period)
}

// stopLocked cancels the live ticker. The loop goroutine may still be waking up,
// but tick ignores any run that is no longer current. Must be called with mu held.
func (s *Scheduler) stopLocked() {
	if s.current == nil {
		return
	}
	s.current.ticker.Stop()
	close(s.current.stop)
	s.current = nil
}

func (s *Scheduler) loop(r *run) {
	defer s.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case at := <-r.ticker.Chan():
			s.tick(r, at)
		}
	}
}

func (s *Scheduler) tick(r *run, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != r {
		return
	}

	ev := ClickEvent{
		Accent:      r.beat == 0,
		Beat:        r.beat,
		BeatsPerBar: r.beatsPerBar,
		Volume:      s.settings.Volume,
		At:          at,
	}
	r.beat = (r.beat + 1) % r.beatsPerBar

	select {
	case s.clicks <- ev:
	default:
		s.logger.Debug("Click dropped, consumer is behind", "beat", ev.Beat)
	}
}
