package service

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/jamclick/internal/config"
	"github.com/audiolibrelab/jamclick/internal/metronome"
)

// Service is the practice session API shared by the CLI and the web server.
type Service interface {
	// Metronome operations
	Configure(settings metronome.Settings) error
	SetVolume(volume int) error
	SetEnabled(enabled bool)

	// Transport operations, driven by whatever is playing the music
	SetTransport(playing bool)

	// Click stream
	Subscribe(buffer int) (string, <-chan metronome.ClickEvent)
	Unsubscribe(id string)

	// Configuration operations
	LoadProfile(profile string) error
	Profiles() ([]string, error)
	GetConfig() *config.Config

	// Information operations
	Status() Status
	GetLastError() string

	Close() error
}

// Status is what the UI shows about the session.
type Status struct {
	Settings     metronome.Settings `json:"settings"`
	Enabled      bool               `json:"enabled"`
	Playing      bool               `json:"playing"`
	Running      bool               `json:"running"`
	NextBeat     int                `json:"next_beat"`
	PeriodMs     float64            `json:"period_ms"`
	Message      string             `json:"message"`
	Profile      string             `json:"profile"`
	TempoPresets []int              `json:"tempo_presets"`
	Subscribers  int                `json:"subscribers"`
	LastError    string             `json:"last_error,omitempty"`
}

var _ Service = (*PracticeService)(nil)

// PracticeService is the main service implementation
type PracticeService struct {
	configFile string
	scheduler  *metronome.Scheduler

	cfgMutex sync.RWMutex
	cfg      *config.Config

	subsMutex   sync.RWMutex
	subscribers map[string]chan metronome.ClickEvent
	closed      bool

	dispatchDone chan struct{}

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service around a fresh scheduler configured from cfg.
// configFile may be empty when running on built-in defaults.
func New(cfg *config.Config, configFile string, opts ...metronome.Option) (*PracticeService, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	scheduler, err := metronome.New(cfg.Metronome, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metronome: %w", err)
	}
	scheduler.SetEnabled(cfg.Enabled)

	s := &PracticeService{
		configFile:   configFile,
		scheduler:    scheduler,
		cfg:          cfg,
		subscribers:  make(map[string]chan metronome.ClickEvent),
		dispatchDone: make(chan struct{}),
	}
	go s.dispatch()

	slog.Debug("Practice service created", "profile", cfg.Profile, "bpm", cfg.Metronome.BPM)
	return s, nil
}

// Configure applies new metronome settings
func (s *PracticeService) Configure(settings metronome.Settings) error {
	if err := s.scheduler.Configure(settings); err != nil {
		s.setLastError(fmt.Sprintf("Invalid metronome settings: %v", err))
		return err
	}
	s.clearLastError()

	s.cfgMutex.Lock()
	s.cfg.Metronome = settings
	s.cfgMutex.Unlock()
	return nil
}

// SetVolume changes click volume without restarting the beat
func (s *PracticeService) SetVolume(volume int) error {
	if err := s.scheduler.SetVolume(volume); err != nil {
		s.setLastError(fmt.Sprintf("Invalid volume: %v", err))
		return err
	}
	s.clearLastError()

	s.cfgMutex.Lock()
	s.cfg.Metronome.Volume = volume
	s.cfgMutex.Unlock()
	return nil
}

// SetEnabled turns the metronome on or off
func (s *PracticeService) SetEnabled(enabled bool) {
	s.scheduler.SetEnabled(enabled)

	s.cfgMutex.Lock()
	s.cfg.Enabled = enabled
	s.cfgMutex.Unlock()
}

// SetTransport reports play/pause of the music
func (s *PracticeService) SetTransport(playing bool) {
	slog.Debug("Transport changed", "playing", playing)
	s.scheduler.OnTransportChange(playing)
}

// Subscribe registers a consumer of click events. A consumer that does not keep
// up loses clicks; it never slows the metronome down.
func (s *PracticeService) Subscribe(buffer int) (string, <-chan metronome.ClickEvent) {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.NewString()
	ch := make(chan metronome.ClickEvent, buffer)

	s.subsMutex.Lock()
	defer s.subsMutex.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	slog.Debug("Click subscriber added", "id", id, "total", len(s.subscribers))
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel
func (s *PracticeService) Unsubscribe(id string) {
	s.subsMutex.Lock()
	defer s.subsMutex.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
		slog.Debug("Click subscriber removed", "id", id, "total", len(s.subscribers))
	}
}

// LoadProfile switches to another profile from the config file
func (s *PracticeService) LoadProfile(profile string) error {
	if s.configFile == "" {
		err := fmt.Errorf("no config file loaded, cannot switch to profile '%s'", profile)
		s.setLastError(err.Error())
		return err
	}

	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to load profile: %v", err))
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	if err := s.scheduler.Configure(newCfg.Metronome); err != nil {
		s.setLastError(fmt.Sprintf("Failed to apply profile: %v", err))
		return err
	}
	s.scheduler.SetEnabled(newCfg.Enabled)

	s.cfgMutex.Lock()
	s.cfg = newCfg
	s.cfgMutex.Unlock()

	s.clearLastError()
	slog.Info("Profile loaded", "profile", newCfg.Profile, "bpm", newCfg.Metronome.BPM, "time_signature", newCfg.Metronome.TimeSignature)
	return nil
}

// Profiles lists the profiles in the config file
func (s *PracticeService) Profiles() ([]string, error) {
	if s.configFile == "" {
		return []string{s.GetConfig().Profile}, nil
	}
	return config.ProfileNames(s.configFile)
}

// GetConfig returns a copy of the current configuration
func (s *PracticeService) GetConfig() *config.Config {
	s.cfgMutex.RLock()
	defer s.cfgMutex.RUnlock()
	cfg := *s.cfg
	return &cfg
}

// Status combines scheduler and session state
func (s *PracticeService) Status() Status {
	st := s.scheduler.Status()
	cfg := s.GetConfig()

	s.subsMutex.RLock()
	subscribers := len(s.subscribers)
	s.subsMutex.RUnlock()

	return Status{
		Settings:     st.Settings,
		Enabled:      st.Enabled,
		Playing:      st.Playing,
		Running:      st.Running,
		NextBeat:     st.NextBeat,
		PeriodMs:     float64(st.Period) / float64(time.Millisecond),
		Message:      statusMessage(st),
		Profile:      cfg.Profile,
		TempoPresets: cfg.TempoPresets,
		Subscribers:  subscribers,
		LastError:    s.GetLastError(),
	}
}

// GetLastError returns the last user-facing error, or ""
func (s *PracticeService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// Close stops the metronome and closes every subscriber channel
func (s *PracticeService) Close() error {
	err := s.scheduler.Close()
	<-s.dispatchDone
	return err
}

// dispatch forwards scheduler clicks until the scheduler is closed
func (s *PracticeService) dispatch() {
	defer close(s.dispatchDone)

	for ev := range s.scheduler.Clicks() {
		s.subsMutex.RLock()
		for id, ch := range s.subscribers {
			select {
			case ch <- ev:
			default:
				slog.Debug("Subscriber is behind, click dropped", "id", id, "beat", ev.Beat)
			}
		}
		s.subsMutex.RUnlock()
	}

	s.subsMutex.Lock()
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subsMutex.Unlock()
}

func statusMessage(st metronome.Status) string {
	switch {
	case st.Running:
		return "Metronome is running with the music"
	case !st.Playing:
		return "Metronome starts automatically when the music plays"
	case !st.Enabled:
		return "Metronome is off"
	default:
		return "Metronome stopped"
	}
}

func (s *PracticeService) setLastError(msg string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = msg
	slog.Debug("Service error recorded", "error", msg)
}

func (s *PracticeService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
