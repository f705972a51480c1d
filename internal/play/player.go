package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/audiolibrelab/jamclick/internal/click"
	"github.com/audiolibrelab/jamclick/internal/metronome"
)

// ErrNoPlayer is returned when none of the supported command line players is installed.
var ErrNoPlayer = errors.New("no audio player found")

// Preferred players, lowest latency first.
var players = []string{"aplay", "pw-play", "paplay", "ffplay"}

// Player sounds click events through a command line audio player. Each
// (accent, volume) pair is rendered to a small WAV file on first use.
type Player struct {
	name       string
	cacheDir   string
	sampleRate int

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	files map[fileKey]string

	wg       sync.WaitGroup
	failures atomic.Int64
}

type fileKey struct {
	accent bool
	volume int
}

// New picks a player. name is "auto" or "" to probe, or a specific binary.
func New(name string, sampleRate int) (*Player, error) {
	player, err := findAudioPlayer(name, exec.LookPath)
	if err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		sampleRate = click.DefaultSampleRate
	}

	cacheDir, err := os.MkdirTemp("", "jamclick-*")
	if err != nil {
		return nil, fmt.Errorf("error creating click cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	slog.Debug("Using audio player for clicks", "player", player, "cache", cacheDir)

	return &Player{
		name:       player,
		cacheDir:   cacheDir,
		sampleRate: sampleRate,
		ctx:        ctx,
		cancel:     cancel,
		files:      make(map[fileKey]string),
	}, nil
}

// Name returns the player binary in use.
func (p *Player) Name() string {
	return p.name
}

// Failures counts clicks that could not be played.
func (p *Player) Failures() int64 {
	return p.failures.Load()
}

// Play starts sounding ev and returns without waiting for it to finish.
// Failures are logged and counted; a missed click is not retried.
func (p *Player) Play(ev metronome.ClickEvent) {
	file, err := p.fileFor(ev.Accent, ev.Volume)
	if err != nil {
		p.failures.Add(1)
		slog.Warn("Could not prepare click sound", "error", err)
		return
	}

	cmd := exec.CommandContext(p.ctx, p.name, playerArgs(p.name, file)...)
	if err := cmd.Start(); err != nil {
		p.failures.Add(1)
		slog.Warn("Could not start audio player", "player", p.name, "error", err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := cmd.Wait(); err != nil && p.ctx.Err() == nil {
			p.failures.Add(1)
			slog.Debug("Audio player exited with error", "player", p.name, "error", err)
		}
	}()
}

// Close kills running players and removes the rendered click files.
func (p *Player) Close() error {
	p.cancel()
	p.wg.Wait()
	return os.RemoveAll(p.cacheDir)
}

func (p *Player) fileFor(accent bool, volume int) (string, error) {
	key := fileKey{accent: accent, volume: volume}

	p.mu.Lock()
	defer p.mu.Unlock()
	if path, ok := p.files[key]; ok {
		return path, nil
	}

	kind := "beat"
	if accent {
		kind = "accent"
	}
	path := filepath.Join(p.cacheDir, fmt.Sprintf("%s_%03d.wav", kind, volume))
	if err := click.WriteWAVFile(path, click.Tone(accent, volume, p.sampleRate), p.sampleRate); err != nil {
		return "", err
	}
	p.files[key] = path
	return path, nil
}

func playerArgs(player, file string) []string {
	switch player {
	case "aplay":
		return []string{"-q", file}
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", file}
	default:
		return []string{file}
	}
}

func findAudioPlayer(name string, lookPath func(string) (string, error)) (string, error) {
	candidates := players
	if name != "" && name != "auto" {
		candidates = []string{name}
	}

	for _, player := range candidates {
		if _, err := lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("%w (tried: %s)", ErrNoPlayer, strings.Join(candidates, ", "))
}
