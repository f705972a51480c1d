package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/jamclick/internal/metronome"
	"github.com/audiolibrelab/jamclick/internal/play"
	"github.com/audiolibrelab/jamclick/internal/service"
)

// tempoStep is how far + and - move the tempo
const tempoStep = 5

var (
	accentColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	beatColor   = color.New(color.FgGreen).SprintFunc()
	infoColor   = color.New(color.FgCyan).SprintFunc()
	errorColor  = color.New(color.FgRed).SprintFunc()
	grayColor   = color.New(color.FgHiBlack).SprintFunc()
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the metronome in the terminal",
	Long: `Run the metronome in the terminal with the music already playing.

Commands (type and press Enter):
  <Enter>    play/pause the music
  m          switch the metronome on or off
  + / -      tempo up or down by 5 BPM
  t <sig>    change time signature (2/4, 3/4, 4/4, 6/8)
  q          quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runCfg := *cfg
		if err := applyRunFlags(cmd, &runCfg.Metronome); err != nil {
			return err
		}
		duration, _ := cmd.Flags().GetDuration("duration")
		sound := runCfg.Sound.Enabled
		if cmd.Flags().Changed("sound") {
			sound, _ = cmd.Flags().GetBool("sound")
		}

		svc, err := service.New(&runCfg, cfgFile)
		if err != nil {
			return err
		}
		defer svc.Close()

		var player *play.Player
		if sound {
			player, err = play.New(runCfg.Sound.Player, runCfg.Sound.SampleRate)
			if err != nil {
				slog.Warn("Clicks will only be shown, not played", "error", err)
			} else {
				defer player.Close()
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		return runMetronome(ctx, svc, player, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().Int("bpm", 0, "tempo in beats per minute (overrides config)")
	runCmd.Flags().String("signature", "", "time signature: 2/4, 3/4, 4/4 or 6/8 (overrides config)")
	runCmd.Flags().Int("volume", -1, "click volume 0-100 (overrides config)")
	runCmd.Flags().Bool("sound", true, "play clicks through the system audio player")
	runCmd.Flags().Duration("duration", 0, "stop after this long (0 runs until 'q' or Ctrl+C)")
}

// applyRunFlags overrides settings with the flags given on the command line
func applyRunFlags(cmd *cobra.Command, settings *metronome.Settings) error {
	if cmd.Flags().Changed("bpm") {
		settings.BPM, _ = cmd.Flags().GetInt("bpm")
	}
	if cmd.Flags().Changed("signature") {
		raw, _ := cmd.Flags().GetString("signature")
		ts, err := metronome.ParseTimeSignature(raw)
		if err != nil {
			return err
		}
		settings.TimeSignature = ts
	}
	if cmd.Flags().Changed("volume") {
		settings.Volume, _ = cmd.Flags().GetInt("volume")
	}
	return settings.Validate()
}

// runMetronome starts the music and prints clicks until ctx ends or the user quits.
// player may be nil.
func runMetronome(ctx context.Context, svc service.Service, player *play.Player, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, clicks := svc.Subscribe(16)
	lines := readLines(ctx, in)

	st := svc.Status()
	fmt.Fprintf(out, "%s %d BPM in %s, volume %d%% (profile %s)\n",
		infoColor("JamClick:"), st.Settings.BPM, st.Settings.TimeSignature, st.Settings.Volume, st.Profile)
	fmt.Fprintln(out, grayColor("Enter: play/pause  m: metronome  +/-: tempo  t <sig>: signature  q: quit"))

	svc.SetTransport(true)
	bar := 0

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil

		case ev, ok := <-clicks:
			if !ok {
				return nil
			}
			if ev.Accent {
				bar++
			}
			fmt.Fprint(out, formatClick(ev, bar))
			if player != nil {
				player.Play(ev)
			}

		case line, ok := <-lines:
			if !ok {
				// stdin closed, keep clicking until ctx ends
				lines = nil
				continue
			}
			quit, msg := handleCommand(svc, line)
			if msg != "" {
				fmt.Fprintf(out, "\n%s\n", msg)
			}
			if quit {
				return nil
			}
		}
	}
}

// readLines feeds stdin lines to a channel that is closed at EOF
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// handleCommand applies one interactive command and returns what to print
func handleCommand(svc service.Service, line string) (quit bool, msg string) {
	line = strings.TrimSpace(line)
	st := svc.Status()

	switch {
	case line == "":
		svc.SetTransport(!st.Playing)
		if st.Playing {
			return false, infoColor("Music paused")
		}
		return false, infoColor("Music playing")

	case line == "m":
		svc.SetEnabled(!st.Enabled)
		if st.Enabled {
			return false, infoColor("Metronome off")
		}
		return false, infoColor("Metronome on")

	case line == "+" || line == "-":
		settings := st.Settings
		if line == "+" {
			settings.BPM += tempoStep
		} else {
			settings.BPM -= tempoStep
		}
		if err := svc.Configure(settings); err != nil {
			return false, errorColor(err.Error())
		}
		return false, infoColor(fmt.Sprintf("Tempo %d BPM", settings.BPM))

	case line == "t" || strings.HasPrefix(line, "t "):
		ts, err := metronome.ParseTimeSignature(strings.TrimPrefix(line, "t"))
		if err != nil {
			return false, errorColor(err.Error())
		}
		settings := st.Settings
		settings.TimeSignature = ts
		if err := svc.Configure(settings); err != nil {
			return false, errorColor(err.Error())
		}
		return false, infoColor(fmt.Sprintf("Time signature %s", ts))

	case line == "q":
		return true, ""

	default:
		return false, errorColor(fmt.Sprintf("Unknown command %q", line))
	}
}

// formatClick renders a click, starting a new line on each downbeat
func formatClick(ev metronome.ClickEvent, bar int) string {
	label := strconv.Itoa(ev.Beat + 1)
	if ev.Accent {
		return fmt.Sprintf("\n%s %s", grayColor(fmt.Sprintf("bar %3d", bar)), accentColor(label))
	}
	return " " + beatColor(label)
}
