package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/jamclick/internal/click"
)

var renderCmd = &cobra.Command{
	Use:   "render [file.wav]",
	Short: "Write a click track to a WAV file",
	Long: `Render a click track with the current profile's tempo, time signature and
volume into a 16-bit mono WAV file. Flags override the profile.

Useful for importing a click into a DAW or playing it on a device without jamclick.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		settings := cfg.Metronome
		if err := applyRunFlags(cmd, &settings); err != nil {
			return err
		}

		bars, _ := cmd.Flags().GetInt("bars")
		sampleRate := cfg.Sound.SampleRate
		if cmd.Flags().Changed("sample-rate") {
			sampleRate, _ = cmd.Flags().GetInt("sample-rate")
		}

		slog.Debug("Rendering click track", "bpm", settings.BPM, "time_signature", settings.TimeSignature,
			"bars", bars, "sample_rate", sampleRate)

		samples, err := click.RenderTrack(settings, bars, sampleRate)
		if err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if err := click.WriteWAVFile(path, samples, sampleRate); err != nil {
			return err
		}

		seconds := float64(len(samples)) / float64(sampleRate)
		fmt.Printf("Wrote %s: %d bars of %s at %d BPM (%.1fs)\n", path, bars, settings.TimeSignature, settings.BPM, seconds)
		return nil
	},
}

func init() {
	renderCmd.Flags().Int("bars", 8, "number of bars to render")
	renderCmd.Flags().Int("bpm", 0, "tempo in beats per minute (overrides config)")
	renderCmd.Flags().String("signature", "", "time signature: 2/4, 3/4, 4/4 or 6/8 (overrides config)")
	renderCmd.Flags().Int("volume", -1, "click volume 0-100 (overrides config)")
	renderCmd.Flags().Int("sample-rate", click.DefaultSampleRate, "sample rate in Hz (overrides config)")
}
