package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/jamclick/internal/config"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List profiles with their resolved settings",
	Long:  `Display every profile in the config file with its resolved metronome settings. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			fmt.Printf("=== PROFILES (built-in) ===\n")
			printProfile(cfg, true)
			printPresets(cfg.TempoPresets)
			return nil
		}

		rootConfig, err := config.ValidateConfigurationFormat(cfgFile)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(rootConfig.Configs))
		for name := range rootConfig.Configs {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Printf("=== PROFILES (%s) ===\n", cfgFile)
		for _, name := range names {
			resolved, err := config.Resolve(rootConfig, name)
			if err != nil {
				fmt.Printf("\n[%s]\n  error: %v\n", name, err)
				continue
			}
			printProfile(resolved, name == cfg.Profile)
		}

		printPresets(cfg.TempoPresets)
		return nil
	},
}

func printProfile(c *config.Config, active bool) {
	marker := ""
	if active {
		marker = " (active)"
	}
	fmt.Printf("\n[%s]%s\n", c.Profile, marker)
	fmt.Printf("bpm: %d %s\n", c.Metronome.BPM, getInheritanceIndicator(c.Inheritance["bpm"]))
	fmt.Printf("time_signature: %s %s\n", c.Metronome.TimeSignature, getInheritanceIndicator(c.Inheritance["time_signature"]))
	fmt.Printf("volume: %d %s\n", c.Metronome.Volume, getInheritanceIndicator(c.Inheritance["volume"]))
	fmt.Printf("enabled: %t %s\n", c.Enabled, getInheritanceIndicator(c.Inheritance["enabled"]))
}

func printPresets(presets []int) {
	values := make([]string, len(presets))
	for i, bpm := range presets {
		values[i] = fmt.Sprint(bpm)
	}
	fmt.Printf("\n=== TEMPO PRESETS ===\n%s\n", strings.Join(values, ", "))
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	case "built-in", "":
		return "[built-in]"
	default:
		return "[unknown]"
	}
}
