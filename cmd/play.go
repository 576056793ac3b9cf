package cmd

import (
	"fmt"

	"github.com/audiolibrelab/voicerec/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [recording]",
	Short: "Play a saved recording",
	Long: `Play a recording with the first available player (vlc, mpv, ffplay).
A bare name is looked up in the output directory and the configured
extension is appended when missing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		fmt.Printf("Playing recording: %s\n", name)

		svc, err := service.New(cfg, service.Options{})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		if err := svc.Play(name); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		return nil
	},
}
