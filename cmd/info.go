package cmd

import (
	"fmt"
	"os/exec"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/encode"
	"github.com/audiolibrelab/voicerec/internal/service"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [destination]",
	Short: "Show the resolved capture format, encoder and output path",
	Long:  `Display the resolved configuration for the active profile: the capture format, the ffmpeg parameters, and the file a recording would be saved to.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, service.Options{})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		destination := svc.DefaultDestination()
		if len(args) == 1 {
			destination = encode.NormalizeDestination(args[0], cfg.Encoder.Extension)
		}

		fmt.Printf("=== PROFILE ===\n")
		fmt.Printf("profile: %s\n", cfg.Profile)
		fmt.Printf("config: %s\n", cfgFile)

		fmt.Printf("\n[Capture]\n")
		fmt.Printf("format: %s\n", audio.FormatFromConfig(cfg))
		fmt.Printf("backend: %s (available: %v)\n", cfg.Audio.Backend, audio.GetAvailableBackends())
		device := cfg.Audio.Device
		if device == "" {
			device = "(system default)"
		}
		fmt.Printf("device: %s\n", device)
		fmt.Printf("tick_interval: %s\n", cfg.Session.TickInterval)

		fmt.Printf("\n[Encoder]\n")
		binary := cfg.Encoder.Binary
		if path, err := exec.LookPath(binary); err == nil {
			fmt.Printf("binary: %s (%s)\n", binary, path)
		} else {
			fmt.Printf("binary: %s (not found)\n", binary)
		}
		fmt.Printf("bitrate: %s\n", cfg.Encoder.Bitrate)
		fmt.Printf("extension: %s\n", cfg.Encoder.Extension)

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s\n", cfg.Output.Directory)
		fmt.Printf("destination: %s\n", destination)

		return nil
	},
}
