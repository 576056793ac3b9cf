package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/voicerec/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available capture devices",
	Long:  `List the microphones and other capture devices the audio backend can open. Any name (or part of it) can be used as audio.device in the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := audio.NewBackend(cfg)
		if err != nil {
			return fmt.Errorf("failed to create audio backend: %w", err)
		}

		devices, err := backend.ListDevices()
		if err != nil {
			return fmt.Errorf("failed to list capture devices: %w", err)
		}

		fmt.Printf("🎙  Capture Devices (%s, %s)\n", runtime.GOOS, backend.GetType())
		fmt.Printf("═══════════════════════════════════════\n\n")

		if len(devices) == 0 {
			fmt.Println("No capture devices found.")
			return nil
		}
		for i, d := range devices {
			marker := ""
			if d.IsDefault {
				marker = " (default)"
			}
			fmt.Printf("  %d. %s%s\n", i+1, d.Name, marker)
		}

		fmt.Printf("\n💡 Usage:\n")
		fmt.Printf("  • Configure audio.device with a full name or a unique part of it\n")
		fmt.Printf("  • Example: voicerec record --device \"USB\"\n\n")
		return nil
	},
}
