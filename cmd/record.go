package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/voicerec/internal/encode"
	"github.com/audiolibrelab/voicerec/internal/service"
	"github.com/audiolibrelab/voicerec/internal/session"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [destination]",
	Short: "Record the microphone until stopped",
	Long: `Record audio from the configured microphone. The elapsed time is shown
while recording. Press Enter or Ctrl+C to stop; the take is then encoded
with ffmpeg to the destination path (the configured extension is appended
when missing). Without a destination a timestamped file is created in the
output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Output.Directory = dir
		}
		if device, _ := cmd.Flags().GetString("device"); device != "" {
			cfg.Audio.Device = device
		}
		limit, _ := cmd.Flags().GetDuration("duration")

		svc, err := service.New(cfg, service.Options{EncoderOutput: encoderOutput()})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		destination := ""
		if len(args) == 1 {
			destination = args[0]
		} else {
			destination = svc.DefaultDestination()
		}

		failed := make(chan struct{}, 1)
		unsubscribe := svc.Subscribe(func(ev session.Event) {
			switch ev.State {
			case session.StateRecording:
				fmt.Printf("\r● REC %s", service.FormatElapsed(ev.Elapsed))
			case session.StateFailed:
				select {
				case failed <- struct{}{}:
				default:
				}
			}
		})
		defer unsubscribe()

		if err := svc.RequestStart(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started", "format", svc.Status().Format, "destination", destination)
		fmt.Printf("● REC %s", service.FormatElapsed(0))

		waitForStop(failed, limit)
		fmt.Println()

		if st := svc.Status(); st.State == session.StateFailed {
			slog.Warn("Recording interrupted, saving what was captured", "fault", st.Fault)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("Stopping recording...")
		result, stopped := svc.RequestStop(ctx, destination)
		if !stopped {
			return errors.New("recording was not active")
		}
		return reportResult(result)
	},
}

// waitForStop blocks until the user asks to stop, the capture fails or the
// optional duration limit elapses
func waitForStop(failed <-chan struct{}, limit time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	enter := make(chan struct{})
	go func() {
		// A closed or redirected stdin never stops the recording
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
			close(enter)
		}
	}()

	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-sigChan:
		slog.Debug("Interrupt received")
	case <-enter:
		slog.Debug("Enter pressed")
	case <-failed:
		slog.Debug("Capture failed")
	case <-timeout:
		slog.Debug("Duration limit reached", "duration", limit)
	}
}

func reportResult(result encode.Result) error {
	if result.OK() {
		fmt.Printf("Saved %s\n", result.Path)
		return nil
	}

	switch result.Kind() {
	case encode.KindNoAudioCaptured:
		return errors.New("no audio was captured, nothing saved")
	case encode.KindEncoderNotFound:
		return fmt.Errorf("ffmpeg not found, install it or set encoder.binary: %w", result.Err)
	case encode.KindEncoderExecutionFailed:
		if diag := result.Diagnostic(); diag != "" {
			fmt.Fprintln(os.Stderr, diag)
		}
		return fmt.Errorf("encoding failed: %w", result.Err)
	default:
		return fmt.Errorf("could not save recording: %w", result.Err)
	}
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory for timestamped recordings (overrides config)")
	recordCmd.Flags().StringP("device", "d", "", "capture device name or substring (overrides config)")
	recordCmd.Flags().Duration("duration", 0, "stop automatically after this long (0 records until stopped)")
}
