package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/server"
	"github.com/audiolibrelab/voicerec/internal/service"
	"github.com/audiolibrelab/voicerec/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the VoiceRec web server to control recording from a browser.
This allows you to start and stop takes from your smartphone or any device on
the same network. Session events are pushed over a WebSocket at /events and
Prometheus metrics are exposed at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		svc, err := service.New(cfg, service.Options{EncoderOutput: encoderOutput()})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		srv := server.New(svc, cfg, port)
		if backend, err := audio.NewBackend(cfg); err == nil {
			srv.SetDeviceLister(backend.ListDevices)
		} else {
			slog.Warn("Device listing disabled", "error", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			if st := svc.Status(); st.State != session.StateIdle {
				slog.Warn("Discarding unsaved recording on shutdown", "state", st.State, "elapsed", service.FormatElapsed(st.Elapsed))
			}
			svc.Close()
			return nil
		})

		slog.Info("VoiceRec web server starting", "port", port, "config", cfgFile)
		if err := g.Wait(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (default from config, 8080)")
}
