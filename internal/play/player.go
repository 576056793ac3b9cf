package play

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/voicerec/internal/config"
)

// preferredPlayers in order of preference
var preferredPlayers = []string{"vlc", "mpv", "ffplay", "aplay"}

type Player struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	run      func(cmd *exec.Cmd) error
}

func New(cfg *config.Config) *Player {
	return &Player{
		cfg:      cfg,
		lookPath: exec.LookPath,
		run:      func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// Resolve turns a bare name into a path in the output directory and
// appends the configured extension when missing
func (p *Player) Resolve(name string) string {
	path := name
	if !filepath.IsAbs(path) && !strings.ContainsRune(path, filepath.Separator) && p.cfg != nil {
		path = filepath.Join(p.cfg.Output.Directory, path)
	}
	if filepath.Ext(path) == "" && p.cfg != nil && p.cfg.Encoder.Extension != "" {
		path = path + "." + strings.TrimPrefix(p.cfg.Encoder.Extension, ".")
	}
	return path
}

// Play plays a finished recording with the first available player
func (p *Player) Play(name string) error {
	audioFile := p.Resolve(name)

	if _, err := os.Stat(audioFile); err != nil {
		return fmt.Errorf("audio file not found: %s", audioFile)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	cmd, err := p.buildCommand(player, audioFile)
	if err != nil {
		return err
	}

	slog.Info("Playing recording", "file", audioFile, "player", player)
	if err := p.run(cmd); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	slog.Info("Playback completed", "file", audioFile)
	return nil
}

func (p *Player) buildCommand(player, audioFile string) (*exec.Cmd, error) {
	switch player {
	case "vlc":
		return exec.Command("vlc", "--play-and-exit", audioFile), nil
	case "mpv":
		return exec.Command("mpv", "--no-video", audioFile), nil
	case "ffplay":
		return exec.Command("ffplay", "-nodisp", "-autoexit", audioFile), nil
	case "aplay":
		// aplay only understands WAV
		if !strings.EqualFold(filepath.Ext(audioFile), ".wav") {
			return nil, fmt.Errorf("aplay requires WAV format, got %s", filepath.Ext(audioFile))
		}
		return exec.Command("aplay", audioFile), nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range preferredPlayers {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(preferredPlayers, ", "))
}
