package play

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/voicerec/internal/config"
)

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Output.Directory = dir
	return cfg
}

func TestResolve(t *testing.T) {
	p := New(testConfig("/rec"))

	tests := []struct {
		input    string
		expected string
	}{
		{"memo", "/rec/memo.mp3"},
		{"memo.mp3", "/rec/memo.mp3"},
		{"/tmp/take.wav", "/tmp/take.wav"},
		{"sub/take", "sub/take.mp3"},
	}
	for _, test := range tests {
		if got := p.Resolve(test.input); got != test.expected {
			t.Errorf("Resolve(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestPlay_MissingFile(t *testing.T) {
	p := New(testConfig(t.TempDir()))

	err := p.Play("nothing")
	if err == nil || !strings.Contains(err.Error(), "audio file not found") {
		t.Errorf("Expected file not found error, got: %v", err)
	}
}

func TestPlay_PicksFirstAvailablePlayer(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "memo.mp3"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	p := New(testConfig(dir))
	p.lookPath = func(name string) (string, error) {
		if name == "mpv" || name == "ffplay" {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	var ran []string
	p.run = func(cmd *exec.Cmd) error {
		ran = cmd.Args
		return nil
	}

	if err := p.Play("memo"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	expected := []string{"mpv", "--no-video", filepath.Join(dir, "memo.mp3")}
	if strings.Join(ran, " ") != strings.Join(expected, " ") {
		t.Errorf("Expected command %v, got %v", expected, ran)
	}
}

func TestPlay_NoPlayer(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "memo.mp3"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	p := New(testConfig(dir))
	p.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	err := p.Play("memo")
	if err == nil || !strings.Contains(err.Error(), "no audio player found") {
		t.Errorf("Expected no player error, got: %v", err)
	}
}

func TestBuildCommand_AplayRequiresWAV(t *testing.T) {
	p := New(testConfig("/rec"))

	if _, err := p.buildCommand("aplay", "/rec/memo.mp3"); err == nil {
		t.Error("Expected error for aplay with mp3")
	}
	cmd, err := p.buildCommand("aplay", "/rec/memo.WAV")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cmd.Args[1] != "/rec/memo.WAV" {
		t.Errorf("Unexpected args: %v", cmd.Args)
	}
}
