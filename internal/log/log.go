// Package log sets up the zerolog loggers of the dashboard. The TUI owns the
// terminal, so diagnostics go to a file unless running headless.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

const diagFileName = "diagnostics_log.txt"

// ResolveDir picks the log directory: the flag value, then
// SPEAKER_ASSISTANT_LOG_PATH, then an OS default. Relative paths are made
// absolute against the working directory.
func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv("SPEAKER_ASSISTANT_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	return defaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "SpeakerAssistant"), nil
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "SpeakerAssistant", "logs"), nil
		}
		return filepath.Join(home, "AppData", "Local", "SpeakerAssistant", "logs"), nil
	}
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "speaker-assistant", "logs"), nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// File is a diagnostics log file and the logger writing to it.
type File struct {
	Logger zerolog.Logger
	Path   string

	mu sync.Mutex
	f  *os.File
}

// Open creates dir if needed and appends to its diagnostics log.
func Open(dir string, level zerolog.Level) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, diagFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &File{
		Logger: New(f, level),
		Path:   path,
		f:      f,
	}, nil
}

// Close flushes and closes the file. Safe to call more than once.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	l.Logger = zerolog.Nop()
	return err
}

// New builds the plain-text logger used for files.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Int("pid", os.Getpid()).Logger()
}

// Headless builds the JSON logger used when there is no dashboard: one
// structured line per event on w.
func Headless(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
