package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Options controls where and how verbosely the process logs.
type Options struct {
	// Level is a zerolog level name: debug, info, warn, error
	Level string

	// File, when set, receives a JSON copy of every log line
	File string

	// Console forces human-readable output even when stderr is not a terminal
	Console bool
}

var (
	// Global run ID for the current process
	runID     string
	runIDOnce sync.Once

	// file is the open log file, if any
	file   *os.File
	fileMu sync.Mutex

	// stderr is swapped out by tests
	stderr io.Writer = os.Stderr
)

// getRunID returns or creates the run ID for this process
func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// Setup configures the global zerolog logger. Output goes to stderr, as
// colourised console lines on a terminal and JSON otherwise, and is teed to
// Options.File when one is given.
func Setup(opts Options) error {
	if opts.Level == "" {
		opts.Level = "info"
	}
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = stderr
	if opts.Console || isTerminal(stderr) {
		output = zerolog.ConsoleWriter{Out: stderr, TimeFormat: "2006-01-02 15:04:05"}
	}

	if opts.File != "" {
		f, err := openLogFile(opts.File)
		if err != nil {
			return err
		}
		output = io.MultiWriter(output, f)
	}

	log.Logger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("run_id", getRunID()).
		Logger()

	return nil
}

func openLogFile(path string) (*os.File, error) {
	fileMu.Lock()
	defer fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if file != nil {
		_ = file.Close()
	}
	file = f
	return f, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// For returns a logger tagged with the given component name.
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// RunID returns the identifier shared by every log line of this process.
func RunID() string {
	return getRunID()
}

// Close closes the log file, if one was opened. Safe to call multiple times.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}
