package main

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "voicepipe").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voicepipe.log"), nil
}

// setupLog sends the default logger to a file in the user cache dir. The
// returned func closes it.
func setupLog() (func() error, error) {
	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	logOutput = f
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
