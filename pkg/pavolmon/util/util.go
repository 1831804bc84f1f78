package util

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// EnsureDirExists creates the given directory path if it doesn't already exist
func EnsureDirExists(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return fmt.Errorf("ensure directory exists (%s): %w", path, err)
	}

	return nil
}

// SetupCloseHandler creates a 'listener' on a new goroutine which will notify the
// program if it receives an interrupt from the OS
func SetupCloseHandler() chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	return c
}

// StopCloseHandler undoes SetupCloseHandler
func StopCloseHandler(c chan os.Signal) {
	signal.Stop(c)
}

// StateDir returns the per-user directory for state files (logs, crashlogs),
// following the XDG base directory layout
func StateDir(app string) string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, app)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), app)
	}

	return filepath.Join(home, ".local", "state", app)
}

// ConfigDirs returns the directories searched for a config file, most specific first
func ConfigDirs(app string) []string {
	var dirs []string

	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		dirs = append(dirs, filepath.Join(dir, app))
	}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", app))
	}

	return append(dirs, ".")
}
