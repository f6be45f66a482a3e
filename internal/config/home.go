package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetSoundcheckHome returns the soundcheck state directory
// Priority order:
//  1. SOUNDCHECK_HOME environment variable (if set)
//  2. Repository root (detected by marker file or go.mod)
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist
func GetSoundcheckHome() (string, error) {
	// Try env var first
	if home := os.Getenv("SOUNDCHECK_HOME"); home != "" {
		return home, nil
	}

	// Try to find the repo root so state is shared regardless of cwd
	repoRoot, err := findRepoRoot()
	if err == nil && repoRoot != "" {
		home := filepath.Join(repoRoot, ".soundcheck")
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create soundcheck home directory: %w", err)
		}
		return home, nil
	}

	// Fallback to current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	home := filepath.Join(cwd, ".soundcheck")

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create soundcheck home directory: %w", err)
	}

	return home, nil
}

// findRepoRoot walks up from the working directory looking for a
// .soundcheck-root marker file or a go.mod with this module path
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	current := cwd
	for {
		// Marker file takes priority
		markerPath := filepath.Join(current, ".soundcheck-root")
		if _, err := os.Stat(markerPath); err == nil {
			return current, nil
		}

		goModPath := filepath.Join(current, "go.mod")
		if data, err := os.ReadFile(goModPath); err == nil {
			if strings.Contains(string(data), "github.com/mstaack/sw-usb-audio") {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached filesystem root
			break
		}
		current = parent
	}

	return "", fmt.Errorf("repository root not found (looking for .soundcheck-root or go.mod with github.com/mstaack/sw-usb-audio)")
}

// GetHistoryDBPath returns the absolute path to the run-history database
// Always returns: $SOUNDCHECK_HOME/history/runs.db
func GetHistoryDBPath() (string, error) {
	home, err := GetSoundcheckHome()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, "history", "runs.db"), nil
}

// GetArtifactsDir returns the transcript archive directory, creating it
// if needed
func GetArtifactsDir() (string, error) {
	home, err := GetSoundcheckHome()
	if err != nil {
		return "", err
	}

	artifactsDir := filepath.Join(home, "artifacts")

	if err := os.MkdirAll(artifactsDir, 0755); err != nil {
		return "", fmt.Errorf("create artifacts directory: %w", err)
	}

	return artifactsDir, nil
}

// GetLocksDir returns the device lock directory, creating it if needed
func GetLocksDir() (string, error) {
	home, err := GetSoundcheckHome()
	if err != nil {
		return "", err
	}

	locksDir := filepath.Join(home, "locks")

	if err := os.MkdirAll(locksDir, 0755); err != nil {
		return "", fmt.Errorf("create locks directory: %w", err)
	}

	return locksDir, nil
}
