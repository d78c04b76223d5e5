package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	envHome = "SLIPFILL_HOME"
	homeDot = ".slipfill"
)

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the directory slipfill keeps its auth cache and failure
// artifacts in.
//
// Resolution order:
//  1. $SLIPFILL_HOME
//  2. ~/.slipfill
//  3. ./.slipfill when the user has no home directory
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome(os.Getenv, os.UserHomeDir)
	})
	return homeDir
}

// GetCacheDir returns <home>/cache.
func GetCacheDir() string {
	return filepath.Join(GetHome(), "cache")
}

// GetArtifactsDir returns <home>/artifacts.
func GetArtifactsDir() string {
	return filepath.Join(GetHome(), "artifacts")
}

func resolveHome(getenv func(string) string, userHome func() (string, error)) string {
	if env := getenv(envHome); env != "" {
		return filepath.Clean(env)
	}
	if dir, err := userHome(); err == nil && dir != "" {
		return filepath.Join(dir, homeDot)
	}
	return homeDot
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
