package util

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// IsScratchDir checks if a directory name looks like a job scratch dir
// (32 hex chars, a job id without hyphens).
func IsScratchDir(name string) bool {
	if len(name) != 32 {
		return false
	}
	for _, c := range name {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// SweepScratchDirs removes leftover job scratch directories under workDir.
// Workers clean up after themselves; anything still here at boot belongs to
// a job interrupted by a crash.
func SweepScratchDirs(workDir string) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !IsScratchDir(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(workDir, entry.Name())
		log.Info().Str("path", fullPath).Msg("removing leftover scratch directory")
		_ = os.RemoveAll(fullPath)
	}
}
