// Package housekeeping sweeps the volatile auth-state directory for
// per-tenant files orphaned by tenants no longer in the registry (spec
// §5). It follows the teacher's scan→classify→act→report shape used for
// secret naming migration, repurposed here for filesystem cleanup
// instead of secret renaming.
package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
)

const statePrefix = "token_"

// Result reports what one sweep found and did.
type Result struct {
	FilesScanned int      `json:"files_scanned"`
	FilesRemoved int      `json:"files_removed"`
	Errors       []string `json:"errors,omitempty"`
	Removed      []string `json:"removed,omitempty"`
}

// Sweeper removes orphaned auth-state files under StateDir: any
// `token_<fingerprint>` file whose fingerprint is not currently held by
// the registry.
type Sweeper struct {
	stateDir string
	registry *registry.Registry
	logger   *logrus.Entry
}

// New builds a Sweeper rooted at stateDir.
func New(stateDir string, reg *registry.Registry, logger *logrus.Entry) *Sweeper {
	return &Sweeper{stateDir: stateDir, registry: reg, logger: logger.WithField("component", "housekeeping")}
}

// Sweep performs one scan→classify→act→report pass. It never removes a
// file it cannot positively classify as orphaned.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	result := &Result{}

	entries, err := os.ReadDir(s.stateDir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	live := make(map[string]bool)
	for _, t := range s.registry.Snapshot() {
		live[string(t.Fingerprint)] = true
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, statePrefix) {
			continue
		}
		result.FilesScanned++

		fingerprint := strings.TrimPrefix(name, statePrefix)
		if live[fingerprint] {
			continue
		}

		path := filepath.Join(s.stateDir, name)
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, err.Error())
			s.logger.WithError(err).WithField("file", name).Warn("failed to remove orphaned auth-state file")
			continue
		}
		result.FilesRemoved++
		result.Removed = append(result.Removed, name)
		s.logger.WithField("file", name).Info("removed orphaned auth-state file")
	}

	s.logger.WithFields(logrus.Fields{
		"scanned": result.FilesScanned,
		"removed": result.FilesRemoved,
		"errors":  len(result.Errors),
	}).Info("housekeeping sweep completed")

	return result, nil
}
