// Package fingerprint persists, per build target, the hash of the command
// string that last produced it, so that a changed command forces a rebuild
// even when timestamps look fresh.
package fingerprint

import (
	"context"
	"path/filepath"

	"github.com/starford/mapforge/internal/checksum"
	"github.com/starford/mapforge/internal/models"
)

// Store defines the fingerprint operations used by the executor.
// Consumers should depend on this interface rather than a concrete backend
// to facilitate testing with fakes.
type Store interface {
	// Unchanged reports whether command hashes to the value recorded for
	// target. A target without a record is always reported as changed.
	Unchanged(ctx context.Context, target, command string) (bool, error)
	// Record stores the hash of command for target, replacing any prior value.
	Record(ctx context.Context, target, command string) error
	// List returns every record ordered by key.
	List(ctx context.Context) ([]models.Fingerprint, error)
	// Forget removes the record stored under key.
	Forget(ctx context.Context, key string) error
	Close() error
}

// Key derives the record key from a target path. Only the base name is
// used, so two targets with the same file name in different directories
// share one record.
func Key(target string) string {
	return filepath.Base(target)
}

// Hash returns the stable digest of a command string.
func Hash(command string) string {
	return checksum.String(command)
}
