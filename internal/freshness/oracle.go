// Package freshness decides whether a build target is stale with respect to
// its declared inputs, using file existence and modification times.
package freshness

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/starford/mapforge/internal/apperr"
)

// Stater is the subset of storage.Provider the oracle needs.
type Stater interface {
	Stat(path string) (fs.FileInfo, error)
}

// Oracle compares target and input modification times.
type Oracle struct {
	fs Stater
}

// New creates an Oracle reading file metadata through fs.
func New(fs Stater) *Oracle {
	return &Oracle{fs: fs}
}

// IsOutdated reports whether target must be rebuilt: it does not exist, or
// some input was modified strictly after it. A missing input is an error
// wrapping apperr.ErrMissingInput; it never counts as "not newer".
func (o *Oracle) IsOutdated(target string, inputs []string) (bool, error) {
	ti, err := o.fs.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("freshness: stat target %s: %w", target, err)
	}
	targetTime := ti.ModTime()

	outdated := false
	for _, in := range inputs {
		ii, err := o.fs.Stat(in)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, apperr.MissingInputf("%s (input of %s)", in, target)
			}
			return false, fmt.Errorf("freshness: stat input %s: %w", in, err)
		}
		// Keep scanning so a missing later input is still reported.
		if ii.ModTime().After(targetTime) {
			outdated = true
		}
	}
	return outdated, nil
}
