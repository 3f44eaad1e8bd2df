// Package storage defines the workspace file-system abstraction used to stat
// build artifacts and to write files produced in-process.
package storage

import "io/fs"

// Provider is the interface for workspace file operations. Relative paths
// are resolved against the workspace root; absolute paths are used as-is.
type Provider interface {
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Remove deletes the file at path; a missing file is not an error.
	Remove(path string) error
	// Resolve returns the absolute path for path.
	Resolve(path string) string
}
