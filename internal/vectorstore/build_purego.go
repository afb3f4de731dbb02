//go:build !sqlite_cgo

package vectorstore

// Default build. Uses the pure Go modernc.org/sqlite driver, so no C
// compiler is needed.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
