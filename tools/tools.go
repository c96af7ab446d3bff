//go:build tools

package tools

// Tool dependencies, tracked so `go run` resolves pinned versions.
// The goose CLI authors and inspects the SQL migrations that the server
// otherwise applies automatically at boot.

import (
	_ "github.com/pressly/goose/v3/cmd/goose"
)
