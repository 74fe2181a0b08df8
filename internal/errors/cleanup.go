// Package errors holds helpers for cleanup paths whose failures must be
// reported but never change the outcome of the operation they follow.
package errors

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// DeferClose closes an io.Closer, logging a failure instead of returning it.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferRemoveAll removes a path tree, logging a failure instead of returning it.
func DeferRemoveAll(logger zerolog.Logger, path string) {
	if path == "" {
		return
	}
	if err := removeAll(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to remove temporary directory")
	}
}

var removeAll = os.RemoveAll
