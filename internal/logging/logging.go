package logging

import (
	"go.uber.org/zap"
)

// New creates the process logger. Production builds emit JSON; debug uses
// the development console encoder. Both write to stderr, which keeps stdout
// free for the MCP stdio transport and CLI JSON output.
func New(debug bool) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		return nil, err
	}

	return logger.Named("melchat"), nil
}

// Warnings logs non-fatal operation warnings at warn level.
func Warnings(logger *zap.Logger, op string, warnings []string) {
	for _, w := range warnings {
		logger.Warn(w, zap.String("op", op))
	}
}
