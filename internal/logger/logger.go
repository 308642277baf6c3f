// Package logger constructs the process-wide zap logger. The logger is
// built once in main and passed to the components that need it; nothing in
// this codebase logs through a package-level global.
package logger

import (
	"go.uber.org/zap"
)

// New returns a production logger, or a human-readable development logger
// when env is "dev" or "test".
func New(env string) (*zap.Logger, error) {
	if env == "dev" || env == "test" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
