// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"log"

	"go.uber.org/zap"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Configure installs the logger selected on the command line. quiet mutes
// all diagnostics. jsonOutput routes Logf through a zap production logger;
// the returned function flushes it and must be called before exit.
func Configure(quiet, jsonOutput bool) (func(), error) {
	if quiet {
		SetLogger(nil)
		return func() {}, nil
	}
	if !jsonOutput {
		SetLogger(log.Printf)
		return func() {}, nil
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	SetLogger(logger.Sugar().Infof)
	return func() { _ = logger.Sync() }, nil
}
