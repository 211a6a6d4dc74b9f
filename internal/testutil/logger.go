// Package testutil provides shared test helpers for boardscout packages.
package testutil

import "go.uber.org/zap"

// Logger returns a no-op logger for tests. Swap for zap.NewDevelopment()
// locally when debugging a failing test.
func Logger() *zap.Logger {
	return zap.NewNop()
}
