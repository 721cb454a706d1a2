// Package testlog wires the package logger into package tests: import
// it for side effect, or call Setup from TestMain, so test output uses
// the same compact, timestamp-free zerolog format everywhere instead
// of each _test.go file configuring its own.
package testlog

import "github.com/satcat5/corenet/internal/logging"

func init() {
	logging.ConfigureTests()
}

// Setup is the explicit form for a TestMain that wants to control
// ordering relative to other setup.
func Setup() {
	logging.ConfigureTests()
}
