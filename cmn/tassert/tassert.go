// Package tassert provides small test-assertion helpers shared across
// filevault's package tests, mirroring the shape the teacher's tests import
// from tutils/tassert.
package tassert

import "testing"

// CheckFatal fails the test immediately if err is non-nil.
func CheckFatal(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatalf("unexpected error: %v", err)
	}
}

// Fatalf fails the test immediately if cond is false.
func Fatalf(tb testing.TB, cond bool, format string, args ...interface{}) {
	tb.Helper()
	if !cond {
		tb.Fatalf(format, args...)
	}
}

// Errorf records a non-fatal failure if cond is false.
func Errorf(tb testing.TB, cond bool, format string, args ...interface{}) {
	tb.Helper()
	if !cond {
		tb.Errorf(format, args...)
	}
}
