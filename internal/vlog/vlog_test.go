package vlog

import "testing"

func TestLevelGatesDebugf(t *testing.T) {
	SetLevel(0)
	if Level() != 0 {
		t.Fatalf("expected level 0, got %d", Level())
	}
	SetLevel(2)
	if Level() != 2 {
		t.Fatalf("expected level 2, got %d", Level())
	}
	// Debugf itself only ever calls through to log.Printf; there is no
	// observable return value to assert on beyond the gate not panicking
	// at any level, including below and above the configured threshold.
	Debugf(0, "always fires at level %d", Level())
	Debugf(5, "never fires at level %d", Level())
}
