package trace

import (
	"fmt"
	"strings"
)

// Level controls how deep spans are recorded.
type Level uint8

const (
	LevelOff    Level = iota
	LevelPhase        // driver and interface spans
	LevelDetail       // plus operations
	LevelDebug        // plus emitter steps
)

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelPhase:
		return "phase"
	case LevelDetail:
		return "detail"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel reads a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LevelOff, nil
	case "phase":
		return LevelPhase, nil
	case "detail":
		return LevelDetail, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|phase|detail|debug)", s)
	}
}

// ShouldEmit reports whether events of scope pass at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopeInterface
	case LevelDetail:
		return scope <= ScopeOperation
	case LevelDebug:
		return true
	}
	return false
}
