package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityUser  = 0 // No flags: decisions, launches, completions, warnings
	VerbosityDebug = 1 // -v: + cost comparisons, skipped schedule days, cooldown math
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels
//
// Mapping:
//
//	0 (none) -> InfoLevel
//	1+ (-v)  -> DebugLevel
//
// The scheduler runs unattended, so its default output is the audit trail of
// the pass and stays at info.
func VerbosityToLevel(verbosity int) zapcore.Level {
	if verbosity >= VerbosityDebug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// LevelName returns a human-readable name for verbosity level
func LevelName(verbosity int) string {
	if verbosity >= VerbosityDebug {
		return "Debug (-v)"
	}
	return "User"
}
