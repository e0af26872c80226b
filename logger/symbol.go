package logger

import "go.uber.org/zap"

// Pulse symbols mark the lifecycle of an evaluation pass in log output.
const (
	SymPulse      = "꩜" // decisions and dispatch
	SymPulseOpen  = "✿" // pass / plan started
	SymPulseClose = "❀" // pass / plan finished
)

// AddPulseSymbol wraps a logger with the Pulse symbol (꩜)
//
// Usage:
//
//	c.pulseLog = logger.AddPulseSymbol(baseLogger)
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, SymPulse)
}

// AddPulseOpenSymbol wraps a logger with the PulseOpen symbol (✿)
func AddPulseOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, SymPulseOpen)
}

// AddPulseCloseSymbol wraps a logger with the PulseClose symbol (❀)
func AddPulseCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, SymPulseClose)
}
