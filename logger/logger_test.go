package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
	}{
		{name: "console output", jsonOutput: false, verbosity: 0},
		{name: "json output", jsonOutput: true, verbosity: 0},
		{name: "console debug", jsonOutput: false, verbosity: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := Logger
			t.Cleanup(func() { Logger = prev; JSONOutput = false })

			require.NoError(t, Initialize(tt.jsonOutput, tt.verbosity))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			wantDebug := tt.verbosity >= VerbosityDebug
			assert.Equal(t, wantDebug, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(3))
	assert.Equal(t, "User", LevelName(0))
	assert.Equal(t, "Debug (-v)", LevelName(1))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	// given a context carrying run and job ids
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithJobID(ctx, "backup")

	// when logging through the context logger
	FromContext(ctx, base).Infow("Launching job", FieldTier, 3)

	// then both ids are attached
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields[FieldRunID])
	assert.Equal(t, "backup", fields[FieldJobID])
	assert.EqualValues(t, 3, fields[FieldTier])
}

func TestFromContextWithoutFields(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	assert.Same(t, base, FromContext(context.Background(), base))
	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestComponentLoggerNamesAndSymbols(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Logger
	Logger = zap.New(core).Sugar()
	t.Cleanup(func() { Logger = prev })

	l := AddPulseSymbol(ComponentLogger("pulse.coordinator"))
	l.Infow("Pass finished", FieldCount, 2)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "pulse.coordinator", entry.LoggerName)
	assert.Equal(t, SymPulse, entry.ContextMap()[FieldSymbol])
}

func TestPackageHelpersAreSafeBeforeInitialize(t *testing.T) {
	prev := Logger
	Logger = zap.NewNop().Sugar()
	t.Cleanup(func() { Logger = prev })

	assert.NotPanics(t, func() {
		Infow("info", "k", "v")
		Warnw("warn")
		Errorw("error")
		Debugw("debug")
		Cleanup()
	})
}
