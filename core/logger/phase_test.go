package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingObserver struct {
	names []string
	errs  []error
}

func (r *recordingObserver) ObservePhase(name string, _ time.Duration, err error) {
	r.names = append(r.names, name)
	r.errs = append(r.errs, err)
}

func TestPhase_EndOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := &recordingObserver{}

	ph := BeginObservedPhase(zap.New(core), rec, "stage", zap.String("dataset", "ledger"))
	ph.End(nil)
	ph.End(errors.New("ignored"))

	require.Len(t, rec.names, 1)
	assert.Equal(t, "stage", rec.names[0])
	assert.NoError(t, rec.errs[0])

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Phase started", entries[0].Message)
	assert.Equal(t, "Phase completed", entries[1].Message)
	assert.Equal(t, "ledger", entries[1].ContextMap()["dataset"])
}

func TestPhase_EndOnError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := &recordingObserver{}

	run := func() (err error) {
		ph := BeginObservedPhase(zap.New(core), rec, "compare")
		defer func() { ph.End(err) }()
		return errors.New("key column missing")
	}

	err := run()
	require.Error(t, err)
	require.Len(t, rec.errs, 1)
	assert.EqualError(t, rec.errs[0], "key column missing")

	failed := logs.FilterMessage("Phase failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestBeginPhase_NilLogger(t *testing.T) {
	ph := BeginPhase(nil, "noop")
	assert.Equal(t, "noop", ph.Name())
	assert.GreaterOrEqual(t, ph.End(nil), time.Duration(0))
}

func TestNew(t *testing.T) {
	l, err := New(&Config{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = New(&Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
