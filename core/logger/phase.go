package logger

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// PhaseObserver is notified when a phase ends.
type PhaseObserver interface {
	ObservePhase(name string, duration time.Duration, err error)
}

// Phase scopes one step of a pipeline run. Begin it, then defer End with the
// step's error so the end is recorded on every return path:
//
//	ph := logger.BeginPhase(log, "stage", zap.String("dataset", name))
//	defer func() { ph.End(err) }()
type Phase struct {
	name     string
	log      *zap.Logger
	started  time.Time
	observer PhaseObserver
	once     sync.Once
	duration time.Duration
}

// BeginPhase logs the start of a named phase.
func BeginPhase(l *zap.Logger, name string, fields ...zap.Field) *Phase {
	return BeginObservedPhase(l, nil, name, fields...)
}

// BeginObservedPhase is BeginPhase with an observer that receives the outcome.
func BeginObservedPhase(l *zap.Logger, observer PhaseObserver, name string, fields ...zap.Field) *Phase {
	if l == nil {
		l = zap.NewNop()
	}
	p := &Phase{
		name:     name,
		log:      l.With(append([]zap.Field{zap.String("phase", name)}, fields...)...),
		started:  time.Now(),
		observer: observer,
	}
	p.log.Debug("Phase started")
	return p
}

// End closes the phase. Only the first call has any effect.
func (p *Phase) End(err error) time.Duration {
	p.once.Do(func() {
		p.duration = time.Since(p.started)
		if err != nil {
			p.log.Error("Phase failed", zap.Duration("duration", p.duration), zap.Error(err))
		} else {
			p.log.Info("Phase completed", zap.Duration("duration", p.duration))
		}
		if p.observer != nil {
			p.observer.ObservePhase(p.name, p.duration, err)
		}
	})
	return p.duration
}

// Name returns the phase name.
func (p *Phase) Name() string {
	return p.name
}
