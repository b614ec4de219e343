// Package workflow runs the migration stages as a fixed linear sequence.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valpere/codeshift/internal/pipeline"
)

// ErrEmptySource is returned when the source string is empty.
var ErrEmptySource = errors.New("source code is empty")

// Phase is the position of a run in the state machine.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseAnalyzed
	PhaseTranslated
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseAnalyzed:
		return "analyzed"
	case PhaseTranslated:
		return "translated"
	}
	return "unknown"
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool { return p == PhaseTranslated }

// PhaseOf derives the phase from the fields already written to s.
func PhaseOf(s *pipeline.State) Phase {
	switch {
	case s.TranslatedCode != nil:
		return PhaseTranslated
	case s.Explanation != nil:
		return PhaseAnalyzed
	}
	return PhaseStart
}

type Engine struct {
	stages       []pipeline.Stage
	logger       *zap.Logger
	stageTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStageTimeout bounds each stage with its own deadline.
func WithStageTimeout(d time.Duration) Option {
	return func(e *Engine) { e.stageTimeout = d }
}

func New(stages []pipeline.Stage, opts ...Option) *Engine {
	e := &Engine{
		stages: stages,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every stage once, in order, on a fresh state. Stage
// outcomes never stop the sequence; a failed analysis is handled inside
// the translate stage.
func (e *Engine) Run(ctx context.Context, sourceCode string) (*pipeline.State, error) {
	if sourceCode == "" {
		return nil, ErrEmptySource
	}

	state := pipeline.NewState(e.newID(), sourceCode)
	log := e.logger.With(zap.String("run_id", state.RunID))
	log.Info("workflow started", zap.Int("source_chars", len(sourceCode)), zap.Int("stages", len(e.stages)))

	for _, stage := range e.stages {
		update, rec := e.runStage(ctx, stage, *state)
		if err := state.Merge(update); err != nil {
			return state, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		state.History = append(state.History, rec)

		log.Info("stage finished",
			zap.String("stage", stage.Name),
			zap.String("status", rec.Status.String()),
			zap.String("phase", PhaseOf(state).String()),
			zap.Duration("duration", rec.Duration()))
	}

	log.Info("workflow finished", zap.Bool("succeeded", state.Succeeded()))
	return state, nil
}

func (e *Engine) runStage(ctx context.Context, stage pipeline.Stage, snapshot pipeline.State) (pipeline.Update, pipeline.StageRecord) {
	if e.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stageTimeout)
		defer cancel()
	}

	rec := pipeline.StageRecord{Name: stage.Name, StartedAt: e.now()}
	update := stage.Run(ctx, snapshot)
	rec.EndedAt = e.now()
	rec.Status = update.Status()
	return update, rec
}
