package workflow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valpere/codeshift/internal/gateway"
	"github.com/valpere/codeshift/internal/pipeline"
	"github.com/valpere/codeshift/internal/store"
)

// Memory is the part of *store.Store used by MemoRunner.
type Memory interface {
	GetCached(ctx context.Context, sourceCode string, langs pipeline.Languages, model string) (*store.CachedMigration, bool, error)
	SaveToMemory(ctx context.Context, state *pipeline.State, langs pipeline.Languages, model string) error
	SaveRun(ctx context.Context, state *pipeline.State, langs pipeline.Languages, model string) error
}

// MemoRunner reuses earlier successful migrations of the same source and
// records every fresh run. Store errors are logged and never fail a run.
type MemoRunner struct {
	runner Runner
	mem    Memory
	langs  pipeline.Languages
	model  string
	logger *zap.Logger
}

func NewMemoRunner(runner Runner, mem Memory, langs pipeline.Languages, model string, logger *zap.Logger) *MemoRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoRunner{runner: runner, mem: mem, langs: langs, model: model, logger: logger}
}

func (m *MemoRunner) Run(ctx context.Context, sourceCode string) (*pipeline.State, error) {
	if sourceCode == "" {
		return nil, ErrEmptySource
	}

	cached, found, err := m.mem.GetCached(ctx, sourceCode, m.langs, m.model)
	if err != nil {
		m.logger.Warn("migration memory lookup failed", zap.Error(err))
	}
	if found {
		m.logger.Info("migration memory hit", zap.String("entry", cached.ID))
		return fromMemory(sourceCode, cached)
	}

	state, err := m.runner.Run(ctx, sourceCode)
	if err != nil {
		return state, err
	}

	if err := m.mem.SaveRun(ctx, state, m.langs, m.model); err != nil {
		m.logger.Warn("failed to record run", zap.String("run_id", state.RunID), zap.Error(err))
	}
	if state.Succeeded() {
		if err := m.mem.SaveToMemory(ctx, state, m.langs, m.model); err != nil {
			m.logger.Warn("failed to save to migration memory", zap.String("run_id", state.RunID), zap.Error(err))
		}
	}
	return state, nil
}

func fromMemory(sourceCode string, c *store.CachedMigration) (*pipeline.State, error) {
	state := pipeline.NewState(uuid.New().String(), sourceCode)
	explanation := gateway.Reply{Text: c.Explanation, Status: gateway.StatusOK}
	code := gateway.Reply{Text: c.TranslatedCode, Status: gateway.StatusOK}
	if err := state.Merge(pipeline.Update{Explanation: &explanation}); err != nil {
		return nil, err
	}
	if err := state.Merge(pipeline.Update{TranslatedCode: &code}); err != nil {
		return nil, err
	}
	state.FromMemory = true
	return state, nil
}
