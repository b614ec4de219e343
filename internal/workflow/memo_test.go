package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valpere/codeshift/internal/normalize"
	"github.com/valpere/codeshift/internal/pipeline"
	"github.com/valpere/codeshift/internal/store"
)

func newMemoRunner(t *testing.T, model *scriptedModel) (*MemoRunner, *store.Store) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "memo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewMemoRunner(newEngine(t, model), db, pipeline.DefaultLanguages(), "scripted", zaptest.NewLogger(t)), db
}

func TestMemoRunner_ReusesSuccessfulRun(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		plain("Explains."),
		plain("x = 1"),
	}}
	m, db := newMemoRunner(t, model)
	ctx := context.Background()

	first, err := m.Run(ctx, "MOVE 1 TO X.")
	require.NoError(t, err)
	assert.False(t, first.FromMemory)

	second, err := m.Run(ctx, "MOVE 1 TO X.\n")
	require.NoError(t, err)
	assert.True(t, second.FromMemory)
	assert.Equal(t, "x = 1", second.TranslatedCode.Text)
	assert.True(t, second.Succeeded())
	assert.Equal(t, int32(2), model.callCount.Load(), "the second run must not call the model")

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMemoRunner_DegradedRunIsNotReused(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		fail(errors.New("boom")),
		fail(errors.New("boom again")),
	}}
	m, db := newMemoRunner(t, model)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		state, err := m.Run(ctx, "X")
		require.NoError(t, err)
		assert.False(t, state.FromMemory)
	}
	assert.Equal(t, int32(2), model.callCount.Load())

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries)
	assert.Equal(t, 2, stats.DegradedRuns)
}

func TestMemoRunner_EmptySource(t *testing.T) {
	model := &scriptedModel{}
	m, _ := newMemoRunner(t, model)

	_, err := m.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySource)
	assert.Equal(t, int32(0), model.callCount.Load())
}

func TestMemoRunner_WhitespaceSourceRunsBothStages(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){plain("e"), plain("c")}}
	m, _ := newMemoRunner(t, model)

	state, err := m.Run(context.Background(), " \n")
	require.NoError(t, err)
	assert.False(t, state.FromMemory)
	assert.True(t, state.Succeeded())
	assert.Equal(t, int32(2), model.callCount.Load())
}

type brokenMemory struct{}

func (brokenMemory) GetCached(context.Context, string, pipeline.Languages, string) (*store.CachedMigration, bool, error) {
	return nil, false, errors.New("disk I/O error")
}

func (brokenMemory) SaveToMemory(context.Context, *pipeline.State, pipeline.Languages, string) error {
	return errors.New("disk I/O error")
}

func (brokenMemory) SaveRun(context.Context, *pipeline.State, pipeline.Languages, string) error {
	return errors.New("disk I/O error")
}

func TestMemoRunner_StoreErrorsDoNotFailRun(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){plain("e"), plain("c")}}
	m := NewMemoRunner(newEngine(t, model), brokenMemory{}, pipeline.DefaultLanguages(), "scripted", nil)

	state, err := m.Run(context.Background(), "X")
	require.NoError(t, err)
	assert.True(t, state.Succeeded())
}
