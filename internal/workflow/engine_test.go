package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valpere/codeshift/internal/gateway"
	"github.com/valpere/codeshift/internal/llm"
	"github.com/valpere/codeshift/internal/normalize"
	"github.com/valpere/codeshift/internal/pipeline"
)

// scriptedModel answers call n with responses[n-1].
type scriptedModel struct {
	responses []func() (normalize.Raw, error)
	callCount atomic.Int32
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (normalize.Raw, error) {
	n := int(m.callCount.Add(1))
	if n > len(m.responses) {
		return normalize.Raw{}, fmt.Errorf("unexpected call %d", n)
	}
	return m.responses[n-1]()
}

func plain(s string) func() (normalize.Raw, error) {
	return func() (normalize.Raw, error) { return normalize.Plain(s), nil }
}

func fail(err error) func() (normalize.Raw, error) {
	return func() (normalize.Raw, error) { return normalize.Raw{}, err }
}

func newEngine(t *testing.T, model *scriptedModel) *Engine {
	t.Helper()
	langs := pipeline.DefaultLanguages()
	gw := gateway.New(model, normalize.New(langs.FenceTag()), gateway.WithLogger(zaptest.NewLogger(t)))
	stages := pipeline.NewStages(gw, langs)
	return New(stages.List(), WithLogger(zaptest.NewLogger(t)))
}

func TestEngine_Run_HappyPath(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		plain("Explanation text"),
		plain("def f(): pass"),
	}}
	e := newEngine(t, model)

	state, err := e.Run(context.Background(), "DISPLAY HELLO")
	require.NoError(t, err)

	assert.Equal(t, pipeline.Result{
		SourceCode:        "DISPLAY HELLO",
		Explanation:       "Explanation text",
		TranslatedCode:    "def f(): pass",
		ExplanationStatus: "ok",
		TranslationStatus: "ok",
	}, state.Result())
	assert.Equal(t, int32(2), model.callCount.Load())
	assert.Equal(t, PhaseTranslated, PhaseOf(state))
	assert.NotEmpty(t, state.RunID)
	require.Len(t, state.History, 2)
	assert.Equal(t, pipeline.StageAnalyze, state.History[0].Name)
	assert.Equal(t, pipeline.StageTranslate, state.History[1].Name)
}

func TestEngine_Run_RateLimitedShortCircuits(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		fail(fmt.Errorf("%w: 429", llm.ErrRateLimited)),
	}}
	e := newEngine(t, model)

	state, err := e.Run(context.Background(), "DISPLAY HELLO")
	require.NoError(t, err)

	res := state.Result()
	assert.Contains(t, res.Explanation, gateway.RateLimitMarker)
	assert.Equal(t, "⚠️ Translation paused due to error in previous step.", res.TranslatedCode)
	assert.Equal(t, int32(1), model.callCount.Load(), "translate must not call the model")
	assert.Equal(t, gateway.StatusSkipped, state.History[1].Status)
	assert.False(t, state.Succeeded())
}

func TestEngine_Run_ErrorShortCircuits(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		fail(errors.New("dial tcp: connection refused")),
	}}
	e := newEngine(t, model)

	state, err := e.Run(context.Background(), "DISPLAY HELLO")
	require.NoError(t, err)

	assert.Equal(t, "❌ Error: dial tcp: connection refused", state.Explanation.Text)
	assert.Equal(t, gateway.PausedText, state.TranslatedCode.Text)
	assert.Equal(t, int32(1), model.callCount.Load())
}

func TestEngine_Run_TranslateFailureStillPopulates(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		plain("fine"),
		fail(errors.New("boom")),
	}}
	e := newEngine(t, model)

	state, err := e.Run(context.Background(), "X")
	require.NoError(t, err)

	assert.Equal(t, "fine", state.Explanation.Text)
	assert.Equal(t, "❌ Error: boom", state.TranslatedCode.Text)
	assert.Equal(t, int32(2), model.callCount.Load())
}

func TestEngine_Run_NormalizesBothStages(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		func() (normalize.Raw, error) {
			return normalize.Classify(`[{'type': 'text', 'text': 'Checks credit.'}]`), nil
		},
		plain("```python\nstatus = 'APPROVED'\n```"),
	}}
	e := newEngine(t, model)

	state, err := e.Run(context.Background(), "X")
	require.NoError(t, err)

	assert.Equal(t, "Checks credit.", state.Explanation.Text)
	assert.Equal(t, "status = 'APPROVED'", state.TranslatedCode.Text)
}

func TestEngine_Run_EmptySource(t *testing.T) {
	model := &scriptedModel{}
	e := newEngine(t, model)

	_, err := e.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySource)
	assert.Equal(t, int32(0), model.callCount.Load())
}

func TestEngine_Run_WhitespaceSourceRunsBothStages(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){plain("e"), plain("c")}}
	e := newEngine(t, model)

	state, err := e.Run(context.Background(), "\n")
	require.NoError(t, err)

	assert.Equal(t, "\n", state.SourceCode)
	require.NotNil(t, state.Explanation)
	require.NotNil(t, state.TranslatedCode)
	assert.Equal(t, "e", state.Explanation.Text)
	assert.Equal(t, "c", state.TranslatedCode.Text)
	assert.Equal(t, int32(2), model.callCount.Load())
}

func TestEngine_Run_FreshStatePerRun(t *testing.T) {
	model := &scriptedModel{responses: []func() (normalize.Raw, error){
		plain("e1"), plain("t1"), plain("e2"), plain("t2"),
	}}
	e := newEngine(t, model)

	first, err := e.Run(context.Background(), "A")
	require.NoError(t, err)
	second, err := e.Run(context.Background(), "B")
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, "t1", first.TranslatedCode.Text)
	assert.Equal(t, "t2", second.TranslatedCode.Text)
	assert.Equal(t, "B", second.SourceCode)
}

func TestEngine_Run_StageTimeout(t *testing.T) {
	var sawDeadline atomic.Bool
	stages := []pipeline.Stage{{
		Name: "slow",
		Run: func(ctx context.Context, s pipeline.State) pipeline.Update {
			_, ok := ctx.Deadline()
			sawDeadline.Store(ok)
			r := gateway.Reply{Text: "e", Status: gateway.StatusOK}
			return pipeline.Update{Explanation: &r}
		},
	}}
	e := New(stages, WithStageTimeout(time.Second))

	_, err := e.Run(context.Background(), "X")
	require.NoError(t, err)
	assert.True(t, sawDeadline.Load())
}

func TestEngine_Run_MergeViolation(t *testing.T) {
	twice := func(ctx context.Context, s pipeline.State) pipeline.Update {
		r := gateway.Reply{Text: "e", Status: gateway.StatusOK}
		return pipeline.Update{Explanation: &r}
	}
	e := New([]pipeline.Stage{{Name: "a", Run: twice}, {Name: "b", Run: twice}})

	_, err := e.Run(context.Background(), "X")
	assert.ErrorIs(t, err, pipeline.ErrFieldAlreadySet)
}

func TestPhase(t *testing.T) {
	s := pipeline.NewState("id", "X")
	assert.Equal(t, PhaseStart, PhaseOf(s))
	assert.False(t, PhaseOf(s).Terminal())

	r := gateway.Reply{Status: gateway.StatusOK}
	require.NoError(t, s.Merge(pipeline.Update{Explanation: &r}))
	assert.Equal(t, "analyzed", PhaseOf(s).String())

	require.NoError(t, s.Merge(pipeline.Update{TranslatedCode: &r}))
	assert.True(t, PhaseOf(s).Terminal())
	assert.Equal(t, "unknown", Phase(9).String())
}
