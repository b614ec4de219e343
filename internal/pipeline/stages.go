// Package pipeline implements the two migration stages. Analyze explains
// the source program; Translate rewrites it in the target language unless
// the explanation already failed.
package pipeline

import (
	"context"

	"github.com/valpere/codeshift/internal/gateway"
)

const (
	StageAnalyze   = "analyze"
	StageTranslate = "translate"
)

// Completer asks the model for one completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) gateway.Reply
}

// Stage is a named step from accumulated state to a partial update.
type Stage struct {
	Name string
	Run  func(ctx context.Context, s State) Update
}

type Stages struct {
	gw    Completer
	langs Languages
}

func NewStages(gw Completer, langs Languages) *Stages {
	if langs.Source == "" {
		langs.Source = DefaultLanguages().Source
	}
	if langs.Target == "" {
		langs.Target = DefaultLanguages().Target
	}
	return &Stages{gw: gw, langs: langs}
}

func (st *Stages) Languages() Languages { return st.langs }

// List returns the stages in execution order.
func (st *Stages) List() []Stage {
	return []Stage{
		{Name: StageAnalyze, Run: st.Analyze},
		{Name: StageTranslate, Run: st.Translate},
	}
}

// Analyze explains the business logic of the source code.
func (st *Stages) Analyze(ctx context.Context, s State) Update {
	reply := st.gw.Complete(ctx, buildAnalyzePrompt(st.langs, s.SourceCode))
	return Update{Explanation: &reply}
}

// Translate produces target code from the source and its explanation. A
// failed or missing explanation pauses the stage without a model call.
func (st *Stages) Translate(ctx context.Context, s State) Update {
	if upstreamFailed(s.Explanation) {
		reply := gateway.Paused()
		return Update{TranslatedCode: &reply}
	}

	reply := st.gw.Complete(ctx, buildTranslatePrompt(st.langs, s.SourceCode, s.Explanation.Text))
	return Update{TranslatedCode: &reply}
}

func upstreamFailed(explanation *gateway.Reply) bool {
	if explanation == nil {
		return true
	}
	switch explanation.Status {
	case gateway.StatusRateLimited, gateway.StatusFailed, gateway.StatusSkipped:
		return true
	}
	return false
}
