package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/valpere/codeshift/internal/gateway"
)

var (
	// ErrFieldAlreadySet is returned when an update would overwrite a field.
	ErrFieldAlreadySet = errors.New("state field already set")
	// ErrOutOfOrder is returned when the translation arrives before the
	// explanation.
	ErrOutOfOrder = errors.New("translated code set before explanation")
)

// State is the value threaded through the stages of one run.
type State struct {
	RunID          string
	SourceCode     string
	Explanation    *gateway.Reply
	TranslatedCode *gateway.Reply
	History        []StageRecord
	// FromMemory is set when the result was reused instead of generated.
	FromMemory bool
}

// StageRecord logs one stage execution.
type StageRecord struct {
	Name      string
	StartedAt time.Time
	EndedAt   time.Time
	Status    gateway.Status
}

func (r StageRecord) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// Update is the partial state returned by a stage.
type Update struct {
	Explanation    *gateway.Reply
	TranslatedCode *gateway.Reply
}

// NewState starts a run for sourceCode.
func NewState(runID, sourceCode string) *State {
	return &State{RunID: runID, SourceCode: sourceCode}
}

// Merge copies the fields set in u into s. A field is written at most
// once, and the explanation always precedes the translation.
func (s *State) Merge(u Update) error {
	if u.Explanation != nil && s.Explanation != nil {
		return fmt.Errorf("%w: explanation", ErrFieldAlreadySet)
	}
	if u.TranslatedCode != nil {
		if s.TranslatedCode != nil {
			return fmt.Errorf("%w: translated code", ErrFieldAlreadySet)
		}
		if s.Explanation == nil && u.Explanation == nil {
			return ErrOutOfOrder
		}
	}

	if u.Explanation != nil {
		r := *u.Explanation
		s.Explanation = &r
	}
	if u.TranslatedCode != nil {
		r := *u.TranslatedCode
		s.TranslatedCode = &r
	}
	return nil
}

// Status of the most significant field written by u.
func (u Update) Status() gateway.Status {
	switch {
	case u.TranslatedCode != nil:
		return u.TranslatedCode.Status
	case u.Explanation != nil:
		return u.Explanation.Status
	}
	return gateway.StatusOK
}

// Result is the flat view handed to presentation layers.
type Result struct {
	SourceCode        string `json:"source_code"`
	Explanation       string `json:"explanation"`
	TranslatedCode    string `json:"translated_code"`
	ExplanationStatus string `json:"explanation_status"`
	TranslationStatus string `json:"translation_status"`
}

func (s *State) Result() Result {
	res := Result{SourceCode: s.SourceCode}
	if s.Explanation != nil {
		res.Explanation = s.Explanation.Text
		res.ExplanationStatus = s.Explanation.Status.String()
	}
	if s.TranslatedCode != nil {
		res.TranslatedCode = s.TranslatedCode.Text
		res.TranslationStatus = s.TranslatedCode.Status.String()
	}
	return res
}

// Succeeded reports whether both stages produced genuine model output.
func (s *State) Succeeded() bool {
	return s.Explanation != nil && s.Explanation.OK() &&
		s.TranslatedCode != nil && s.TranslatedCode.OK()
}
