package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/valpere/codeshift/internal/gateway"
	"github.com/valpere/codeshift/internal/pipeline"
)

const testModel = "gemini:gemini-flash-latest"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedState(id, source, explanation, code string) *pipeline.State {
	s := pipeline.NewState(id, source)
	e := gateway.Reply{Text: explanation, Status: gateway.StatusOK}
	c := gateway.Reply{Text: code, Status: gateway.StatusOK}
	_ = s.Merge(pipeline.Update{Explanation: &e})
	_ = s.Merge(pipeline.Update{TranslatedCode: &c})
	now := time.Now()
	s.History = []pipeline.StageRecord{
		{Name: pipeline.StageAnalyze, StartedAt: now, EndedAt: now.Add(time.Second), Status: gateway.StatusOK},
		{Name: pipeline.StageTranslate, StartedAt: now.Add(time.Second), EndedAt: now.Add(2 * time.Second), Status: gateway.StatusOK},
	}
	return s
}

func pausedState(id, source string) *pipeline.State {
	s := pipeline.NewState(id, source)
	e := gateway.Reply{Text: gateway.RateLimitText, Status: gateway.StatusRateLimited}
	p := gateway.Paused()
	_ = s.Merge(pipeline.Update{Explanation: &e})
	_ = s.Merge(pipeline.Update{TranslatedCode: &p})
	return s
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_GetCached_Miss(t *testing.T) {
	s := newTestStore(t)

	c, found, err := s.GetCached(context.Background(), "STOP RUN.", pipeline.DefaultLanguages(), testModel)
	if err != nil {
		t.Errorf("GetCached failed: %v", err)
	}
	if found || c != nil {
		t.Error("expected cache miss")
	}
}

func TestStore_GetCached_Hit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	langs := pipeline.DefaultLanguages()

	if err := s.SaveToMemory(ctx, finishedState("r1", "STOP RUN.", "Stops.", "raise SystemExit"), langs, testModel); err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}

	// Surrounding whitespace does not change the key.
	c, found, err := s.GetCached(ctx, "  STOP RUN.\n", langs, testModel)
	if err != nil {
		t.Fatalf("GetCached failed: %v", err)
	}
	if !found {
		t.Fatal("expected to find cached migration")
	}
	if c.Explanation != "Stops." || c.TranslatedCode != "raise SystemExit" {
		t.Errorf("unexpected cached migration: %+v", c)
	}

	entries, _ := s.ListMemory(ctx)
	if len(entries) != 1 || entries[0].UsageCount != 2 {
		t.Errorf("expected usage count to be bumped, got %+v", entries)
	}
}

func TestStore_GetCached_KeyedByLanguagesAndModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	langs := pipeline.DefaultLanguages()

	_ = s.SaveToMemory(ctx, finishedState("r1", "SRC", "e", "py"), langs, testModel)
	_ = s.SaveToMemory(ctx, finishedState("r2", "SRC", "e", "java"), pipeline.Languages{Source: "COBOL", Target: "Java"}, testModel)

	c, found, _ := s.GetCached(ctx, "SRC", langs, testModel)
	if !found || c.TranslatedCode != "py" {
		t.Errorf("COBOL->Python: expected 'py', got found=%v %+v", found, c)
	}
	c, found, _ = s.GetCached(ctx, "SRC", pipeline.Languages{Source: "COBOL", Target: "Java"}, testModel)
	if !found || c.TranslatedCode != "java" {
		t.Errorf("COBOL->Java: expected 'java', got found=%v %+v", found, c)
	}
	if _, found, _ = s.GetCached(ctx, "SRC", langs, "ollama:llama3.2"); found {
		t.Error("other model: expected not found")
	}
}

func TestStore_GetCached_Invalidated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	langs := pipeline.DefaultLanguages()

	_ = s.SaveToMemory(ctx, finishedState("r1", "SRC", "e", "c"), langs, testModel)

	entries, err := s.ListMemory(ctx)
	if err != nil || len(entries) == 0 {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if err := s.InvalidateMemory(ctx, entries[0].ID); err != nil {
		t.Fatalf("InvalidateMemory failed: %v", err)
	}

	_, found, err := s.GetCached(ctx, "SRC", langs, testModel)
	if err != nil {
		t.Errorf("GetCached failed: %v", err)
	}
	if found {
		t.Error("expected not found for invalidated migration")
	}
}

func TestStore_SaveToMemory_RejectsIncompleteRun(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveToMemory(context.Background(), pausedState("r1", "SRC"), pipeline.DefaultLanguages(), testModel)
	if !errors.Is(err, ErrIncompleteRun) {
		t.Errorf("expected ErrIncompleteRun, got %v", err)
	}
}

func TestStore_SaveRun_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	langs := pipeline.DefaultLanguages()

	if err := s.SaveRun(ctx, finishedState("run-ok", "A", "e", "c"), langs, testModel); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.SaveRun(ctx, pausedState("run-paused", "B"), langs, testModel); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	byID := map[string]RunEntry{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	if byID["run-ok"].TranslatedCode.Status != gateway.StatusOK {
		t.Errorf("unexpected status for run-ok: %+v", byID["run-ok"])
	}
	paused := byID["run-paused"]
	if paused.Explanation.Status != gateway.StatusRateLimited || paused.TranslatedCode.Status != gateway.StatusSkipped {
		t.Errorf("unexpected statuses for run-paused: %+v", paused)
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d (%v)", len(limited), err)
	}

	if err := s.SaveRun(ctx, finishedState("run-ok", "A", "e", "c"), langs, testModel); err == nil {
		t.Error("expected duplicate run id to fail")
	}
}

func TestStore_ListRuns_LegacyRowsWithoutStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_runs (id, source_code, source_lang, target_lang, model, explanation, translated_code) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"legacy", "SRC", "COBOL", "Python", testModel, gateway.RateLimitText, gateway.PausedText)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if runs[0].Explanation.Status != gateway.StatusRateLimited || runs[0].TranslatedCode.Status != gateway.StatusSkipped {
		t.Errorf("expected statuses recovered from text, got %+v", runs[0])
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	langs := pipeline.DefaultLanguages()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 0 || stats.TotalRuns != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	_ = s.SaveToMemory(ctx, finishedState("r1", "A", "e", "c"), langs, testModel)
	_ = s.SaveToMemory(ctx, finishedState("r2", "B", "e", "c"), langs, testModel)
	_ = s.SaveRun(ctx, finishedState("r1", "A", "e", "c"), langs, testModel)
	_ = s.SaveRun(ctx, pausedState("r3", "C"), langs, testModel)

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 2 || stats.ActiveEntries != 2 {
		t.Errorf("expected 2 active entries, got %+v", stats)
	}
	if stats.TotalRuns != 2 || stats.DegradedRuns != 1 {
		t.Errorf("expected 2 runs with 1 degraded, got %+v", stats)
	}
}

func TestStore_DeleteMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.SaveToMemory(ctx, finishedState("r1", "A", "e", "c"), pipeline.DefaultLanguages(), testModel)
	entries, _ := s.ListMemory(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if err := s.DeleteMemory(ctx, entries[0].ID); err != nil {
		t.Fatalf("DeleteMemory failed: %v", err)
	}

	entries, _ = s.ListMemory(ctx)
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after delete, got %d", len(entries))
	}
}

func TestStore_ClearMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	langs := pipeline.DefaultLanguages()

	_ = s.SaveToMemory(ctx, finishedState("r1", "A", "e", "c"), langs, testModel)
	_ = s.SaveToMemory(ctx, finishedState("r2", "B", "e", "c"), langs, testModel)

	n, err := s.ClearMemory(ctx)
	if err != nil {
		t.Fatalf("ClearMemory failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows cleared, got %d", n)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  STOP RUN.  ", "STOP RUN."},
		{"é", "é"}, // NFC normalization
		{"\t\nMOVE\t\n", "MOVE"},
		{"", ""},
	}

	for _, tt := range tests {
		result := normalizeText(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
