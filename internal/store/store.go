package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/codeshift/internal/gateway"
	"github.com/valpere/codeshift/internal/pipeline"
)

// ErrIncompleteRun is returned when a run with a failed or skipped stage
// is offered to the migration memory.
var ErrIncompleteRun = errors.New("run did not complete successfully")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS migration_runs (
		id TEXT PRIMARY KEY,
		source_code TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		model TEXT NOT NULL,
		explanation TEXT NOT NULL,
		explanation_status TEXT,
		translated_code TEXT NOT NULL,
		translation_status TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stage_records (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_ms INTEGER,
		started_at TIMESTAMP,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES migration_runs(id)
	);

	-- migration_memory keeps fully successful migrations for reuse
	CREATE TABLE IF NOT EXISTS migration_memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		model TEXT NOT NULL,
		explanation TEXT NOT NULL,
		translated_code TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, source_lang, target_lang, model)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON migration_memory(source_text, source_lang, target_lang, model);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON migration_runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun records a run and its stage history, whatever its outcome.
func (s *Store) SaveRun(ctx context.Context, state *pipeline.State, langs pipeline.Languages, model string) error {
	res := state.Result()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO migration_runs (id, source_code, source_lang, target_lang, model, explanation, explanation_status, translated_code, translation_status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.RunID, state.SourceCode, langs.Source, langs.Target, model,
		res.Explanation, res.ExplanationStatus, res.TranslatedCode, res.TranslationStatus, time.Now())
	if err != nil {
		return err
	}

	for i, rec := range state.History {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stage_records (run_id, seq, stage, status, duration_ms, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
			state.RunID, i, rec.Name, rec.Status.String(), rec.Duration().Milliseconds(), rec.StartedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RunEntry is a row from the migration_runs table.
type RunEntry struct {
	ID             string
	SourceLang     string
	TargetLang     string
	Model          string
	Explanation    gateway.Reply
	TranslatedCode gateway.Reply
	CreatedAt      time.Time
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	query := `SELECT id, source_lang, target_lang, model, explanation, COALESCE(explanation_status, ''), translated_code, COALESCE(translation_status, ''), created_at FROM migration_runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunEntry
	for rows.Next() {
		var (
			e                       RunEntry
			explanation, translated string
			explStatus, transStatus string
		)
		if err := rows.Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.Model, &explanation, &explStatus, &translated, &transStatus, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Explanation = storedReply(explanation, explStatus)
		e.TranslatedCode = storedReply(translated, transStatus)
		results = append(results, e)
	}

	return results, rows.Err()
}

// storedReply rebuilds a reply; rows without a status fall back to the
// text markers.
func storedReply(text, status string) gateway.Reply {
	if status == "" {
		return gateway.FromText(text)
	}
	return gateway.Reply{Text: text, Status: gateway.ParseStatus(status)}
}

// CachedMigration is a reusable result from the migration memory.
type CachedMigration struct {
	ID             string
	Explanation    string
	TranslatedCode string
}

func (s *Store) GetCached(ctx context.Context, sourceCode string, langs pipeline.Languages, model string) (*CachedMigration, bool, error) {
	var (
		c           CachedMigration
		invalidated bool
	)
	key := normalizeText(sourceCode)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, explanation, translated_code, invalidated FROM migration_memory WHERE source_text = ? AND source_lang = ? AND target_lang = ? AND model = ?`,
		key, langs.Source, langs.Target, model).Scan(&c.ID, &c.Explanation, &c.TranslatedCode, &invalidated)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if invalidated {
		return nil, false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE migration_memory SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		time.Now(), c.ID)

	return &c, true, err
}

// SaveToMemory stores a successful run for reuse. Runs with a failed or
// skipped stage are rejected with ErrIncompleteRun.
func (s *Store) SaveToMemory(ctx context.Context, state *pipeline.State, langs pipeline.Languages, model string) error {
	if !state.Succeeded() {
		return ErrIncompleteRun
	}
	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO migration_memory (id, source_text, source_lang, target_lang, model, explanation, translated_code, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(state.SourceCode), langs.Source, langs.Target, model,
		state.Explanation.Text, state.TranslatedCode.Text, time.Now(), time.Now())
	return err
}

// MemoryEntry is a row from the migration_memory table.
type MemoryEntry struct {
	ID          string
	SourceText  string
	SourceLang  string
	TargetLang  string
	Model       string
	UsageCount  int
	Invalidated bool
	LastUsed    time.Time
}

// CacheStats summarises migration memory usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
	TotalRuns      int
	DegradedRuns   int
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE migration_memory SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// DeleteMemory permanently removes a migration memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM migration_memory WHERE id = ?`, id)
	return err
}

// ClearMemory removes all migration memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM migration_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns all memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, source_lang, target_lang, model, usage_count, invalidated, last_used FROM migration_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.SourceLang, &e.TargetLang, &e.Model, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the memory and the run log.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM migration_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN explanation_status = 'ok' AND translation_status = 'ok' THEN 0 ELSE 1 END), 0)
		FROM migration_runs`).Scan(&stats.TotalRuns, &stats.DegradedRuns)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
