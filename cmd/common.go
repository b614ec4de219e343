/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valpere/codeshift/internal/config"
	"github.com/valpere/codeshift/internal/gateway"
	"github.com/valpere/codeshift/internal/llm"
	"github.com/valpere/codeshift/internal/normalize"
	"github.com/valpere/codeshift/internal/pipeline"
	"github.com/valpere/codeshift/internal/store"
	"github.com/valpere/codeshift/internal/workflow"
)

func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// migrator bundles what a command needs to run migrations.
type migrator struct {
	cfg    *config.Config
	model  llm.Model
	runner workflow.Runner
	db     *store.Store
}

func (m *migrator) Close() {
	if m.db != nil {
		m.db.Close()
	}
}

// buildMigrator wires backend, gateway, stages and engine from cfg. The
// migration memory is layered on top unless caching is disabled.
func buildMigrator(ctx context.Context, cfg *config.Config) (*migrator, error) {
	model, err := llm.NewModel(ctx, cfg.Provider, cfg.LLMConfig())
	if err != nil {
		return nil, err
	}

	langs := cfg.Languages()
	gw := gateway.New(model, normalize.New(langs.FenceTag()),
		gateway.WithLogger(logger),
		gateway.WithTimeout(cfg.Timeout))
	stages := pipeline.NewStages(gw, langs)
	engine := workflow.New(stages.List(), workflow.WithLogger(logger))

	m := &migrator{cfg: cfg, model: model, runner: engine}
	if cfg.NoCache || cfg.DBPath == "" {
		return m, nil
	}

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	m.db = db
	m.runner = workflow.NewMemoRunner(engine, db, langs, cfg.ModelLabel(), logger)
	return m, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := cfg.EnsureDBDir(); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func writeFile(path string, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// statusLine summarises a finished run for the terminal.
func statusLine(state *pipeline.State) string {
	switch {
	case state.FromMemory:
		return "from migration memory"
	case state.Succeeded():
		return "ok"
	}
	return fmt.Sprintf("analysis %s, translation %s", state.Explanation.Status, state.TranslatedCode.Status)
}
