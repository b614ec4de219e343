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
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/codeshift/internal/config"
	"github.com/valpere/codeshift/internal/pipeline"
	"github.com/valpere/codeshift/internal/report"
	"github.com/valpere/codeshift/internal/workflow"
)

var (
	batchDir    string
	batchOutDir string
	batchExts   []string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Migrate every program in a directory",
	Long: `Run an independent migration for each matching file in a directory.

Each program gets its own run and state. For every input NAME.ext the
translated code is written to OUTDIR/NAME<target ext> and the report to
OUTDIR/NAME.md. A failing program does not stop the others.

Example:
  codeshift batch -d ./legacy -o ./migrated --ext .cbl,.cob --concurrency 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jobs, err := collectJobs(batchDir, batchExts)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return fmt.Errorf("no files matching %s in %s", strings.Join(batchExts, ","), batchDir)
		}

		ctx := context.Background()
		m, err := buildMigrator(ctx, cfg)
		if err != nil {
			return err
		}
		defer m.Close()

		langs := cfg.Languages()
		fmt.Fprintf(os.Stderr, "Migrating %d programs (%s to %s, concurrency %d)...\n",
			len(jobs), langs.Source, langs.Target, cfg.Concurrency)

		results := workflow.Batch(ctx, m.runner, jobs, cfg.Concurrency)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSTATUS\tLATENCY\tOUTPUT")
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(w, "%s\terror: %v\t%s\t-\n", r.Name, r.Err, r.Latency.Round(time.Millisecond))
				continue
			}
			out, err := writeBatchOutputs(batchOutDir, r, langs)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, statusLine(r.State), r.Latency.Round(time.Millisecond), out)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		succeeded, degraded, failed := workflow.Counts(results)
		fmt.Printf("\nSucceeded: %d, degraded: %d, failed: %d\n", succeeded, degraded, failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d programs failed", failed, len(results))
		}
		return nil
	},
}

func collectJobs(dir string, exts []string) ([]workflow.Job, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = true
	}

	var jobs []workflow.Job
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !want[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		jobs = append(jobs, workflow.Job{Name: rel, SourceCode: string(data)})
		return nil
	})
	return jobs, err
}

func writeBatchOutputs(outDir string, r workflow.BatchResult, langs pipeline.Languages) (string, error) {
	res := r.State.Result()
	stem := strings.TrimSuffix(r.Name, filepath.Ext(r.Name))

	codePath := filepath.Join(outDir, stem+langs.FileExt())
	if r.State.TranslatedCode.OK() {
		if err := writeFile(codePath, res.TranslatedCode+"\n"); err != nil {
			return "", err
		}
	} else {
		codePath = "-"
	}

	if err := writeFile(filepath.Join(outDir, stem+".md"), report.Markdown(res, langs)); err != nil {
		return "", err
	}
	return codePath, nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchDir, "dir", "d", "", "Directory with legacy programs (required)")
	batchCmd.Flags().StringVarP(&batchOutDir, "output", "o", "", "Output directory (required)")
	batchCmd.Flags().StringSliceVar(&batchExts, "ext", []string{".cbl", ".cob"}, "File extensions to migrate")
	batchCmd.Flags().Int("concurrency", 4, "Programs migrated in parallel")
	if err := v.BindPFlag(config.KeyConcurrency, batchCmd.Flags().Lookup("concurrency")); err != nil {
		panic(err)
	}

	batchCmd.MarkFlagRequired("dir")
	batchCmd.MarkFlagRequired("output")
}
