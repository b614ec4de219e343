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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/codeshift/internal/pipeline"
	"github.com/valpere/codeshift/internal/report"
	"github.com/valpere/codeshift/internal/samples"
)

var (
	inputFile   string
	outputFile  string
	explainFile string
	htmlFile    string
	useSample   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Explain and translate one legacy program",
	Long: `Run the two-step migration on a single program.

Step 1 asks the model to explain the business logic, rules and data
structures. Step 2 translates the program into the target language using
that explanation. If step 1 fails or is rate limited, step 2 is skipped
and a pause notice is shown instead of code.

Without -o the explanation and code are printed to stdout.

Migration memory is on by default: a program already migrated with the
same languages and model is answered from the local database without
calling the model, and every run is recorded there. Pass --no-cache to
call the model afresh and leave the database untouched.

Example:
  codeshift migrate --sample
  codeshift migrate -i LOANS.cbl -o loans.py --explain loans.md
  codeshift migrate -i PAYROLL.cbl -t Java --provider ollama --model qwen2.5-coder`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readSource()
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		m, err := buildMigrator(ctx, cfg)
		if err != nil {
			return err
		}
		defer m.Close()

		langs := cfg.Languages()
		fmt.Fprintf(os.Stderr, "Migrating %s to %s with %s...\n", langs.Source, langs.Target, m.model.Name())

		state, err := m.runner.Run(ctx, source)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		res := state.Result()

		if outputFile == "" && explainFile == "" && htmlFile == "" {
			printResult(res, langs)
		}
		if outputFile != "" {
			if err := writeFile(outputFile, res.TranslatedCode+"\n"); err != nil {
				return err
			}
		}

		md := report.Markdown(res, langs)
		if explainFile != "" {
			if err := writeFile(explainFile, md); err != nil {
				return err
			}
		}
		if htmlFile != "" {
			title := fmt.Sprintf("%s to %s migration", langs.Source, langs.Target)
			if err := writeFile(htmlFile, report.Page(title, report.ToHTML([]byte(md)))); err != nil {
				return err
			}
		}

		fmt.Fprintf(os.Stderr, "Run %s: %s\n", state.RunID, statusLine(state))
		return nil
	},
}

func readSource() (string, error) {
	switch {
	case useSample && inputFile != "":
		return "", errors.New("--input and --sample are mutually exclusive")
	case useSample:
		return samples.LoanCheck(), nil
	case inputFile == "":
		return "", errors.New("either --input or --sample is required")
	}
	if inputFile == outputFile {
		return "", errors.New("input file and output file cannot be the same")
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	return string(data), nil
}

// printResult shows both stage outputs verbatim, sentinel texts included.
func printResult(res pipeline.Result, langs pipeline.Languages) {
	fmt.Printf("=== %s code ===\n%s\n\n", langs.Target, res.TranslatedCode)
	fmt.Printf("=== Business logic ===\n%s\n", res.Explanation)
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Legacy source file to migrate")
	migrateCmd.Flags().BoolVar(&useSample, "sample", false, "Migrate the built-in LOAN-CHECK COBOL sample")
	migrateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for translated code")
	migrateCmd.Flags().StringVar(&explainFile, "explain", "", "Write a Markdown report with the explanation")
	migrateCmd.Flags().StringVar(&htmlFile, "html", "", "Write an HTML report with the explanation")
}
