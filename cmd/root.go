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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/codeshift/internal/config"
	"github.com/valpere/codeshift/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string
	verbose bool

	v      = config.NewViper()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "codeshift",
	Short: "LLM-assisted legacy code migration",
	Long: `A CLI application that migrates legacy programs in two steps:
an analysis pass explains the business logic, then a translation pass
rewrites the program in the target language using that explanation.

Supported providers: Gemini (default), Ollama, OpenRouter

Use "codeshift migrate --help" for migration options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.codeshift.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	pf.StringP("source", "s", "COBOL", "Source language")
	pf.StringP("target", "t", "Python", "Target language")
	pf.String("provider", config.DefaultProvider, "Model provider: gemini, ollama, openrouter")
	pf.String("model", "", "Model name (provider default if empty)")
	pf.Float32("temperature", 0, "Sampling temperature")
	pf.Duration("timeout", config.DefaultTimeout, "Timeout for a single model call")
	pf.String("ollama-url", "", "Ollama base URL")
	pf.String("db", config.DefaultDBPath, "Database path for migration memory")
	pf.Bool("no-cache", false, "Disable migration memory (on by default); always call the model")

	for key, flag := range map[string]string{
		config.KeySourceLang:  "source",
		config.KeyTargetLang:  "target",
		config.KeyProvider:    "provider",
		config.KeyModel:       "model",
		config.KeyTemperature: "temperature",
		config.KeyTimeout:     "timeout",
		config.KeyOllamaURL:   "ollama-url",
		config.KeyDBPath:      "db",
		config.KeyNoCache:     "no-cache",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
