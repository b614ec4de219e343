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
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/codeshift/internal/llm"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the configured model provider is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		model, err := llm.NewModel(ctx, cfg.Provider, cfg.LLMConfig())
		if err != nil {
			return err
		}
		if err := model.IsAvailable(ctx); err != nil {
			return fmt.Errorf("%s is not available: %w", model.Name(), err)
		}
		fmt.Printf("%s is available\n", model.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
