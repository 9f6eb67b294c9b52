package main

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/assistd/internal/assistant"
	"github.com/fyrsmithlabs/assistd/internal/scenario"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scenarioVerbose bool

// scenarioCmd replays scripted conversations offline
var scenarioCmd = &cobra.Command{
	Use:   "scenario [file or dir]",
	Short: "Replay scripted conversations against the built-in variants",
	Long: `Replay scripted conversations against the built-in assistant variants.
Model replies come from the scenario file, so no server or provider is needed.

Examples:
  assistctl scenario internal/scenario/testdata
  assistctl scenario -v greeter.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func init() {
	scenarioCmd.Flags().BoolVarP(&scenarioVerbose, "verbose", "v", false, "show passing assertions")
	rootCmd.AddCommand(scenarioCmd)
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenarios, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios found in %s", args[0])
	}

	runner, err := scenario.NewRunner(scenario.RunnerConfig{
		Variants: []assistant.Config{
			assistant.ChatConfig(),
			assistant.GreeterConfig(),
			assistant.DiagnosticConfig(),
		},
		Logger: zap.NewNop(),
	})
	if err != nil {
		return err
	}

	results, err := runner.RunScenarios(cmd.Context(), scenarios)
	if err != nil {
		return err
	}

	failed := printResults(cmd, results, scenarioVerbose)
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return nil
}

func printResults(cmd *cobra.Command, results []scenario.TestResult, verbose bool) int {
	out := cmd.OutOrStdout()
	passed, failed := 0, 0

	for _, r := range results {
		status := okStyle.Render("✓ PASS")
		if !r.Passed {
			status = errStyle.Render("✗ FAIL")
			failed++
		} else {
			passed++
		}
		fmt.Fprintf(out, "%s %s %s\n", status, r.Scenario, dimStyle.Render("("+r.Duration.String()+")"))

		if r.Error != "" {
			fmt.Fprintf(out, "  Error: %s\n", r.Error)
		}
		if verbose || !r.Passed {
			for _, ar := range r.Assertions {
				mark := "  ✓"
				if !ar.Passed {
					mark = "  ✗"
				}
				label := ar.Assertion.Message
				if label == "" {
					label = ar.Assertion.Type + " " + ar.Assertion.Value
				}
				fmt.Fprintf(out, "%s %s\n", mark, label)
				if !ar.Passed && ar.Message != "" {
					fmt.Fprintf(out, "      → %s\n", ar.Message)
				}
			}
		}
	}

	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "Total: %d passed, %d failed\n", passed, failed)
	return failed
}
