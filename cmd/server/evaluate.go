package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/liamcoop/rulesets/ruleservice"
	"github.com/liamcoop/rulesets/rules"
)

var (
	evalRulesetFile string
	evalPayloadFile string
	evalJSON        bool
	evalStopOnFirst bool
	evalMaxDepth    int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a ruleset file against a JSON payload",
	Long: `Loads a ruleset from a YAML or JSON file, validates it and evaluates it against
a JSON payload read from a file or stdin. Exits with status 1 when the verdict is FAIL.`,
	Example: `  rulesets evaluate --ruleset adults.yaml --payload user.json
  echo '{"user":{"age":12}}' | rulesets evaluate --ruleset adults.yaml --payload - --json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&evalRulesetFile, "ruleset", "r", "", "ruleset file (.yaml, .yml or .json)")
	evaluateCmd.Flags().StringVarP(&evalPayloadFile, "payload", "p", "-", "payload JSON file, - for stdin")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "print the raw result envelope as JSON")
	evaluateCmd.Flags().BoolVar(&evalStopOnFirst, "stop-on-first-failure", false, "override the ruleset's stopOnFirstFailure to true")
	evaluateCmd.Flags().IntVar(&evalMaxDepth, "max-depth", rules.DefaultMaxDepth, "maximum group nesting depth")
	_ = evaluateCmd.MarkFlagRequired("ruleset")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	rs, err := rules.LoadRulesetFile(evalRulesetFile)
	if err != nil {
		return err
	}
	if err := ruleservice.ValidateRuleset(rs, evalMaxDepth); err != nil {
		return fmt.Errorf("%s: %w", evalRulesetFile, err)
	}

	payload, err := readPayload(cmd.InOrStdin(), evalPayloadFile)
	if err != nil {
		return err
	}

	opts := rules.Options{
		StopOnFirstFailure: rs.StopOnFirstFailure || evalStopOnFirst,
		MaxDepth:           evalMaxDepth,
	}
	result, err := rules.EvaluateRuleset(rs, payload, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if evalJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(out, rs, result)
	}

	if !result.Passed() {
		return errRulesetFailed
	}
	return nil
}

func readPayload(stdin io.Reader, path string) (any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return payload, nil
}

func printResult(out io.Writer, rs *rules.Ruleset, result *rules.EvaluationResult) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	verdict := green(string(result.Status))
	if !result.Passed() {
		verdict = red(string(result.Status))
	}

	name := rs.Name
	if name == "" {
		name = rs.ID
	}
	fmt.Fprintf(out, "%s %s\n", verdict, bold(name))
	fmt.Fprintln(out, faint(fmt.Sprintf("trigger %s · %.3fms · %s",
		result.RuleTriggerUUID, result.ElapsedMs, result.EvaluatedAt.Format("2006-01-02T15:04:05.000Z07:00"))))

	if len(result.ValidationFailures) == 0 {
		return
	}

	ids := make([]string, 0, len(result.ValidationFailures))
	for id := range result.ValidationFailures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Node", "Message", "Expected", "Found"})
	for _, id := range ids {
		f := result.ValidationFailures[id]
		t.AppendRow(table.Row{bold(id), f.Message, f.Expected, describeFound(f)})
	}

	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
	t.Render()
}

func describeFound(f rules.FailureDescriptor) string {
	switch {
	case len(f.ChildrenFailed) > 0:
		return fmt.Sprintf("%d child(ren) failed", len(f.ChildrenFailed))
	case f.Operator == "":
		return ""
	case f.FoundMissing:
		return "(missing)"
	}
	data, err := json.Marshal(f.Found)
	if err != nil {
		return fmt.Sprint(f.Found)
	}
	return string(data)
}
