package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liamcoop/rulesets/ruleservice"
	"github.com/liamcoop/rulesets/rules"
)

var validateMaxDepth int

var validateCmd = &cobra.Command{
	Use:     "validate FILE...",
	Short:   "Check ruleset files against the validation rules",
	Example: `  rulesets validate rulesets/*.yaml`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().IntVar(&validateMaxDepth, "max-depth", rules.DefaultMaxDepth, "maximum group nesting depth")
}

func runValidate(cmd *cobra.Command, args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	out := cmd.OutOrStdout()

	invalid := 0
	for _, path := range args {
		rs, err := rules.LoadRulesetFile(path)
		if err == nil {
			err = ruleservice.ValidateRuleset(rs, validateMaxDepth)
		}
		if err != nil {
			invalid++
			fmt.Fprintf(out, "%s %s: %v\n", red("✖"), path, err)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", green("✔"), path)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d ruleset file(s) invalid", invalid, len(args))
	}
	return nil
}
