package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/patterns"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and validate activity patterns",
}

var patternsListCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List the built-in patterns or those in a pattern file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		pats, err := patterns.Load(path)
		if err != nil {
			return err
		}

		p := printerFor(cmd)
		if outputFormat != output.FormatTable {
			return p.Structured(outputFormat, pats)
		}
		tbl := output.NewTable([]string{"ID", "CATEGORY", "LEVEL", "EVENTS", "WINDOW", "MIN", "GROUP BY", "AUTO-BLOCK"})
		for _, pat := range pats {
			tbl.AddRow([]string{
				pat.ID,
				string(pat.Category),
				string(pat.Level),
				strconv.Itoa(len(pat.EventTypes)),
				pat.Window.String(),
				strconv.Itoa(pat.MinOccurrences),
				groupingLabel(pat.Grouping),
				strconv.FormatBool(pat.AutoBlock),
			})
		}
		tbl.Render(p)
		return nil
	},
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a YAML pattern file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pats, err := patterns.Load(args[0])
		if err != nil {
			return err
		}
		printerFor(cmd).Success("%s: %d patterns valid", args[0], len(pats))
		return nil
	},
}

func groupingLabel(g models.Grouping) string {
	label := ""
	add := func(on bool, name string) {
		if !on {
			return
		}
		if label != "" {
			label += "+"
		}
		label += name
	}
	add(g.SameActor, "actor")
	add(g.SameAddress, "address")
	add(g.SameService, "service")
	return label
}

func init() {
	patternsCmd.AddCommand(patternsListCmd, patternsValidateCmd)
	rootCmd.AddCommand(patternsCmd)
}
