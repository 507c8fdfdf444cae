package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/cli/pkg/attacks"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/source"
)

var (
	simulateSeed   int64
	simulateSpread time.Duration
	simulateParams map[string]string
	simulateOut    string
	simulateReplay bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <attack>",
	Short: "Generate synthetic attack traffic as JSON lines",
	Long: `Generate security events that imitate an attack and write them as JSON
lines, or replay them straight through an in-process engine.

Examples:
  sentinelctl simulate brute-force --param attempts=30 > bf.jsonl
  sentinelctl simulate credential-stuffing --replay
  sentinelctl simulate list`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := make(map[string]interface{}, len(simulateParams))
		for k, v := range simulateParams {
			params[k] = v
		}
		events, err := attacks.Generate(args[0], &attacks.Config{
			Now:        time.Now().UTC(),
			TimeSpread: simulateSpread,
			Seed:       simulateSeed,
			Params:     params,
		})
		if err != nil {
			return err
		}

		if simulateReplay {
			var buf bytes.Buffer
			if err := source.Write(&buf, events); err != nil {
				return err
			}
			report, err := replay(cmd.Context(), cmd, source.NewReaderSource(&buf, cliLogger(cmd)))
			if err != nil {
				return err
			}
			return renderReport(printerFor(cmd), report)
		}

		w, closeFn, err := openOutput(simulateOut, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := source.Write(w, events); err != nil {
			_ = closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}
		if simulateOut != "" && simulateOut != "-" {
			printerFor(cmd).Success("wrote %d %s events to %s", len(events), args[0], simulateOut)
		}
		return nil
	},
}

var simulateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available attack simulations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := printerFor(cmd)
		type entry struct {
			Name        string                 `json:"name"`
			Description string                 `json:"description"`
			Params      map[string]interface{} `json:"params"`
		}
		var entries []entry
		tbl := output.NewTable([]string{"ATTACK", "DESCRIPTION"})
		for _, name := range attacks.List() {
			a, _ := attacks.Get(name)
			entries = append(entries, entry{Name: name, Description: a.Description(), Params: a.DefaultParams()})
			tbl.AddRow([]string{name, a.Description()})
		}
		if outputFormat != output.FormatTable {
			return p.Structured(outputFormat, entries)
		}
		tbl.Render(p)
		return nil
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "random seed (0 for random)")
	simulateCmd.Flags().DurationVar(&simulateSpread, "spread", 5*time.Minute, "time span the events are spread over, ending now")
	simulateCmd.Flags().StringToStringVarP(&simulateParams, "param", "p", nil, "attack parameter as key=value (repeatable)")
	simulateCmd.Flags().StringVar(&simulateOut, "out", "", "write events to file instead of stdout")
	simulateCmd.Flags().BoolVar(&simulateReplay, "replay", false, "replay the generated events and print the report")
	simulateCmd.AddCommand(simulateListCmd)
	rootCmd.AddCommand(simulateCmd)
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, f.Close, nil
}
