package recordsql

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recordsql/recordsql/internal/runner"
)

func newRunCmd(opts Options) *cobra.Command {
	var (
		input            string
		statements       []string
		output           string
		sportName        string
		skipRecordFilter bool
	)

	defaultOutput := opts.OutputPath
	if strings.TrimSpace(defaultOutput) == "" {
		defaultOutput = "Results.json"
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Translate statements to SQL, execute them and write the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" && len(statements) == 0 {
				return usageError{err: fmt.Errorf("either --input or --statement is required")}
			}
			if input != "" && len(statements) > 0 {
				return usageError{err: fmt.Errorf("--input and --statement are mutually exclusive")}
			}
			if input != "" {
				loaded, err := runner.LoadStatements(input)
				if err != nil {
					return err
				}
				statements = loaded
			}

			r, err := buildRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			outputs, err := r.Run(cmd.Context(), statements, runner.Options{
				Sport:            sportName,
				SkipRecordFilter: skipRecordFilter,
			})
			if err != nil {
				return err
			}
			if err := runner.WriteResults(output, outputs); err != nil {
				return err
			}

			failed := 0
			for _, out := range outputs {
				if out.Error != "" {
					failed++
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "processed %d statements (%d failed), results written to %s\n", len(outputs), failed, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "CSV or TSV file whose first column holds the statements")
	cmd.Flags().StringArrayVar(&statements, "statement", nil, "Statement to process (repeatable)")
	cmd.Flags().StringVar(&output, "output", defaultOutput, "Path of the JSON results file")
	cmd.Flags().StringVar(&sportName, "sport", "", "Route every statement to this sport instead of classifying")
	cmd.Flags().BoolVar(&skipRecordFilter, "skip-record-filter", false, "Process statements without the record classifier")

	return cmd
}
