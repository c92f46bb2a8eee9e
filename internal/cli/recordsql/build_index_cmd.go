package recordsql

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildIndexCmd(opts Options) *cobra.Command {
	var sportName string

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Embed player and team names of a sport into vector artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sportName == "" {
				return usageError{err: fmt.Errorf("--sport is required")}
			}
			r, err := buildRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := r.BuildIndex(cmd.Context(), sportName); err != nil {
				return fmt.Errorf("build %s index: %w", sportName, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "built %s vector index\n", sportName)
			return nil
		},
	}

	cmd.Flags().StringVar(&sportName, "sport", "", "Sport whose entities are indexed")

	return cmd
}
