package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/extkit-labs/extkit/internal/lifecycle"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Apply all queued actions",
	Long: `Apply queued updates, removals and disables, in that order. A failure for
one extension does not stop the others; failed extensions stay queued.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()
		if err := s.loadInstalled(); err != nil {
			return err
		}

		ctx := cmd.Context()
		steps := []struct {
			name string
			run  func(context.Context) error
		}{
			{"updates", s.tracker.CommitUpdates},
			{"removals", s.tracker.CommitRemovals},
			{"disables", s.tracker.CommitDisables},
		}

		var errs error
		for _, step := range steps {
			err := step.run(ctx)
			var batch *lifecycle.BatchError
			switch {
			case err == nil:
			case errors.As(err, &batch):
				for _, f := range batch.Failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s %s: %v\n", step.name, f.ID, f.Err)
				}
				errs = multierr.Append(errs, err)
			default:
				errs = multierr.Append(errs, err)
			}
		}
		if errs != nil {
			return errs
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All pending actions applied.")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all queued actions",
	Long:  `Drop all queued actions and delete downloaded update packages not marked to be kept.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()

		s.tracker.CleanupUpdateArtifacts()
		s.tracker.Reset()
		fmt.Fprintln(cmd.OutOrStdout(), "Pending actions cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(resetCmd)
}
