package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disableUndo bool

var disableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Mark an installed extension to be disabled",
	Long:  `Mark an installed extension to be disabled on the next "commit". Use --undo to unmark.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()

		id := args[0]
		if disableUndo {
			s.tracker.MarkForDisabling(id, false)
			fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer marked to be disabled.\n", id)
			return nil
		}

		if err := requireInstalled(s, id); err != nil {
			return err
		}
		s.tracker.MarkForDisabling(id, true)
		fmt.Fprintf(cmd.OutOrStdout(), "%s will be disabled on the next commit.\n", id)
		return nil
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a disabled extension",
	Long:  `Enable an extension right away and drop any pending disable for it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()

		id := args[0]
		if err := s.loadInstalled(); err != nil {
			return err
		}
		s.tracker.MarkForDisabling(id, false)
		if err := s.catalog.SetEnabled(cmd.Context(), id, true); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s enabled.\n", id)
		return nil
	},
}

func init() {
	disableCmd.Flags().BoolVar(&disableUndo, "undo", false, "Unmark the extension")
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(enableCmd)
}
