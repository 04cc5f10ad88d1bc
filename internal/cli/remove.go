package cli

import (
	"fmt"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/spf13/cobra"
)

var removeUndo bool

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Mark an installed extension for removal",
	Long: `Mark an installed extension for removal. Nothing is deleted until "commit".
A pending update for the same extension is dropped. Use --undo to unmark.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()

		id := args[0]
		if removeUndo {
			s.tracker.MarkForRemoval(id, false)
			fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer marked for removal.\n", id)
			return nil
		}

		if err := requireInstalled(s, id); err != nil {
			return err
		}
		s.tracker.MarkForRemoval(id, true)
		fmt.Fprintf(cmd.OutOrStdout(), "%s will be removed on the next commit.\n", id)
		return nil
	},
}

func init() {
	removeCmd.Flags().BoolVar(&removeUndo, "undo", false, "Unmark the extension")
	rootCmd.AddCommand(removeCmd)
}

// requireInstalled scans the extensions root and fails unless id is installed.
func requireInstalled(s *session, id string) error {
	if err := s.loadInstalled(); err != nil {
		return err
	}
	if e, ok := s.catalog.Get(id); !ok || !e.Installed() {
		return &catalog.NotInstalledError{ID: id}
	}
	return nil
}
