package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/extkit-labs/extkit/internal/lifecycle"
	"github.com/spf13/cobra"
)

var pendingJSON bool

// pendingView is the JSON shape of the pending command.
type pendingView struct {
	Remove  []string                              `json:"remove"`
	Disable []string                              `json:"disable"`
	Update  map[string]lifecycle.UpdateDescriptor `json:"update"`
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show actions queued for the next commit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()

		removals, disables, updates := s.tracker.Pending()
		if pendingJSON {
			return printJSON(cmd, pendingView{Remove: removals, Disable: disables, Update: updates})
		}

		out := cmd.OutOrStdout()
		if len(removals)+len(disables)+len(updates) == 0 {
			fmt.Fprintln(out, "Nothing pending.")
			return nil
		}
		for _, id := range removals {
			fmt.Fprintf(out, "remove   %s\n", id)
		}
		for _, id := range disables {
			fmt.Fprintf(out, "disable  %s\n", id)
		}
		for _, id := range slices.Sorted(maps.Keys(updates)) {
			u := updates[id]
			fmt.Fprintf(out, "update   %s -> %s (%s)\n", id, u.TargetVersion, u.InstallationStatus)
		}
		return nil
	},
}

func init() {
	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(pendingCmd)
}
