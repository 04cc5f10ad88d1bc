package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var updatesJSON bool

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "List installed extensions with a compatible update",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()
		if err := s.loadAll(cmd.Context()); err != nil {
			return err
		}

		list := s.tracker.PruneStaleUpdates(s.tracker.ListAvailableUpdates())
		if updatesJSON {
			return printJSON(cmd, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All extensions are up to date.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tINSTALLED\tAVAILABLE")
		for _, u := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.InstalledVersion, u.RegistryVersion)
		}
		return w.Flush()
	},
}

func init() {
	updatesCmd.Flags().BoolVar(&updatesJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(updatesCmd)
}
