package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the registry cache",
	Long: `Check the registry version and download the registry if it changed.

With --force the version check is skipped and the full registry is downloaded.
If the network is unavailable the cached registry, or the bundled snapshot, is
used instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()

		if err := s.loadRegistry(cmd.Context(), refreshForce); err != nil {
			return err
		}

		version := 0
		if rec := s.cache.Read(); rec != nil {
			version = rec.Version
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registry has %d extensions (cache version %d).\n", s.catalog.Len(), version)
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "Skip the version check and download the full registry")
	rootCmd.AddCommand(refreshCmd)
}
