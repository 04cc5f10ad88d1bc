package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/extkit-labs/extkit/internal/config"
	"github.com/extkit-labs/extkit/internal/manifest"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var checkManifest string

func init() {
	doctorCmd.Flags().StringVar(&checkManifest, "check-manifest", "", "Validate the package.json in the given extension directory")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local installation",
	Long:  `Report on configuration, the registry cache, pending actions and installed extensions.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if checkManifest != "" {
			return runManifestCheck(out, afero.NewOsFs(), checkManifest)
		}

		s := newSession()
		defer s.close()
		return s.runChecks(out)
	},
}

func (s *session) runChecks(out io.Writer) error {
	problems := 0

	if _, err := os.Stat(config.FilePath()); err == nil {
		fmt.Fprintf(out, "ok    config file %s\n", config.FilePath())
	} else {
		fmt.Fprintf(out, "info  no config file at %s, using defaults\n", config.FilePath())
	}
	if _, err := semver.NewVersion(s.settings.HostAPIVersion); err != nil {
		fmt.Fprintf(out, "fail  host API version %q: %v\n", s.settings.HostAPIVersion, err)
		problems++
	} else {
		fmt.Fprintf(out, "ok    host API version %s\n", s.settings.HostAPIVersion)
	}

	if rec := s.cache.Read(); rec != nil {
		fmt.Fprintf(out, "ok    registry cache: %d extensions, version %d\n", len(rec.Payload), rec.Version)
	} else {
		fmt.Fprintln(out, "warn  no registry cache; run 'refresh'")
	}

	found, err := s.installer.Scan()
	if err != nil {
		fmt.Fprintf(out, "fail  %v\n", err)
		problems++
	}
	for _, f := range found {
		if f.Err != nil {
			fmt.Fprintf(out, "fail  %s (%s): %v\n", f.ID, f.Info.Path, f.Err)
			problems++
		}
	}
	fmt.Fprintf(out, "info  %d extensions installed under %s\n", len(found), s.installer.Root())

	removals, disables, updates := s.tracker.Pending()
	if n := len(removals) + len(disables) + len(updates); n > 0 {
		fmt.Fprintf(out, "info  %d actions pending; run 'commit' to apply\n", n)
	}

	if problems > 0 {
		return fmt.Errorf("%d problems found", problems)
	}
	return nil
}

func runManifestCheck(out io.Writer, fsys afero.Fs, dir string) error {
	md, err := manifest.Load(fsys, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok    %s %s\n", md.Name, md.Version)
	return nil
}
