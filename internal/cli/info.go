package cli

import (
	"fmt"
	"strings"

	"github.com/extkit-labs/extkit/internal/compat"
	"github.com/spf13/cobra"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show details for one extension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()
		if err := s.loadAll(cmd.Context()); err != nil {
			return err
		}

		id := args[0]
		e, ok := s.catalog.Get(id)
		if !ok {
			return fmt.Errorf("unknown extension %q", id)
		}
		if infoJSON {
			return printJSON(cmd, e)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:            %s\n", e.ID)
		if r := e.RegistryInfo; r != nil {
			res := compat.Resolve(r, s.catalog.HostAPIVersion())
			fmt.Fprintf(out, "Title:         %s\n", dash(r.Metadata.Title))
			fmt.Fprintf(out, "Owner:         %s\n", dash(r.Owner))
			fmt.Fprintf(out, "Registry:      %s\n", r.Metadata.Version)
			versions := make([]string, 0, len(r.Versions))
			for _, v := range r.Versions {
				if rng := v.CompatibilityRange(); rng != "" {
					versions = append(versions, v.Version+" ("+rng+")")
				} else {
					versions = append(versions, v.Version)
				}
			}
			fmt.Fprintf(out, "Versions:      %s\n", dash(strings.Join(versions, ", ")))
			fmt.Fprintf(out, "Compatibility: %s\n", describeCompat(res))
			if r.TotalDownloads != nil {
				fmt.Fprintf(out, "Downloads:     %d\n", *r.TotalDownloads)
			}
		}
		if i := e.InstallInfo; i != nil {
			fmt.Fprintf(out, "Installed:     %s (%s, %s)\n", i.Metadata.Version, i.LocationType, i.Status)
			fmt.Fprintf(out, "Path:          %s\n", i.Path)
			fmt.Fprintf(out, "Update:        %s\n", dash(updateLabel(e)))
		}
		if p := s.pendingLabel(id); p != "" {
			fmt.Fprintf(out, "Pending:       %s\n", p)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(infoCmd)
}

func describeCompat(res compat.Result) string {
	switch {
	case res.IsCompatible && res.IsLatestVersion:
		return "latest version " + res.CompatibleVersion + " is compatible"
	case res.IsCompatible:
		return fmt.Sprintf("version %s is compatible (latest %s)", res.CompatibleVersion, res.Requirement)
	default:
		return "incompatible (" + res.Requirement.String() + ")"
	}
}
