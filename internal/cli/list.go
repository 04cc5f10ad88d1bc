package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/spf13/cobra"
)

var (
	listInstalled bool
	listJSON      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known extensions",
	Long:  `List every extension in the registry and every extension installed locally.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listInstalled, "installed", false, "Only show installed extensions")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

// listEntry is one row of list output.
type listEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Installed string `json:"installed,omitempty"`
	Registry  string `json:"registry,omitempty"`
	Status    string `json:"status,omitempty"`
	Update    string `json:"update,omitempty"`
	Pending   string `json:"pending,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	s := newSession()
	defer s.close()

	if err := s.loadInstalled(); err != nil {
		return err
	}
	if !listInstalled {
		if err := s.loadRegistry(cmd.Context(), false); err != nil {
			return err
		}
	}

	var entries []listEntry
	for _, e := range s.catalog.Entries() {
		if listInstalled && !e.Installed() {
			continue
		}
		entries = append(entries, s.listEntryFor(e))
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No extensions found.")
		return nil
	}
	if listJSON {
		return printJSON(cmd, entries)
	}
	return printListTable(cmd, entries)
}

func (s *session) listEntryFor(e catalog.Entry) listEntry {
	le := listEntry{
		ID:        e.ID,
		Installed: e.InstalledVersion(),
		Registry:  e.RegistryVersion(),
		Update:    updateLabel(e),
		Pending:   s.pendingLabel(e.ID),
	}
	switch {
	case e.RegistryInfo != nil && e.RegistryInfo.Metadata.Title != "":
		le.Title = e.RegistryInfo.Metadata.Title
	case e.InstallInfo != nil:
		le.Title = e.InstallInfo.Metadata.Title
	}
	if e.InstallInfo != nil {
		le.Status = string(e.InstallInfo.Status)
	}
	return le
}

// updateLabel summarizes the reconciled update flags.
func updateLabel(e catalog.Entry) string {
	if e.InstallInfo == nil || !e.InstallInfo.UpdateAvailable {
		return ""
	}
	if e.InstallInfo.UpdateCompatible {
		return e.InstallInfo.LastCompatibleVersion
	}
	return "incompatible"
}

func (s *session) pendingLabel(id string) string {
	switch {
	case s.tracker.IsMarkedForRemoval(id):
		return "remove"
	case s.tracker.IsMarkedForUpdate(id):
		return "update"
	case s.tracker.IsMarkedForDisabling(id):
		return "disable"
	default:
		return ""
	}
}

func printListTable(cmd *cobra.Command, entries []listEntry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tINSTALLED\tREGISTRY\tSTATUS\tUPDATE\tPENDING")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, dash(e.Installed), dash(e.Registry), dash(e.Status), dash(e.Update), dash(e.Pending))
	}
	return w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
