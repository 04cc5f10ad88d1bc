package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/extkit-labs/extkit/internal/compat"
	"github.com/extkit-labs/extkit/internal/registry"
	"github.com/spf13/cobra"
)

var (
	searchKeywordFilter string
	searchCompatible    bool
	searchJSON          bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the registry",
	Long: `Search registry and installed extensions.

The query matches against ids, titles and descriptions (case-insensitive
substring). Use --keyword to filter by keywords and --compatible to hide
extensions with no version installable on this host.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchKeywordFilter, "keyword", "", "Filter by keywords (comma-separated, matches any)")
	searchCmd.Flags().BoolVar(&searchCompatible, "compatible", false, "Only show extensions compatible with this host")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(searchCmd)
}

// searchEntry is one search hit.
type searchEntry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Version     string   `json:"version"`
	Compatible  string   `json:"compatible,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Downloads   *int64   `json:"downloads"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	s := newSession()
	defer s.close()
	if err := s.loadAll(cmd.Context()); err != nil {
		return err
	}

	filterKeywords := splitList(searchKeywordFilter)
	host := s.catalog.HostAPIVersion()

	var entries []searchEntry
	for _, e := range s.catalog.Entries() {
		if e.RegistryInfo == nil || !matchesSearch(e, query, filterKeywords) {
			continue
		}
		res := compat.Resolve(e.RegistryInfo, host)
		if searchCompatible && !res.IsCompatible {
			continue
		}
		md := e.RegistryInfo.Metadata
		entries = append(entries, searchEntry{
			ID:          e.ID,
			Title:       md.Title,
			Version:     md.Version,
			Compatible:  res.CompatibleVersion,
			Description: md.Description,
			Keywords:    md.Keywords,
			Downloads:   e.RegistryInfo.TotalDownloads,
		})
	}

	if len(entries) == 0 {
		msg := "No extensions found"
		if query != "" {
			msg += fmt.Sprintf(" matching %q", query)
		}
		if searchKeywordFilter != "" {
			msg += fmt.Sprintf(" with --keyword=%s", searchKeywordFilter)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}

	if searchJSON {
		return printJSON(cmd, entries)
	}
	return printSearchTable(cmd, entries)
}

// matchesSearch returns true if the entry matches the query and any of the
// keyword filters. Both filters are AND-combined.
func matchesSearch(e catalog.Entry, query string, filterKeywords []string) bool {
	var md registry.Metadata
	switch {
	case e.RegistryInfo != nil:
		md = e.RegistryInfo.Metadata
	case e.InstallInfo != nil:
		md = e.InstallInfo.Metadata
	}

	if len(filterKeywords) > 0 && !matchesAnyKeyword(md.Keywords, filterKeywords) {
		return false
	}

	if query != "" {
		q := strings.ToLower(query)
		if !strings.Contains(strings.ToLower(e.ID), q) &&
			!strings.Contains(strings.ToLower(md.Title), q) &&
			!strings.Contains(strings.ToLower(md.Description), q) {
			return false
		}
	}
	return true
}

// matchesAnyKeyword compares case-insensitively.
func matchesAnyKeyword(keywords, filter []string) bool {
	for _, k := range keywords {
		for _, f := range filter {
			if strings.EqualFold(k, f) {
				return true
			}
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func printSearchTable(cmd *cobra.Command, entries []searchEntry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tCOMPATIBLE\tDOWNLOADS\tDESCRIPTION")
	for _, e := range entries {
		downloads := "-"
		if e.Downloads != nil {
			downloads = fmt.Sprint(*e.Downloads)
		}
		desc := e.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Version, dash(e.Compatible), downloads, desc)
	}
	return w.Flush()
}
