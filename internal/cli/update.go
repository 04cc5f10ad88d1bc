package cli

import (
	"fmt"
	"path/filepath"

	"github.com/extkit-labs/extkit/internal/lifecycle"
	"github.com/spf13/cobra"
)

var (
	updateUndo     bool
	updateKeepFile bool
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Download the newest compatible version of an extension",
	Long: `Download the newest version of an installed extension that is compatible
with this host and queue it. The update is applied on the next "commit".
Use --undo to drop a queued update and its downloaded package.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		defer s.close()

		id := args[0]
		if updateUndo {
			s.tracker.RemoveUpdateMark(id)
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped queued update for %s.\n", id)
			return nil
		}

		if err := s.loadAll(cmd.Context()); err != nil {
			return err
		}
		e, ok := s.catalog.Get(id)
		if !ok || !e.Installed() {
			return fmt.Errorf("%s is not installed", id)
		}
		if !e.InstallInfo.UpdateAvailable {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date.\n", id)
			return nil
		}
		if !e.InstallInfo.UpdateCompatible {
			return fmt.Errorf("%s has an update, but no version of it supports host API %s",
				id, s.catalog.HostAPIVersion())
		}

		version := e.InstallInfo.LastCompatibleVersion
		dest := filepath.Join(s.settings.StateDir, downloadsDir)
		path, err := s.fetcher.DownloadPackage(cmd.Context(), id, version, dest)
		if err != nil {
			return fmt.Errorf("downloading %s %s: %w", id, version, err)
		}

		res := lifecycle.DownloadResult{
			ID:                 id,
			Version:            version,
			LocalPath:          path,
			KeepFile:           updateKeepFile,
			InstallationStatus: lifecycle.StatusFor(e.InstalledVersion(), version),
		}
		if !s.tracker.RecordUpdateFromDownload(res) {
			return fmt.Errorf("downloaded package for %s is not an update (%s)", id, res.InstallationStatus)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s downloaded; it will be installed on the next commit.\n", id, version)
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateUndo, "undo", false, "Drop the queued update")
	updateCmd.Flags().BoolVar(&updateKeepFile, "keep-file", false, "Keep the downloaded package after the update is applied")
	rootCmd.AddCommand(updateCmd)
}
