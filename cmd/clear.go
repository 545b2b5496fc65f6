package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/sdm/internal/download"
	"github.com/surge-downloader/sdm/internal/utils"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget completed and failed downloads",
	Long: `clear drops every completed and failed download from the state file.
Downloaded files are left on disk. The transition journal is kept; use
'sdm journal --clear' to empty it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		locked, err := AcquireLock()
		if err != nil {
			return err
		}
		if !locked {
			return errAlreadyRunning
		}
		defer func() { _ = ReleaseLock() }()

		s := openSession("")
		runClear(cmd.OutOrStdout(), s.manager)
		if err := s.Close(); err != nil {
			utils.Debug("Failed to close session: %v", err)
		}
		return nil
	},
}

func runClear(w io.Writer, manager *download.Manager) {
	completed, failed := len(manager.Completed()), len(manager.Failed())
	manager.ClearHistory()
	fmt.Fprintf(w, "Cleared %d completed and %d failed downloads\n", completed, failed)
}
