package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/engine/state"
	"github.com/surge-downloader/sdm/internal/engine/types"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent download status transitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		wipe, _ := cmd.Flags().GetBool("clear")

		j, err := state.Open(config.GetJournalPath())
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()

		if wipe {
			if err := j.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Journal cleared")
			return nil
		}

		entries, err := j.Recent(limit)
		if err != nil {
			return err
		}
		printJournal(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	journalCmd.Flags().IntP("limit", "n", 20, "Number of transitions to show")
	journalCmd.Flags().Bool("clear", false, "Delete every recorded transition")
}

// printJournal writes entries newest first, one transition per line
func printJournal(w io.Writer, entries []state.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No transitions recorded.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s  %-9s -> %-9s  %s",
			e.At.Format("2006-01-02 15:04:05"), shortID(e.TaskID),
			e.From, e.Status, filepath.Base(e.Destination))
		if e.Kind != types.ErrNone {
			line += "  (" + e.Kind.Message()
			if e.HTTPStatus >= 400 {
				line += fmt.Sprintf(", HTTP %d", e.HTTPStatus)
			}
			line += ")"
		}
		fmt.Fprintln(w, line)
	}
}
