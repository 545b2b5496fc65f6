package cmd

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/download"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

var lsCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List downloads by collection",
	Long: `list prints the queued, active, paused, completed and failed downloads
recorded in the state file. Indices are the ones commands address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := download.ReadSnapshot(config.GetStateFilePath())
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		printSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

type listSection struct {
	title  string
	status types.DownloadStatus
	tasks  []*download.Task
}

// printSnapshot writes every non-empty collection with one line per task
func printSnapshot(w io.Writer, snap download.Snapshot) {
	out := termenv.NewOutput(w)
	sections := []listSection{
		{"Queued", types.StatusQueued, snap.Queued},
		{"Active", types.StatusActive, snap.Active},
		{"Paused", types.StatusPaused, snap.Paused},
		{"Completed", types.StatusCompleted, snap.Completed},
		{"Failed", types.StatusFailed, snap.Failed},
	}

	empty := true
	for _, sec := range sections {
		if len(sec.tasks) == 0 {
			continue
		}
		empty = false

		heading := out.String(fmt.Sprintf("%s (%d)", sec.title, len(sec.tasks))).
			Foreground(out.Color(statusHex(sec.status))).
			Bold()
		fmt.Fprintln(w, heading.String())
		for i, t := range sec.tasks {
			fmt.Fprintf(w, "  [%d] %-32s %s  %s\n", i, truncate(t.Filename(), 32), progressCell(t), detailCell(out, t))
		}
	}

	if empty {
		fmt.Fprintln(w, "No downloads.")
	}
}

func progressCell(t *download.Task) string {
	if !t.SizeKnown() && t.Status() != types.StatusCompleted {
		return fmt.Sprintf("%6s  %s (size unknown)", "-", utils.ConvertBytesToHumanReadable(t.DownloadedBytes()))
	}
	return fmt.Sprintf("%5.1f%%  %s / %s", t.Progress(),
		utils.ConvertBytesToHumanReadable(t.DownloadedBytes()),
		utils.ConvertBytesToHumanReadable(t.TotalBytes()))
}

// detailCell shows the error for failed tasks and the sniffed content
// kind for completed ones
func detailCell(out *termenv.Output, t *download.Task) string {
	switch t.Status() {
	case types.StatusFailed:
		msg := t.ErrorMessage()
		if code := t.HTTPStatus(); code >= 400 {
			msg = fmt.Sprintf("%s (HTTP %d)", msg, code)
		}
		return out.String(msg).Foreground(out.Color(statusHex(types.StatusFailed))).String()
	case types.StatusCompleted:
		kind := utils.DetectKind(t.Destination())
		if kind == "" {
			kind = "unknown type"
		}
		return fmt.Sprintf("%s, finished %s", kind, utils.FormatTimestamp(t.EndedAt().Unix()))
	default:
		return t.Destination()
	}
}

func statusHex(s types.DownloadStatus) string {
	switch s {
	case types.StatusActive:
		return "#8be9fd"
	case types.StatusPaused:
		return "#ffb86c"
	case types.StatusCompleted:
		return "#50fa7b"
	case types.StatusFailed:
		return "#ff5555"
	default:
		return "#6272a4"
	}
}
