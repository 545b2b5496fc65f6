package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/sdm/internal/download"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

const headlessTick = 200 * time.Millisecond

var getCmd = &cobra.Command{
	Use:   "get [url]...",
	Short: "Download files without the TUI",
	Long: `get queues every URL given as an argument or listed in a batch file,
runs them with the configured concurrency and prints progress until all of
them have finished. It exits non-zero if any download failed.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		batchFile, _ := cmd.Flags().GetString("batch")
		outputDir, _ := cmd.Flags().GetString("output")

		urls, err := collectURLs(args, batchFile)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return errors.New("no URLs given")
		}

		locked, err := AcquireLock()
		if err != nil {
			return err
		}
		if !locked {
			return errAlreadyRunning
		}
		defer func() { _ = ReleaseLock() }()

		s := openSession(outputDir)
		failed := runHeadless(cmd.Context(), cmd.OutOrStdout(), s.manager, urls, headlessTick)
		if err := s.Close(); err != nil {
			utils.Debug("Failed to close session: %v", err)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d downloads failed", failed, len(urls))
		}
		return nil
	},
}

func init() {
	getCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	getCmd.Flags().StringP("output", "o", "", "Download directory (default: settings default_download_dir)")
}

// runHeadless queues urls and drives manager.Update every tick until each
// of them has completed or failed, or ctx is cancelled. It reports every
// outcome on out and returns the number of failed downloads.
func runHeadless(ctx context.Context, out io.Writer, manager *download.Manager, urls []string, tick time.Duration) int {
	tasks := make([]*download.Task, 0, len(urls))
	for _, u := range urls {
		t := manager.QueueDownload(u, "")
		dest := t.Destination()
		if dest == "" {
			dest = "-"
		}
		fmt.Fprintf(out, "Queued: %s -> %s [%s]\n", u, dest, shortID(t.ID()))
		tasks = append(tasks, t)
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	reported := make(map[*download.Task]bool, len(tasks))
	failed := 0

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		manager.Update()

		var downloaded, total int64
		sizesKnown, running := true, 0
		for _, t := range tasks {
			downloaded += t.DownloadedBytes()
			total += t.TotalBytes()
			if !t.SizeKnown() {
				sizesKnown = false
			}

			switch t.Status() {
			case types.StatusCompleted, types.StatusFailed:
				if !reported[t] {
					reported[t] = true
					_ = bar.Clear()
					if t.Status() == types.StatusFailed {
						failed++
					}
					fmt.Fprintln(out, outcomeLine(t))
				}
			default:
				running++
			}
		}

		if running == 0 {
			_ = bar.Finish()
			fmt.Fprintf(out, "Done: %d completed, %d failed\n", len(tasks)-failed, failed)
			return failed
		}

		if sizesKnown {
			bar.ChangeMax64(total)
		}
		bar.Describe(fmt.Sprintf("%d/%d", len(tasks)-running, len(tasks)))
		_ = bar.Set64(downloaded)

		select {
		case <-ctx.Done():
			_ = bar.Clear()
			fmt.Fprintf(out, "Interrupted: %d unfinished downloads paused\n", running)
			return failed
		case <-ticker.C:
		}
	}
}

// outcomeLine describes a finished task
func outcomeLine(t *download.Task) string {
	if t.Status() == types.StatusFailed {
		msg := t.ErrorMessage()
		if code := t.HTTPStatus(); code >= 400 {
			msg = fmt.Sprintf("%s (HTTP %d)", msg, code)
		}
		return fmt.Sprintf("Failed: %s [%s]: %s", t.URL(), shortID(t.ID()), msg)
	}
	return fmt.Sprintf("Completed: %s [%s] (%s)", t.Filename(), shortID(t.ID()),
		utils.ConvertBytesToHumanReadable(t.DownloadedBytes()))
}
