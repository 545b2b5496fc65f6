package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/tui"
	"github.com/surge-downloader/sdm/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var errAlreadyRunning = errors.New("sdm is already running; quit the other instance first")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "sdm [url]...",
	Short:   "A concurrent terminal download manager",
	Long:    `sdm queues HTTP(S) downloads, runs a bounded number of them at once, and resumes interrupted transfers.`,
	Version: Version,
	Args:    cobra.ArbitraryArgs,
	// Errors from RunE are runtime failures, not usage mistakes
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initializeGlobalState()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		batchFile, _ := cmd.Flags().GetString("batch")
		outputDir, _ := cmd.Flags().GetString("output")
		noResume, _ := cmd.Flags().GetBool("no-resume")
		exitWhenDone, _ := cmd.Flags().GetBool("exit-when-done")

		urls, err := collectURLs(args, batchFile)
		if err != nil {
			return err
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
		if s.settings.General.AutoResume && !noResume {
			s.manager.ResumeAllDownloads()
		}

		// Filename lookups may block, so queue behind the UI
		queued := make(chan struct{})
		go func() {
			defer close(queued)
			for _, u := range urls {
				s.manager.QueueDownload(u, "")
			}
		}()

		runErr := startTUI(s, queued, exitWhenDone)
		if err := s.Close(); err != nil {
			utils.Debug("Failed to close session: %v", err)
		}
		return runErr
	},
}

// startTUI runs the dashboard until the user quits, or until nothing is
// left to download when exitWhenDone is set
func startTUI(s *session, queued <-chan struct{}, exitWhenDone bool) error {
	p := tea.NewProgram(tui.NewRootModel(s.manager, s.settings), tea.WithAltScreen())

	if exitWhenDone {
		go func() {
			<-queued
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if s.manager.Idle() {
					p.Send(tea.Quit())
					return
				}
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	utils.CloseDebug()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	rootCmd.Flags().StringP("output", "o", "", "Download directory (default: settings default_download_dir)")
	rootCmd.Flags().Bool("no-resume", false, "Do not auto-resume paused downloads on startup")
	rootCmd.Flags().Bool("exit-when-done", false, "Exit when all downloads complete")
	rootCmd.SetVersionTemplate("sdm version {{.Version}}\n")

	rootCmd.AddCommand(getCmd, lsCmd, clearCmd, journalCmd)
}

// initializeGlobalState creates the state directories and starts debug logging
func initializeGlobalState() {
	if err := config.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create %s: %v\n", config.GetStateDir(), err)
		return
	}
	if err := utils.ConfigureDebug(config.GetLogsDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log unavailable: %v\n", err)
	}
	utils.Debug("sdm %s (built %s) starting, state dir %s", Version, BuildTime, config.GetStateDir())
}

// collectURLs merges positional URLs with those read from a batch file
func collectURLs(args []string, batchFile string) ([]string, error) {
	urls := append([]string(nil), args...)
	if batchFile != "" {
		fileURLs, err := readURLsFromFile(batchFile)
		if err != nil {
			return nil, fmt.Errorf("error reading batch file: %w", err)
		}
		urls = append(urls, fileURLs...)
	}
	return urls, nil
}
