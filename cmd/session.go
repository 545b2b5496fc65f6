package cmd

import (
	"errors"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/download"
	"github.com/surge-downloader/sdm/internal/engine/state"
	"github.com/surge-downloader/sdm/internal/engine/transfer"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// session bundles a running manager with the settings and journal it
// was built from. Callers hold the instance lock for its lifetime.
type session struct {
	settings *config.Settings
	journal  *state.Journal
	manager  *download.Manager
}

// openSession loads settings and starts a manager on the per-user state
// file. outputDir overrides the configured download directory. A missing
// journal only disables transition history.
func openSession(outputDir string) *session {
	settings, err := config.LoadSettings()
	if err != nil {
		utils.Debug("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	if outputDir == "" {
		outputDir = settings.General.DefaultDownloadDir
	}

	journal, err := state.Open(config.GetJournalPath())
	if err != nil {
		utils.Debug("Journal unavailable: %v", err)
		journal = nil
	}

	client := transfer.NewClient(types.ConvertRuntimeConfig(settings.ToRuntimeConfig()))
	manager := download.NewManager(
		download.WithWorkers(settings.Connections.MaxConcurrentDownloads),
		download.WithStatePath(config.GetStateFilePath()),
		download.WithDownloadDir(outputDir),
		download.WithClient(client),
		download.WithJournal(journal),
	)

	return &session{settings: settings, journal: journal, manager: manager}
}

// Close pauses outstanding work, persists, and closes the journal
func (s *session) Close() error {
	return errors.Join(s.manager.Close(), s.journal.Close())
}
