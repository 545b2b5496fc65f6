package tui

import (
	"net/url"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/sdm/internal/download"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.manager.Update()
		m.refresh()
		m.recordSpeed()
		return m, tickCmd()

	case queuedMsg:
		m.refresh()
		if msg.task.Status() == types.StatusFailed {
			m.notice = "Lookup failed: " + msg.task.ErrorMessage()
		} else {
			m.notice = "Queued " + msg.task.Filename()
		}
		return m, nil

	case retriedMsg:
		m.refresh()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width/3, 10)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case DashboardState:
			return m.updateDashboard(msg)
		case InputState:
			return m.updateInput(msg)
		case DetailState:
			if msg.String() == "esc" || msg.String() == "q" || msg.String() == "enter" {
				m.state = DashboardState
			}
			return m, nil
		case SettingsState:
			return m.updateSettings(msg)
		}
	}

	return m, nil
}

func (m RootModel) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := DashboardKeys

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Add):
		m.state = InputState
		m.focusedInput = urlInput
		m.inputs[urlInput].SetValue("")
		m.inputs[urlInput].Focus()
		m.inputs[destInput].SetValue("")
		m.inputs[destInput].Blur()
		return m, nil

	case key.Matches(msg, keys.Paste):
		text, err := clipboard.ReadAll()
		if err != nil {
			m.notice = "Clipboard unavailable: " + err.Error()
			return m, nil
		}
		return m.submit(text, "")

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.lists[m.tab])-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.NextTab):
		m.tab = (m.tab + 1) % tabCount
		m.cursor = 0
	case key.Matches(msg, keys.PrevTab):
		m.tab = (m.tab + tabCount - 1) % tabCount
		m.cursor = 0

	case key.Matches(msg, keys.Details):
		if m.selected() != nil {
			m.state = DetailState
		}

	// Per-task commands address the manager collection the tab shows
	case key.Matches(msg, keys.Pause):
		if m.tab == TabActive {
			m.manager.PauseDownload(m.cursor)
		}
	case key.Matches(msg, keys.Cancel):
		if m.tab == TabActive {
			m.manager.CancelDownload(m.cursor)
		}
	case key.Matches(msg, keys.Resume):
		if m.tab == TabPaused {
			m.manager.ResumeDownload(m.cursor)
		}
	case key.Matches(msg, keys.Retry):
		if m.tab == TabFailed {
			index := m.cursor
			return m, retryCmd(func() { m.manager.RetryDownload(index) })
		}

	case key.Matches(msg, keys.PauseAll):
		m.manager.PauseAllDownloads()
	case key.Matches(msg, keys.ResumeAll):
		m.manager.ResumeAllDownloads()
	case key.Matches(msg, keys.CancelAll):
		m.manager.CancelAllDownloads()
	case key.Matches(msg, keys.RetryAll):
		return m, retryCmd(m.manager.RetryAllDownloads)
	case key.Matches(msg, keys.Clear):
		m.manager.ClearHistory()

	case key.Matches(msg, keys.Settings):
		m.state = SettingsState
		m.SettingsActiveTab = 0
		m.SettingsSelectedRow = 0
		m.SettingsIsEditing = false
		return m, nil

	case msg.String() == "?":
		m.help.ShowAll = !m.help.ShowAll
	}

	m.refresh()
	return m, nil
}

func (m RootModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := InputKeys

	switch {
	case key.Matches(msg, keys.Cancel):
		m.state = DashboardState
		return m, nil

	case key.Matches(msg, keys.Submit):
		rawURL := m.inputs[urlInput].Value()
		if strings.TrimSpace(rawURL) == "" {
			// URL is mandatory
			m.focusInput(urlInput)
			return m, nil
		}
		m.state = DashboardState
		return m.submit(rawURL, m.inputs[destInput].Value())

	case key.Matches(msg, keys.Next):
		m.focusInput((m.focusedInput + 1) % len(m.inputs))
		return m, nil
	case key.Matches(msg, keys.Prev):
		m.focusInput((m.focusedInput + len(m.inputs) - 1) % len(m.inputs))
		return m, nil

	case key.Matches(msg, keys.Paste):
		if text, err := clipboard.ReadAll(); err == nil {
			m.inputs[m.focusedInput].SetValue(strings.TrimSpace(text))
			m.inputs[m.focusedInput].CursorEnd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focusedInput], cmd = m.inputs[m.focusedInput].Update(msg)
	return m, cmd
}

func (m *RootModel) focusInput(i int) {
	m.inputs[m.focusedInput].Blur()
	m.focusedInput = i
	m.inputs[i].Focus()
}

// submit validates rawURL and queues it off the UI goroutine, since an
// empty destination costs a HEAD round trip
func (m RootModel) submit(rawURL, dest string) (tea.Model, tea.Cmd) {
	rawURL = strings.TrimSpace(rawURL)
	if !isDownloadURL(rawURL) {
		m.notice = "Not an http(s) URL: " + rawURL
		return m, nil
	}
	dest = strings.TrimSpace(dest)
	m.notice = "Resolving " + rawURL
	utils.Debug("TUI: queueing %s", rawURL)
	return m, queueCmd(m.manager, rawURL, dest)
}

func queueCmd(manager *download.Manager, rawURL, dest string) tea.Cmd {
	return func() tea.Msg {
		return queuedMsg{task: manager.QueueDownload(rawURL, dest)}
	}
}

func retryCmd(retry func()) tea.Cmd {
	return func() tea.Msg {
		retry()
		return retriedMsg{}
	}
}

func isDownloadURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
