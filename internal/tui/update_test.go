package tui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/download"
	"github.com/surge-downloader/sdm/internal/engine/transfer"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/testutil"
)

func newTestModel(t *testing.T) RootModel {
	t.Helper()
	manager := download.NewManager(
		download.WithStatePath(filepath.Join(t.TempDir(), "downloads")),
		download.WithDownloadDir(t.TempDir()),
		download.WithClient(transfer.NewClient(&types.RuntimeConfig{ProgressInterval: time.Millisecond})),
		download.WithWorkers(2),
	)
	t.Cleanup(func() { _ = manager.Close() })

	m := NewRootModel(manager, config.DefaultSettings())
	m, _ = send(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func send(m RootModel, msg tea.Msg) (RootModel, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(RootModel), cmd
}

func press(m RootModel, k string) (RootModel, tea.Cmd) {
	return send(m, keyMsg(k))
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// queue adds url through the popup with an explicit destination and
// delivers the resulting queuedMsg
func queue(t *testing.T, m RootModel, url, dest string) RootModel {
	t.Helper()
	m, _ = press(m, "g")
	require.Equal(t, InputState, m.state)
	m.inputs[urlInput].SetValue(url)
	m.inputs[destInput].SetValue(dest)

	m, cmd := press(m, "enter")
	require.NotNil(t, cmd)
	require.Equal(t, DashboardState, m.state)
	m, _ = send(m, cmd())
	return m
}

// tickUntil drives the manager through ticks until cond holds
func tickUntil(t *testing.T, m RootModel, cond func(RootModel) bool, msg string) RootModel {
	t.Helper()
	testutil.WaitFor(t, 10*time.Second, func() bool {
		m, _ = send(m, tickMsg(time.Now()))
		return cond(m)
	}, msg)
	return m
}

func TestUpdate_TabNavigation(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, TabActive, m.tab)

	m, _ = press(m, "tab")
	assert.Equal(t, TabPaused, m.tab)

	m, _ = press(m, "shift+tab")
	m, _ = press(m, "shift+tab")
	assert.Equal(t, TabQueued, m.tab)

	m, _ = press(m, "shift+tab")
	assert.Equal(t, TabFailed, m.tab, "wraps around")
}

func TestUpdate_AddDownloadCompletes(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(32*1024))
	dest := filepath.Join(t.TempDir(), "file.bin")

	m := newTestModel(t)
	m = queue(t, m, server.URL(), dest)

	assert.Equal(t, "Queued file.bin", m.notice)
	require.Len(t, m.lists[TabQueued], 1)

	m = tickUntil(t, m, func(m RootModel) bool { return len(m.lists[TabCompleted]) == 1 }, "download completes")
	assert.Empty(t, m.lists[TabActive])
	assert.NoError(t, testutil.VerifyFileSize(dest, 32*1024))
}

func TestUpdate_SubmitRejectsNonHTTP(t *testing.T) {
	m := newTestModel(t)
	m, _ = press(m, "g")
	m.inputs[urlInput].SetValue("ftp://example.com/file")

	m, cmd := press(m, "enter")
	assert.Nil(t, cmd)
	assert.Contains(t, m.notice, "Not an http(s) URL")
	assert.Empty(t, m.manager.Queued())
}

func TestUpdate_EmptyURLKeepsPopup(t *testing.T) {
	m := newTestModel(t)
	m, _ = press(m, "g")

	m, cmd := press(m, "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, InputState, m.state)

	m, _ = press(m, "esc")
	assert.Equal(t, DashboardState, m.state)
}

func TestUpdate_InputFieldNavigation(t *testing.T) {
	m := newTestModel(t)
	m, _ = press(m, "g")
	assert.Equal(t, urlInput, m.focusedInput)

	m, _ = press(m, "tab")
	assert.Equal(t, destInput, m.focusedInput)
	m, _ = press(m, "tab")
	assert.Equal(t, urlInput, m.focusedInput)

	m, _ = press(m, "x")
	assert.Equal(t, "x", m.inputs[urlInput].Value())
}

func TestUpdate_PauseAndResumeFromTabs(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(256*1024),
		testutil.WithThrottle(2*1024, 5*time.Millisecond),
	)
	dest := filepath.Join(t.TempDir(), "slow.bin")

	m := newTestModel(t)
	m = queue(t, m, server.URL(), dest)
	m = tickUntil(t, m, func(m RootModel) bool {
		return len(m.lists[TabActive]) == 1 && m.lists[TabActive][0].DownloadedBytes() > 0
	}, "transfer under way")

	// Wrong tab: pause only addresses the active list
	m.tab = TabQueued
	m, _ = press(m, "p")
	require.Len(t, m.lists[TabActive], 1)

	m.tab = TabActive
	m, _ = press(m, "p")
	assert.Empty(t, m.lists[TabActive])
	require.Len(t, m.lists[TabPaused], 1)

	m, _ = press(m, "tab")
	require.Equal(t, TabPaused, m.tab)
	m, _ = press(m, "r")
	assert.Empty(t, m.lists[TabPaused])
	assert.Len(t, m.lists[TabQueued], 1)

	m = tickUntil(t, m, func(m RootModel) bool { return len(m.lists[TabActive]) == 1 }, "readmitted")
	m, _ = press(m, "C")
	assert.Empty(t, m.lists[TabActive])
}

func TestUpdate_FailedRetryAndClearHistory(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithStatus(404))
	dest := filepath.Join(t.TempDir(), "missing.bin")

	m := newTestModel(t)
	m = queue(t, m, server.URL(), dest)
	m = tickUntil(t, m, func(m RootModel) bool { return len(m.lists[TabFailed]) == 1 }, "download fails")

	failed := m.lists[TabFailed][0]
	assert.Equal(t, types.ErrHTTPReturnedError, failed.ErrorKind())
	assert.Contains(t, taskStats(failed), "HTTP 404")

	m.tab = TabFailed
	m, cmd := press(m, "t")
	require.NotNil(t, cmd, "retries run off the UI goroutine")
	m, _ = send(m, cmd())
	assert.Empty(t, m.lists[TabFailed])
	assert.Len(t, m.lists[TabQueued], 1)

	m = tickUntil(t, m, func(m RootModel) bool { return len(m.lists[TabFailed]) == 1 }, "retry fails again")
	m, _ = press(m, "x")
	assert.Empty(t, m.lists[TabFailed])
	assert.Empty(t, m.lists[TabCompleted])
}

func TestUpdate_CursorStaysInRange(t *testing.T) {
	m := newTestModel(t)
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		m.manager.QueueDownload("http://example.com/"+name, filepath.Join(dir, name))
	}
	m.tab = TabQueued
	m.refresh()

	for range 5 {
		m, _ = press(m, "down")
	}
	assert.Equal(t, 2, m.cursor)

	m, _ = press(m, "up")
	assert.Equal(t, 1, m.cursor)

	m, _ = press(m, "enter")
	assert.Equal(t, DetailState, m.state)
	assert.Contains(t, m.View(), "example.com/")

	m, _ = press(m, "esc")
	assert.Equal(t, DashboardState, m.state)
}

func TestUpdate_Quit(t *testing.T) {
	m := newTestModel(t)
	_, cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRecordSpeed_KeepsBoundedHistory(t *testing.T) {
	m := newTestModel(t)
	for range GraphHistoryLimit + 25 {
		m.recordSpeed()
	}
	assert.Len(t, m.speedHistory, GraphHistoryLimit)
}

func TestRenderSpeedGraph(t *testing.T) {
	graph := renderSpeedGraph([]float64{0, 512, 1024, 2048}, 40, GraphHeight)
	lines := strings.Split(graph, "\n")
	assert.Len(t, lines, GraphHeight)
	assert.Contains(t, lines[0], "2.0 KiB/s")
	assert.Contains(t, graph, "█")

	assert.Empty(t, renderSpeedGraph(nil, 3, GraphHeight), "no room beside the label")
}

func TestView(t *testing.T) {
	m := newTestModel(t)
	m.width = 0
	assert.Equal(t, "Loading...", m.View())

	m, _ = send(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	assert.Contains(t, view, "Active (0)")
	assert.Contains(t, view, "No active downloads")

	m.manager.QueueDownload("http://example.com/x.iso", filepath.Join(t.TempDir(), "x.iso"))
	m.tab = TabQueued
	m.refresh()
	view = m.View()
	assert.Contains(t, view, "x.iso")
	assert.Contains(t, view, "size unknown")
}

func TestSettings_EditToggleAndSave(t *testing.T) {
	t.Setenv(config.EnvHome, t.TempDir())
	m := newTestModel(t)

	m, _ = press(m, "s")
	require.Equal(t, SettingsState, m.state)

	m, _ = press(m, "2")
	assert.Equal(t, "max_concurrent_downloads", m.getCurrentSettingKey())

	m, _ = press(m, "enter")
	require.True(t, m.SettingsIsEditing)
	assert.Equal(t, "5", m.SettingsInput.Value())

	m.SettingsInput.SetValue("99")
	m, _ = press(m, "enter")
	assert.Contains(t, m.notice, "Invalid value")
	assert.Equal(t, 5, m.Settings.Connections.MaxConcurrentDownloads)

	m, _ = press(m, "enter")
	m.SettingsInput.SetValue("8")
	m, _ = press(m, "enter")
	assert.False(t, m.SettingsIsEditing)
	assert.Equal(t, 8, m.Settings.Connections.MaxConcurrentDownloads)

	for range 3 {
		m, _ = press(m, "down")
	}
	require.Equal(t, "skip_tls_verification", m.getCurrentSettingKey())
	m, _ = press(m, "enter")
	assert.True(t, m.Settings.Connections.SkipTLSVerification)

	m, _ = press(m, "d")
	assert.False(t, m.Settings.Connections.SkipTLSVerification)

	assert.Contains(t, m.View(), "Skip TLS Verification")

	m, _ = press(m, "esc")
	assert.Equal(t, DashboardState, m.state)

	saved, err := config.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 8, saved.Connections.MaxConcurrentDownloads)
}

func TestSettings_DurationValidation(t *testing.T) {
	m := newTestModel(t)
	require.Error(t, m.setSettingValue("Performance", "probe_timeout", "soon"))
	require.Error(t, m.setSettingValue("Performance", "probe_timeout", "-1s"))
	require.NoError(t, m.setSettingValue("Performance", "probe_timeout", "45s"))
	assert.Equal(t, 45*time.Second, m.Settings.Performance.ProbeTimeout)
}

func TestFormatSettingValue(t *testing.T) {
	assert.Equal(t, "True", formatSettingValue(true, "bool"))
	assert.Equal(t, "200ms", formatSettingValue(200*time.Millisecond, "duration"))
	assert.Equal(t, "7", formatSettingValue(7, "int"))
	assert.Equal(t, "(default)", formatSettingValue("", "string"))
	assert.Equal(t, "-", formatSettingValue(nil, "string"))
}
