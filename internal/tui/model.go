package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/download"
)

type UIState int //Defines UIState as int to be used in rootModel

const (
	DashboardState UIState = iota //DashboardState is 0 increments after each line
	InputState                    //InputState is 1
	DetailState                   //DetailState is 2
	SettingsState                 //SettingsState is 3
)

// Tab selects which manager collection the dashboard lists
type Tab int

const (
	TabQueued Tab = iota
	TabActive
	TabPaused
	TabCompleted
	TabFailed
	tabCount
)

var tabLabels = [tabCount]string{"Queued", "Active", "Paused", "Completed", "Failed"}

func (t Tab) String() string { return tabLabels[t] }

// Input fields of the add-download popup
const (
	urlInput = iota
	destInput
)

type tickMsg time.Time

// retriedMsg reports that a retry, which may repeat a filename lookup,
// has finished off the UI goroutine
type retriedMsg struct{}

// queuedMsg reports a QueueDownload that ran off the UI goroutine
type queuedMsg struct {
	task *download.Task
}

type RootModel struct {
	manager  *download.Manager
	Settings *config.Settings

	width  int
	height int
	state  UIState

	// Snapshot of the manager's collections, refreshed every tick
	lists  [tabCount][]*download.Task
	tab    Tab
	cursor int

	inputs       []textinput.Model
	focusedInput int

	progress     progress.Model
	help         help.Model
	speedHistory []float64
	notice       string

	// Settings screen
	SettingsActiveTab   int
	SettingsSelectedRow int
	SettingsIsEditing   bool
	SettingsInput       textinput.Model
}

// NewRootModel builds the dashboard around an already started manager.
// settings may be nil, in which case defaults are shown.
func NewRootModel(manager *download.Manager, settings *config.Settings) RootModel {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	urlIn := textinput.New()
	urlIn.Placeholder = "https://example.com/file.zip"
	urlIn.Width = InputWidth
	urlIn.Prompt = ""

	destIn := textinput.New()
	destIn.Placeholder = "(auto-detect into " + settings.General.DefaultDownloadDir + ")"
	destIn.Width = InputWidth
	destIn.Prompt = ""

	settingsIn := textinput.New()
	settingsIn.Width = InputWidth
	settingsIn.Prompt = "> "

	m := RootModel{
		manager:       manager,
		Settings:      settings,
		state:         DashboardState,
		tab:           TabActive,
		inputs:        []textinput.Model{urlIn, destIn},
		progress:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:          help.New(),
		SettingsInput: settingsIn,
	}
	m.refresh()
	return m
}

func (m RootModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh re-reads every collection and keeps the cursor in range
func (m *RootModel) refresh() {
	m.lists = [tabCount][]*download.Task{
		TabQueued:    m.manager.Queued(),
		TabActive:    m.manager.Active(),
		TabPaused:    m.manager.Paused(),
		TabCompleted: m.manager.Completed(),
		TabFailed:    m.manager.Failed(),
	}
	m.clampCursor()
}

func (m *RootModel) clampCursor() {
	n := len(m.lists[m.tab])
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selected returns the task under the cursor, or nil
func (m RootModel) selected() *download.Task {
	list := m.lists[m.tab]
	if m.cursor < 0 || m.cursor >= len(list) {
		return nil
	}
	return list[m.cursor]
}

// recordSpeed appends the aggregate speed of all active tasks to the graph history
func (m *RootModel) recordSpeed() {
	var total float64
	for _, t := range m.lists[TabActive] {
		total += t.CurrentSpeed()
	}
	m.speedHistory = append(m.speedHistory, total)
	if over := len(m.speedHistory) - GraphHistoryLimit; over > 0 {
		m.speedHistory = m.speedHistory[over:]
	}
}
