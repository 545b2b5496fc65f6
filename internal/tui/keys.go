package tui

import "github.com/charmbracelet/bubbles/key"

// DashboardKeyMap holds the bindings active on the download list
type DashboardKeyMap struct {
	Add       key.Binding
	Paste     key.Binding
	Up        key.Binding
	Down      key.Binding
	NextTab   key.Binding
	PrevTab   key.Binding
	Details   key.Binding
	Pause     key.Binding
	Resume    key.Binding
	Cancel    key.Binding
	Retry     key.Binding
	PauseAll  key.Binding
	ResumeAll key.Binding
	CancelAll key.Binding
	RetryAll  key.Binding
	Clear     key.Binding
	Settings  key.Binding
	Quit      key.Binding
}

// InputKeyMap holds the bindings of the add-download popup
type InputKeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Paste  key.Binding
	Submit key.Binding
	Cancel key.Binding
}

// SettingsKeyMap holds the bindings of the settings screen
type SettingsKeyMap struct {
	NextTab key.Binding
	PrevTab key.Binding
	Up      key.Binding
	Down    key.Binding
	Edit    key.Binding
	Reset   key.Binding
	Close   key.Binding
}

var DashboardKeys = DashboardKeyMap{
	Add:       key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "add")),
	Paste:     key.NewBinding(key.WithKeys("v", "ctrl+v"), key.WithHelp("v", "add from clipboard")),
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	NextTab:   key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next list")),
	PrevTab:   key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev list")),
	Details:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
	Pause:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Resume:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
	Cancel:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
	Retry:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "retry")),
	PauseAll:  key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "pause all")),
	ResumeAll: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "resume all")),
	CancelAll: key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "cancel all")),
	RetryAll:  key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "retry all")),
	Clear:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear history")),
	Settings:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var InputKeys = InputKeyMap{
	Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
	Paste:  key.NewBinding(key.WithKeys("ctrl+v"), key.WithHelp("ctrl+v", "paste")),
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "queue")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
}

var SettingsKeys = SettingsKeyMap{
	NextTab: key.NewBinding(key.WithKeys("tab", "right"), key.WithHelp("tab", "next category")),
	PrevTab: key.NewBinding(key.WithKeys("shift+tab", "left"), key.WithHelp("shift+tab", "prev category")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Edit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit/toggle")),
	Reset:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "default")),
	Close:   key.NewBinding(key.WithKeys("esc", "s"), key.WithHelp("esc", "save & close")),
}

func (k DashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.NextTab, k.Pause, k.Resume, k.Cancel, k.Retry, k.Settings, k.Quit}
}

func (k DashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Add, k.Paste, k.Up, k.Down, k.NextTab, k.PrevTab},
		{k.Pause, k.Resume, k.Cancel, k.Retry, k.Details},
		{k.PauseAll, k.ResumeAll, k.CancelAll, k.RetryAll, k.Clear},
		{k.Settings, k.Quit},
	}
}

func (k InputKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Paste, k.Submit, k.Cancel}
}

func (k InputKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func (k SettingsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTab, k.Up, k.Down, k.Edit, k.Reset, k.Close}
}

func (k SettingsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
