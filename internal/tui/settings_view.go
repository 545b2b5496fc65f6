package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/utils"
)

// viewSettings renders the settings page: category tabs, the setting
// names on the left and the selected value with its help on the right
func (m RootModel) viewSettings() string {
	width := 72
	if m.width < width+4 {
		width = m.width - 4
	}

	categories := config.CategoryOrder()
	metadata := config.GetSettingsMetadata()

	var tabItems []string
	for i, cat := range categories {
		label := fmt.Sprintf("[%d] %s", i+1, cat)
		if i == m.SettingsActiveTab {
			tabItems = append(tabItems, ActiveTabStyle.Render(label))
		} else {
			tabItems = append(tabItems, TabStyle.Render(label))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Left, tabItems...)

	currentCategory := categories[m.SettingsActiveTab]
	settingsMeta := metadata[currentCategory]
	values := m.getSettingsValues(currentCategory)

	leftWidth := 26
	rightWidth := max(width-leftWidth-5, 10)

	var listLines []string
	for i, meta := range settingsMeta {
		if i == m.SettingsSelectedRow {
			listLines = append(listLines, SelectedItemStyle.Render("> "+meta.Label))
		} else {
			listLines = append(listLines, lipgloss.NewStyle().Foreground(ColorLightGray).Render("  "+meta.Label))
		}
	}
	listBox := lipgloss.NewStyle().Width(leftWidth).Render(lipgloss.JoinVertical(lipgloss.Left, listLines...))

	separator := lipgloss.NewStyle().
		Foreground(ColorGray).
		Render(strings.Repeat("│\n", max(len(settingsMeta)-1, 0)) + "│")

	var rightContent string
	if m.SettingsSelectedRow < len(settingsMeta) {
		meta := settingsMeta[m.SettingsSelectedRow]
		valueStr := formatSettingValue(values[meta.Key], meta.Type)
		if m.SettingsIsEditing {
			valueStr = m.SettingsInput.View()
		}

		valueDisplay := lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true).
			Render("Value: " + valueStr)
		descDisplay := lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Width(rightWidth - 2).
			Render(meta.Description)

		rightContent = valueDisplay + "\n\n" + descDisplay
	}
	rightBox := lipgloss.NewStyle().Width(rightWidth).PaddingLeft(1).Render(rightContent)

	content := lipgloss.JoinVertical(lipgloss.Left,
		CardTitleStyle.Render("Settings"),
		"",
		tabBar,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, listBox, separator, rightBox),
		"",
		m.help.View(SettingsKeys),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, PopupStyle.Render(content))
}

func (m RootModel) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.SettingsIsEditing {
		switch msg.String() {
		case "esc":
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
		case "enter":
			category := config.CategoryOrder()[m.SettingsActiveTab]
			if err := m.setSettingValue(category, m.getCurrentSettingKey(), m.SettingsInput.Value()); err != nil {
				m.notice = "Invalid value: " + err.Error()
			}
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
		default:
			var cmd tea.Cmd
			m.SettingsInput, cmd = m.SettingsInput.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	keys := SettingsKeys
	categories := config.CategoryOrder()

	switch {
	case key.Matches(msg, keys.Close):
		if err := config.SaveSettings(m.Settings); err != nil {
			m.notice = "Failed to save settings: " + err.Error()
		} else {
			m.notice = "Settings saved; connection changes apply on restart"
		}
		m.state = DashboardState

	case key.Matches(msg, keys.NextTab):
		m.SettingsActiveTab = (m.SettingsActiveTab + 1) % len(categories)
		m.SettingsSelectedRow = 0
	case key.Matches(msg, keys.PrevTab):
		m.SettingsActiveTab = (m.SettingsActiveTab + len(categories) - 1) % len(categories)
		m.SettingsSelectedRow = 0

	case key.Matches(msg, keys.Up):
		if m.SettingsSelectedRow > 0 {
			m.SettingsSelectedRow--
		}
	case key.Matches(msg, keys.Down):
		if m.SettingsSelectedRow < m.getSettingsCount()-1 {
			m.SettingsSelectedRow++
		}

	case key.Matches(msg, keys.Edit):
		category := categories[m.SettingsActiveTab]
		settingKey := m.getCurrentSettingKey()
		if m.getCurrentSettingType() == "bool" {
			_ = m.setSettingValue(category, settingKey, "")
			return m, nil
		}
		current := m.getSettingsValues(category)[settingKey]
		if s, ok := current.(string); ok {
			m.SettingsInput.SetValue(s)
		} else {
			m.SettingsInput.SetValue(formatSettingValue(current, m.getCurrentSettingType()))
		}
		m.SettingsInput.CursorEnd()
		m.SettingsInput.Focus()
		m.SettingsIsEditing = true

	case key.Matches(msg, keys.Reset):
		m.resetSettingToDefault(categories[m.SettingsActiveTab], m.getCurrentSettingKey(), config.DefaultSettings())

	default:
		if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(categories) {
			m.SettingsActiveTab = n - 1
			m.SettingsSelectedRow = 0
		}
	}

	return m, nil
}

// getSettingsValues returns a map of setting key -> value for a category
func (m RootModel) getSettingsValues(category string) map[string]any {
	values := make(map[string]any)

	switch category {
	case "General":
		values["default_download_dir"] = m.Settings.General.DefaultDownloadDir
		values["auto_resume"] = m.Settings.General.AutoResume
	case "Network":
		values["max_concurrent_downloads"] = m.Settings.Connections.MaxConcurrentDownloads
		values["user_agent"] = m.Settings.Connections.UserAgent
		values["proxy_url"] = m.Settings.Connections.ProxyURL
		values["skip_tls_verification"] = m.Settings.Connections.SkipTLSVerification
	case "Performance":
		values["progress_interval"] = m.Settings.Performance.ProgressInterval
		values["probe_timeout"] = m.Settings.Performance.ProbeTimeout
	}

	return values
}

// setSettingValue sets a setting from string input; booleans toggle
func (m *RootModel) setSettingValue(category, key, value string) error {
	value = strings.TrimSpace(value)

	switch category {
	case "General":
		switch key {
		case "default_download_dir":
			if value == "" {
				return fmt.Errorf("download directory cannot be empty")
			}
			m.Settings.General.DefaultDownloadDir = value
		case "auto_resume":
			m.Settings.General.AutoResume = !m.Settings.General.AutoResume
		}
	case "Network":
		switch key {
		case "max_concurrent_downloads":
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			if v < 1 || v > config.MaxConcurrentDownloadsLimit {
				return fmt.Errorf("must be between 1 and %d", config.MaxConcurrentDownloadsLimit)
			}
			m.Settings.Connections.MaxConcurrentDownloads = v
		case "user_agent":
			m.Settings.Connections.UserAgent = value
		case "proxy_url":
			m.Settings.Connections.ProxyURL = value
		case "skip_tls_verification":
			m.Settings.Connections.SkipTLSVerification = !m.Settings.Connections.SkipTLSVerification
		}
	case "Performance":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("duration must be positive")
		}
		switch key {
		case "progress_interval":
			m.Settings.Performance.ProgressInterval = d
		case "probe_timeout":
			m.Settings.Performance.ProbeTimeout = d
		}
	}

	utils.Debug("TUI: setting %s.%s updated", category, key)
	return nil
}

// resetSettingToDefault resets a specific setting to its default value
func (m *RootModel) resetSettingToDefault(category, key string, defaults *config.Settings) {
	switch category {
	case "General":
		switch key {
		case "default_download_dir":
			m.Settings.General.DefaultDownloadDir = defaults.General.DefaultDownloadDir
		case "auto_resume":
			m.Settings.General.AutoResume = defaults.General.AutoResume
		}
	case "Network":
		switch key {
		case "max_concurrent_downloads":
			m.Settings.Connections.MaxConcurrentDownloads = defaults.Connections.MaxConcurrentDownloads
		case "user_agent":
			m.Settings.Connections.UserAgent = defaults.Connections.UserAgent
		case "proxy_url":
			m.Settings.Connections.ProxyURL = defaults.Connections.ProxyURL
		case "skip_tls_verification":
			m.Settings.Connections.SkipTLSVerification = defaults.Connections.SkipTLSVerification
		}
	case "Performance":
		switch key {
		case "progress_interval":
			m.Settings.Performance.ProgressInterval = defaults.Performance.ProgressInterval
		case "probe_timeout":
			m.Settings.Performance.ProbeTimeout = defaults.Performance.ProbeTimeout
		}
	}
}

// getCurrentSettingKey returns the key of the currently selected setting
func (m RootModel) getCurrentSettingKey() string {
	if meta, ok := m.currentSettingMeta(); ok {
		return meta.Key
	}
	return ""
}

// getCurrentSettingType returns the type of the currently selected setting
func (m RootModel) getCurrentSettingType() string {
	if meta, ok := m.currentSettingMeta(); ok {
		return meta.Type
	}
	return ""
}

func (m RootModel) currentSettingMeta() (config.SettingMeta, bool) {
	category := config.CategoryOrder()[m.SettingsActiveTab]
	metas := config.GetSettingsMetadata()[category]
	if m.SettingsSelectedRow < len(metas) {
		return metas[m.SettingsSelectedRow], true
	}
	return config.SettingMeta{}, false
}

// getSettingsCount returns the number of settings in the current category
func (m RootModel) getSettingsCount() int {
	category := config.CategoryOrder()[m.SettingsActiveTab]
	return len(config.GetSettingsMetadata()[category])
}

// formatSettingValue formats a setting value for display
func formatSettingValue(value any, typ string) string {
	if value == nil {
		return "-"
	}

	switch v := value.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case time.Duration:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case string:
		if v == "" {
			return "(default)"
		}
		if typ == "string" && len(v) > 30 {
			return v[:27] + "..."
		}
		return v
	default:
		return fmt.Sprintf("%v", value)
	}
}
