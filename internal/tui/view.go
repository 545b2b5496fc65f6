package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/sdm/internal/download"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	// === Handle Modal States First ===
	switch m.state {
	case InputState:
		return m.viewInput()
	case DetailState:
		if t := m.selected(); t != nil {
			return m.viewDetail(t)
		}
	case SettingsState:
		return m.viewSettings()
	}

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		m.viewHeader(),
		m.viewTabs(),
		m.viewList(),
		m.viewFooter(),
	))
}

func (m RootModel) viewHeader() string {
	active := m.lists[TabActive]
	var speed float64
	for _, t := range active {
		speed += t.CurrentSpeed()
	}

	title := TitleStyle.Render("sdm")
	stats := StatsStyle.Render(fmt.Sprintf("%d/%d active  %s  %d queued  %d paused",
		len(active), m.manager.Capacity(), utils.FormatSpeed(speed),
		len(m.lists[TabQueued]), len(m.lists[TabPaused])))

	graphWidth := m.width - lipgloss.Width(title) - lipgloss.Width(stats) - 2*HeaderWidthOffset - 4
	graph := renderSpeedGraph(m.speedHistory, graphWidth, GraphHeight)

	left := lipgloss.JoinVertical(lipgloss.Left, title, stats)
	if graph == "" {
		return left
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", graph)
}

func (m RootModel) viewTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		label := fmt.Sprintf("%s (%d)", t, len(m.lists[t]))
		if t == m.tab {
			tabs = append(tabs, ActiveTabStyle.Render(label))
		} else {
			tabs = append(tabs, TabStyle.Render(label))
		}
	}
	return HeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
}

func (m RootModel) viewList() string {
	list := m.lists[m.tab]
	if len(list) == 0 {
		return PanelStyle.Render(CardStatsStyle.Render("No " + strings.ToLower(m.tab.String()) + " downloads"))
	}

	// Each card is three lines plus its border
	rows := max((m.height-GraphHeight-10)/5, MinListRows)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(list))

	cards := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		cards = append(cards, m.renderCard(list[i], i == m.cursor))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func (m RootModel) renderCard(t *download.Task, selected bool) string {
	style := CardStyle
	if selected {
		style = SelectedCardStyle
	}
	if w := m.width - 2*PopupPaddingX; w > 0 {
		style = style.Width(w)
	}

	name := CardTitleStyle.Render(t.Filename())
	status := lipgloss.NewStyle().Foreground(statusColor(t.Status())).Render(t.Status().String())

	var bar string
	if t.SizeKnown() || t.Status() == types.StatusCompleted {
		bar = fmt.Sprintf("%s %5.1f%%", m.progress.ViewAs(t.Progress()/100), t.Progress())
	} else {
		bar = CardStatsStyle.Render("size unknown")
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, name, "  ", status),
		bar,
		CardStatsStyle.Render(taskStats(t)),
	))
}

// taskStats summarises the byte counters and, depending on status,
// speed and ETA or the recorded error
func taskStats(t *download.Task) string {
	size := utils.ConvertBytesToHumanReadable(t.DownloadedBytes())
	if t.SizeKnown() {
		size += " / " + utils.ConvertBytesToHumanReadable(t.TotalBytes())
	}

	switch t.Status() {
	case types.StatusActive:
		return fmt.Sprintf("%s  %s  ETA %s", size, utils.FormatSpeed(t.CurrentSpeed()), utils.FormatETA(t.ETA()))
	case types.StatusFailed:
		msg := t.ErrorMessage()
		if code := t.HTTPStatus(); code >= 400 {
			msg = fmt.Sprintf("%s (HTTP %d)", msg, code)
		}
		return size + "  " + ErrorTextStyle.Render(msg)
	case types.StatusCompleted:
		return size + "  finished " + utils.FormatTimestamp(t.EndedAt().Unix())
	default:
		return size
	}
}

func (m RootModel) viewFooter() string {
	var lines []string
	if m.notice != "" {
		lines = append(lines, StatusBarStyle.Render(m.notice))
	}
	lines = append(lines, m.help.View(DashboardKeys))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m RootModel) viewInput() string {
	labelStyle := lipgloss.NewStyle().Width(10).Foreground(ColorLightGray)

	content := lipgloss.JoinVertical(lipgloss.Left,
		CardTitleStyle.Render("Add Download"),
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("URL:"), m.inputs[urlInput].View()),
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("Save as:"), m.inputs[destInput].View()),
		"",
		m.help.View(InputKeys),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, PopupStyle.Render(content))
}

func (m RootModel) viewDetail(t *download.Task) string {
	labelStyle := lipgloss.NewStyle().Width(14).Foreground(ColorLightGray)
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render(label), value)
	}

	total := "unknown"
	if t.SizeKnown() {
		total = utils.ConvertBytesToHumanReadable(t.TotalBytes())
	}
	errMsg := t.ErrorMessage()
	if errMsg == "" {
		errMsg = "-"
	}
	dest := t.Destination()
	if dest == "" {
		dest = "-"
	}
	httpStatus := "-"
	if code := t.HTTPStatus(); code != 0 {
		httpStatus = fmt.Sprint(code)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		CardTitleStyle.Render(t.Filename()),
		"",
		row("ID:", t.ID()),
		row("URL:", t.URL()),
		row("Destination:", dest),
		row("Status:", lipgloss.NewStyle().Foreground(statusColor(t.Status())).Render(t.Status().String())),
		row("Progress:", fmt.Sprintf("%.1f%%", t.Progress())),
		row("Downloaded:", utils.ConvertBytesToHumanReadable(t.DownloadedBytes())),
		row("Size:", total),
		row("Speed:", utils.FormatSpeed(t.CurrentSpeed())),
		row("ETA:", utils.FormatETA(t.ETA())),
		row("HTTP status:", httpStatus),
		row("Error:", errMsg),
		row("Created:", utils.FormatTimestamp(t.CreatedAt().Unix())),
		"",
		CardStatsStyle.Render("esc to close"),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, PopupStyle.Render(content))
}

func statusColor(s types.DownloadStatus) lipgloss.Color {
	switch s {
	case types.StatusActive:
		return ColorInfo
	case types.StatusPaused:
		return ColorWarning
	case types.StatusCompleted:
		return ColorSuccess
	case types.StatusFailed, types.StatusCanceled:
		return ColorError
	default:
		return ColorSubtext
	}
}
