package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	sidePanelWidth = 44
	// menu bar + panel borders + "Blocks:" heading
	chromeRows  = 4
	defaultRows = 20
	sparkHeight = 3
)

// visibleRows is how many block rows fit in the central panel.
func (a *App) visibleRows() int {
	if a.height <= 0 {
		return defaultRows
	}
	return max(a.height-chromeRows, 1)
}

func (a *App) View() string {
	menu := a.renderMenuBar()
	inner := a.visibleRows() + 1
	side := a.renderSidePanel(inner)
	central := a.renderCentralPanel(inner)
	return lipgloss.JoinVertical(lipgloss.Left, menu, lipgloss.JoinHorizontal(lipgloss.Top, side, central))
}

func (a *App) renderMenuBar() string {
	help := a.keys.browseHelp()
	if a.focus == focusURL {
		help = a.keys.editHelp()
	}
	parts := []string{menuItemStyle.Render("File"), menuHintStyle.Render("[q] Quit")}
	for _, b := range help {
		parts = append(parts, menuHintStyle.Render(helpText(b)))
	}
	bar := strings.Join(parts, "  ")
	if a.width > 0 {
		return menuBarStyle.Width(a.width).MaxWidth(a.width).Render(bar)
	}
	return menuBarStyle.Render(bar)
}

func helpText(b key.Binding) string {
	h := b.Help()
	return h.Key + " " + h.Desc
}

func (a *App) renderSidePanel(height int) string {
	top := []string{
		headingStyle.Render("Node"),
		labelStyle.Render("node url: "),
		ansi.Truncate(a.urlInput.View(), sidePanelWidth-4, ""),
		"",
	}
	if a.status != "" {
		style := okStyle
		if a.statusErr {
			style = errorStyle
		}
		top = append(top, style.Width(sidePanelWidth-4).Render(a.status))
	}
	if a.connected {
		top = append(top, labelStyle.Render("chain: ")+a.chain, labelStyle.Render("version: ")+a.version)
	}
	if latest, ok := a.blocks.Latest(); ok {
		top = append(top, labelStyle.Render("best: ")+fmt.Sprintf("#%d", latest.Number))
	}
	if chart := a.renderBlockTimes(sidePanelWidth - 4); chart != "" {
		top = append(top, "", chart)
	}

	bottom := []string{
		headingStyle.Render("Polymesh Go TUI"),
		labelStyle.Render("Source code:"),
		linkStyle.Render(ansi.Truncate(SourceURL, sidePanelWidth-4, "…")),
	}
	if a.devBuild {
		bottom = append(bottom, warnStyle.Render("⚠ Debug build"))
	}

	body := stackBottomUp(top, bottom, height)
	style := panelStyle
	if a.focus == focusURL {
		style = focusedPanelStyle
	}
	return style.Width(sidePanelWidth - 2).Height(height).MaxHeight(height + 2).Render(body)
}

// renderBlockTimes charts the gaps between recently received blocks.
func (a *App) renderBlockTimes(width int) string {
	gaps := a.blocks.Intervals(width)
	if len(gaps) < 2 {
		return ""
	}
	var total time.Duration
	sl := sparkline.New(width, sparkHeight)
	for _, g := range gaps {
		total += g
		sl.Push(g.Seconds())
	}
	sl.Draw()
	avg := total / time.Duration(len(gaps))
	label := labelStyle.Render("block time: ") + fmt.Sprintf("avg %.1fs", avg.Seconds())
	return label + "\n" + sparkStyle.Render(sl.View())
}

// stackBottomUp pins bottom to the last lines of a column of the given height.
func stackBottomUp(top, bottom []string, height int) string {
	topText := strings.Join(top, "\n")
	bottomText := strings.Join(bottom, "\n")
	gap := height - lipgloss.Height(topText) - lipgloss.Height(bottomText)
	if gap < 1 {
		gap = 1
	}
	return topText + strings.Repeat("\n", gap) + bottomText
}

func (a *App) renderCentralPanel(height int) string {
	rows := a.visibleRows()
	visible := a.blocks.Range(a.offset, a.offset+rows)

	width := 80
	if a.width > 0 {
		width = max(a.width-sidePanelWidth, 20)
	}
	// rows must not wrap or the list would overflow the panel
	textWidth := width - 4

	lines := make([]string, 0, len(visible)+1)
	heading := headingStyle.Render("Blocks:")
	if n := a.blocks.Len(); n > 0 {
		heading += scrollStyle.Render(fmt.Sprintf("  %d-%d of %d", a.offset+1, a.offset+len(visible), n))
	}
	lines = append(lines, ansi.Truncate(heading, textWidth, "…"))
	for _, b := range visible {
		row := numberStyle.Render(fmt.Sprintf("%d", b.Number)) + rowStyle.Render(": "+b.Hash.String())
		lines = append(lines, ansi.Truncate(row, textWidth, "…"))
	}
	return panelStyle.Width(width - 2).Height(height).MaxHeight(height + 2).Render(strings.Join(lines, "\n"))
}
