package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
)

const (
	barWidth     = 20
	nameWidth    = 22
	minStatusCol = 12
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// renderRow draws one agent line for a terminal of the given width.
func renderRow(a analysis.AgentStatus, name string, frame, width int) string {
	glyph := doneRowStyle.Render("✓")
	if !a.IsComplete {
		glyph = spinnerFrames[frame%len(spinnerFrames)]
	}

	label := runewidth.FillRight(runewidth.Truncate(name, nameWidth, "…"), nameWidth)
	bar := progressBar(a.Progress)
	pct := fmt.Sprintf("%3d%%", a.Progress)

	// glyph, spaces, name, bar and percentage take a fixed number of cells
	used := 2 + nameWidth + 1 + barWidth + 1 + 4 + 2
	statusCol := width - used
	if statusCol < minStatusCol {
		statusCol = minStatusCol
	}
	status := runewidth.Truncate(a.StatusText, statusCol, "…")

	row := fmt.Sprintf("%s %s %s %s  %s", glyph, agentStyle.Render(label), bar, pct, statusStyle.Render(status))
	if a.IsComplete {
		return doneRowStyle.Render(row)
	}
	return row
}

func progressBar(progress int) string {
	filled := progress * barWidth / 100
	return progressFull.Render(strings.Repeat("█", filled)) +
		progressEmpty.Render(strings.Repeat("░", barWidth-filled))
}

func renderBadge(state analysis.State) string {
	name := state.String()
	return badgeStyle.Background(stateColor[name]).Render(strings.ToUpper(name))
}

// renderResult pretty-prints the result payload.
func renderResult(result analysis.Result, width int) string {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(result))
	}
	style := resultStyle
	if width > 4 {
		style = style.MaxWidth(width)
	}
	return style.Render(string(data))
}

// View renders a snapshot as the full screen body.
func View(env Env, h Header, snap analysis.Snapshot, names NameFunc, frame, width int) string {
	if names == nil {
		names = identity
	}
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	title := titleStyle.Render("hedgewatch")
	meta := metaStyle.Render(fmt.Sprintf("%s  %s  %s  %s", h.Symbol, h.Analyst, h.Model, env.label()))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, title, " ", renderBadge(snap.State), " ", meta))
	b.WriteString("\n\n")

	if len(snap.Agents) == 0 && snap.State == analysis.StateStreaming {
		b.WriteString(statusStyle.Render(spinnerFrames[frame%len(spinnerFrames)] + " waiting for the first agent update..."))
		b.WriteString("\n")
	}
	for _, a := range snap.Agents {
		b.WriteString(renderRow(a, names(a.AgentID), frame, width))
		b.WriteString("\n")
	}

	if snap.Result != nil {
		b.WriteString("\n")
		b.WriteString(renderResult(snap.Result, width))
		b.WriteString("\n")
	}
	if snap.Error != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(snap.Error))
		b.WriteString("\n")
	}
	return b.String()
}
