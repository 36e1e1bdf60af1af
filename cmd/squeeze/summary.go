package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorDim     = lipgloss.Color("#7A8291")
	colorAccent  = lipgloss.Color("#88C0D0")
	colorSuccess = lipgloss.Color("#A3BE8C")
	colorWarn    = lipgloss.Color("#EBCB8B")

	labelStyle = lipgloss.NewStyle().Foreground(colorDim)
	valueStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorSuccess)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
)

type summaryRow struct {
	Label string
	Value string
}

// renderSummary draws rows as an aligned two-column table between rules.
func renderSummary(rows []summaryRow) string {
	labelWidth, valueWidth := 0, 0
	for _, row := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(row.Label))
		valueWidth = max(valueWidth, lipgloss.Width(row.Value))
	}

	rule := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{rule}
	for _, row := range rows {
		label := labelStyle.Width(labelWidth).Render(row.Label)
		value := valueStyle.Render(row.Value)
		lines = append(lines, fmt.Sprintf("%s | %s", label, value))
	}
	lines = append(lines, rule)
	return strings.Join(lines, "\n")
}

// fileLine is one per-file progress line.
func fileLine(name string, originalKB, compressedKB float64, quality int, met bool) string {
	mark := okStyle.Width(5).Render("ok")
	if !met {
		mark = warnStyle.Width(5).Render("over")
	}
	return fmt.Sprintf("%s%s  %.1fKB -> %.1fKB  q%d", mark, name, originalKB, compressedKB, quality)
}

func formatKB(kb float64) string {
	if kb >= 1024 {
		return fmt.Sprintf("%.2f MB", kb/1024)
	}
	return fmt.Sprintf("%.1f KB", kb)
}
