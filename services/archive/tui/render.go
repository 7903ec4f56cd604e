// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/deeptimelabs/tesseract/pkg/ux"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
)

// =============================================================================
// Header / Footer
// =============================================================================

func (m BrowserModel) renderHeader() string {
	var crumbs []string
	crumbs = append(crumbs, "archive")
	if m.level >= LevelVersions {
		crumbs = append(crumbs, truncate(m.paper.Title, 40))
	}
	if m.level == LevelDetail {
		crumbs = append(crumbs, fmt.Sprintf("v%d", m.version.Number))
	}

	title := titleStyle.Render("tesseract") + " " +
		crumbStyle.Render(strings.Join(crumbs, " › "))

	var count string
	switch m.level {
	case LevelPapers:
		count = fmt.Sprintf("%d papers", len(m.papers))
	case LevelVersions:
		count = fmt.Sprintf("%d published versions", len(m.versions))
	case LevelDetail:
		count = string(m.version.Policy)
	}

	return title + "\n" + statsStyle.Render("  "+count) + "\n"
}

func (m BrowserModel) renderFooter() string {
	var keys string
	switch {
	case m.showHelp:
		keys = "q/esc close help"
	case m.level == LevelDetail:
		keys = "j/k scroll · esc back · r reload · ? help · q quit"
	default:
		keys = "j/k move · enter open · esc back · r reload · ? help · q quit"
	}
	return footerStyle.Render(" " + keys)
}

// =============================================================================
// Lists
// =============================================================================

func (m BrowserModel) renderList() string {
	var b strings.Builder
	switch m.level {
	case LevelPapers:
		if len(m.papers) == 0 {
			b.WriteString(mutedStyle.Render("  no papers yet"))
			b.WriteString("\n")
			break
		}
		for i, p := range m.papers {
			b.WriteString(m.renderPaperRow(i, p))
			b.WriteString("\n")
		}
	case LevelVersions:
		if len(m.versions) == 0 {
			b.WriteString(mutedStyle.Render("  no published versions"))
			b.WriteString("\n")
			break
		}
		for i, v := range m.versions {
			b.WriteString(m.renderVersionRow(i, v))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m BrowserModel) renderPaperRow(i int, p lineage.Paper) string {
	marker := "  "
	style := rowStyle
	if i == m.cursor {
		marker = "❯ "
		style = selectedStyle
	}
	line := fmt.Sprintf("%s%-44s %s", marker, truncate(p.Title, 44), idStyle.Render(p.ID))
	return style.Render(line)
}

func (m BrowserModel) renderVersionRow(i int, v lineage.Version) string {
	marker := "  "
	style := rowStyle
	if i == m.cursor {
		marker = "❯ "
		style = selectedStyle
	}
	badge := supersededBadge.Render("superseded")
	if v.State == lineage.StatePublished {
		badge = headBadge.Render("head")
	}
	line := fmt.Sprintf("%sv%-3d %-38s %s %s",
		marker, v.Number, truncate(v.Metadata.Title, 38), formatDay(v.PublishedAt), badge)
	return style.Render(line)
}

// =============================================================================
// Detail
// =============================================================================

func (m *BrowserModel) refreshViewport() {
	if !m.ready || m.level != LevelDetail {
		return
	}
	m.viewport.SetContent(m.renderDetail())
}

func (m BrowserModel) renderDetail() string {
	v := m.version
	var b strings.Builder

	put := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("  Version"))
	b.WriteString("\n")
	put("id", v.ID)
	put("number", fmt.Sprintf("%d", v.Number))
	put("state", string(v.State))
	put("policy", string(v.Policy))
	put("published", formatDay(v.PublishedAt))
	if v.CertHash != "" {
		put("cert hash", v.CertHash)
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("  Metadata"))
	b.WriteString("\n")
	put("title", v.Metadata.Title)
	if v.Metadata.UpdateReason != "" {
		put("reason", v.Metadata.UpdateReason)
	}
	if len(v.Metadata.AuthorTeam) > 0 {
		put("authors", strings.Join(v.Metadata.AuthorTeam, ", "))
	}
	if v.Metadata.AbstractDiff != "" {
		b.WriteString("\n")
		b.WriteString(abstractStyle.Render("  " + v.Metadata.AbstractDiff))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("  Dataset"))
	b.WriteString("\n")
	if m.dataset == nil {
		b.WriteString(mutedStyle.Render("  no dataset bound"))
		b.WriteString("\n")
	} else {
		ds := m.dataset
		put("id", ds.ID)
		put("samples", fmt.Sprintf("%d", ds.Samples))
		put("bytes", fmt.Sprintf("%d", ds.Bytes))
		put("chunks", fmt.Sprintf("%d (%d dedup)", len(ds.ChunkHashes), ds.DedupChunks))
		put("extent", ds.Effective.String())
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("  Statistics"))
	b.WriteString("\n")
	switch {
	case m.statErr != nil:
		b.WriteString(mutedStyle.Render("  " + m.statErr.Error()))
		b.WriteString("\n")
	case m.summary != nil:
		put("views", fmt.Sprintf("%d", m.summary.Views.Count))
		put("downloads", fmt.Sprintf("%d", m.summary.Downloads.Count))
	}

	return b.String()
}

// =============================================================================
// Help
// =============================================================================

func (m BrowserModel) renderHelp() string {
	rows := [][2]string{
		{"j / ↓", "move down (or scroll in detail)"},
		{"k / ↑", "move up (or scroll in detail)"},
		{"enter / l", "open selection"},
		{"esc / h", "go back"},
		{"g / G", "jump to top / bottom"},
		{"ctrl+d / ctrl+u", "half-page scroll"},
		{"r", "reload current level"},
		{"?", "toggle this help"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render("  Keys"))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(helpKeyStyle.Render(fmt.Sprintf("  %-16s", row[0])))
		b.WriteString(helpDescStyle.Render(row[1]))
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatDay(unixMilli int64) string {
	if unixMilli == 0 {
		return "-"
	}
	return time.UnixMilli(unixMilli).UTC().Format("2006-01-02")
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ux.ColorAmberPrimary)

	crumbStyle = lipgloss.NewStyle().
			Foreground(ux.ColorOchre)

	statsStyle = lipgloss.NewStyle().
			Foreground(ux.ColorSediment)

	rowStyle = lipgloss.NewStyle().
			Foreground(ux.ColorAmberBright)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ux.ColorAmberBright).
			Background(ux.ColorStrata)

	idStyle = lipgloss.NewStyle().
		Foreground(ux.ColorSediment)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ux.ColorAmberPrimary)

	labelStyle = lipgloss.NewStyle().
			Foreground(ux.ColorSienna)

	valueStyle = lipgloss.NewStyle().
			Foreground(ux.ColorAmberBright)

	abstractStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(ux.ColorOchre)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ux.ColorSediment)

	errorStyle = lipgloss.NewStyle().
			Foreground(ux.ColorError)

	footerStyle = lipgloss.NewStyle().
			Foreground(ux.ColorSediment)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(ux.ColorAmberPrimary).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(ux.ColorOchre)

	headBadge = lipgloss.NewStyle().
			Foreground(ux.ColorSuccess).
			Padding(0, 1)

	supersededBadge = lipgloss.NewStyle().
			Foreground(ux.ColorSediment).
			Padding(0, 1)
)
