// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tui provides the interactive archive browser.
//
// # Description
//
// This package implements the paper and version browser using bubbletea.
// It walks three levels: the paper list, one paper's published lineage
// and one version's detail pane (metadata, dataset manifest, statistics).
//
// # Thread Safety
//
// TUI components are designed for single-threaded use within the bubbletea
// event loop. Do not access TUI state from multiple goroutines.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/deeptimelabs/tesseract/services/archive/ingest"
	"github.com/deeptimelabs/tesseract/services/archive/ledger"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
)

// =============================================================================
// Provider
// =============================================================================

// Provider supplies archive data to the browser. Implementations bind an
// authenticated actor so the browser itself never handles credentials.
type Provider interface {
	// Papers lists every paper, creation order.
	Papers(ctx context.Context) ([]lineage.Paper, error)

	// Versions lists one paper's published lineage, number ascending.
	Versions(ctx context.Context, paperID string) ([]lineage.Version, error)

	// Describe returns one version with its dataset manifest, when bound.
	Describe(ctx context.Context, versionID string) (lineage.Version, *ingest.Dataset, error)

	// Stats returns one version's counters. A permission denial is
	// rendered inline, not treated as a browser failure.
	Stats(ctx context.Context, versionID string) (ledger.Summary, error)
}

// =============================================================================
// View Level
// =============================================================================

// Level determines which pane the browser shows.
type Level int

const (
	// LevelPapers lists every paper in the archive.
	LevelPapers Level = iota

	// LevelVersions lists one paper's published lineage.
	LevelVersions

	// LevelDetail shows one version's full record.
	LevelDetail
)

// =============================================================================
// Messages
// =============================================================================

type papersMsg struct {
	papers []lineage.Paper
}

type versionsMsg struct {
	paperID  string
	versions []lineage.Version
}

type detailMsg struct {
	version lineage.Version
	dataset *ingest.Dataset
	summary *ledger.Summary
	statErr error
}

type loadErrMsg struct {
	err error
}

// =============================================================================
// Config
// =============================================================================

// BrowserConfig configures the archive browser.
type BrowserConfig struct {
	// Width overrides terminal width (0 = auto-detect).
	Width int

	// Height overrides terminal height (0 = auto-detect).
	Height int

	// LoadTimeout bounds each provider call (default: 10s).
	LoadTimeout time.Duration
}

// DefaultBrowserConfig returns sensible defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		LoadTimeout: 10 * time.Second,
	}
}

// =============================================================================
// Model
// =============================================================================

// BrowserModel is the bubbletea model for the archive browser.
//
// Manages navigation across the three levels and lazy-loads each level's
// data through the Provider.
type BrowserModel struct {
	config   BrowserConfig
	provider Provider

	// Current navigation state
	level    Level
	papers   []lineage.Paper
	versions []lineage.Version
	cursor   int

	// Selected context while descended
	paper   lineage.Paper
	version lineage.Version
	dataset *ingest.Dataset
	summary *ledger.Summary
	statErr error

	// Viewport for the detail pane
	viewport viewport.Model

	// Terminal dimensions
	width  int
	height int

	// State flags
	ready    bool
	loading  bool
	showHelp bool
	quitting bool
	loadErr  error
}

// NewBrowserModel creates a browser over the given provider.
func NewBrowserModel(provider Provider, config BrowserConfig) BrowserModel {
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultBrowserConfig().LoadTimeout
	}
	return BrowserModel{
		config:   config,
		provider: provider,
		level:    LevelPapers,
		loading:  true,
	}
}

// Init implements tea.Model.
func (m BrowserModel) Init() tea.Cmd {
	return m.loadPapers()
}

// Update implements tea.Model.
func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		viewportHeight := m.height - headerHeight - footerHeight

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.refreshViewport()

	case papersMsg:
		m.loading = false
		m.loadErr = nil
		m.papers = msg.papers
		if m.cursor >= len(m.papers) {
			m.cursor = 0
		}

	case versionsMsg:
		m.loading = false
		m.loadErr = nil
		m.versions = msg.versions
		m.level = LevelVersions
		m.cursor = len(m.versions) - 1 // land on the head
		if m.cursor < 0 {
			m.cursor = 0
		}

	case detailMsg:
		m.loading = false
		m.loadErr = nil
		m.version = msg.version
		m.dataset = msg.dataset
		m.summary = msg.summary
		m.statErr = msg.statErr
		m.level = LevelDetail
		m.refreshViewport()
		m.viewport.GotoTop()

	case loadErrMsg:
		m.loading = false
		m.loadErr = msg.err

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "q" || msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "Q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "?":
			m.showHelp = true

		case "r", "R":
			return m.reload()

		case "esc", "h", "left":
			return m.ascend()

		case "enter", "l", "right":
			return m.descend()

		case "up", "k":
			if m.level == LevelDetail {
				m.viewport.LineUp(1)
			} else if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.level == LevelDetail {
				m.viewport.LineDown(1)
			} else if m.cursor < m.listLen()-1 {
				m.cursor++
			}

		case "ctrl+d":
			m.viewport.HalfViewDown()

		case "ctrl+u":
			m.viewport.HalfViewUp()

		case "g", "home":
			if m.level == LevelDetail {
				m.viewport.GotoTop()
			} else {
				m.cursor = 0
			}

		case "G", "end":
			if m.level == LevelDetail {
				m.viewport.GotoBottom()
			} else if n := m.listLen(); n > 0 {
				m.cursor = n - 1
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m BrowserModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch {
	case m.showHelp:
		b.WriteString(m.renderHelp())
	case m.loadErr != nil:
		b.WriteString(errorStyle.Render("  ✗ " + m.loadErr.Error()))
		b.WriteString("\n")
	case m.loading:
		b.WriteString(mutedStyle.Render("  loading..."))
		b.WriteString("\n")
	case m.level == LevelDetail:
		b.WriteString(m.viewport.View())
	default:
		b.WriteString(m.renderList())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// =============================================================================
// Navigation
// =============================================================================

func (m BrowserModel) listLen() int {
	switch m.level {
	case LevelPapers:
		return len(m.papers)
	case LevelVersions:
		return len(m.versions)
	}
	return 0
}

func (m BrowserModel) descend() (BrowserModel, tea.Cmd) {
	switch m.level {
	case LevelPapers:
		if m.cursor >= len(m.papers) {
			return m, nil
		}
		m.paper = m.papers[m.cursor]
		m.loading = true
		return m, m.loadVersions(m.paper.ID)

	case LevelVersions:
		if m.cursor >= len(m.versions) {
			return m, nil
		}
		m.loading = true
		return m, m.loadDetail(m.versions[m.cursor].ID)
	}
	return m, nil
}

func (m BrowserModel) ascend() (BrowserModel, tea.Cmd) {
	switch m.level {
	case LevelDetail:
		m.level = LevelVersions
		m.dataset = nil
		m.summary = nil
		m.statErr = nil
		for i, v := range m.versions {
			if v.ID == m.version.ID {
				m.cursor = i
				break
			}
		}
	case LevelVersions:
		m.level = LevelPapers
		m.cursor = 0
		for i, p := range m.papers {
			if p.ID == m.paper.ID {
				m.cursor = i
				break
			}
		}
	}
	return m, nil
}

func (m BrowserModel) reload() (BrowserModel, tea.Cmd) {
	m.loading = true
	switch m.level {
	case LevelPapers:
		return m, m.loadPapers()
	case LevelVersions:
		return m, m.loadVersions(m.paper.ID)
	case LevelDetail:
		return m, m.loadDetail(m.version.ID)
	}
	return m, nil
}

// =============================================================================
// Loading
// =============================================================================

func (m BrowserModel) loadPapers() tea.Cmd {
	provider, timeout := m.provider, m.config.LoadTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		papers, err := provider.Papers(ctx)
		if err != nil {
			return loadErrMsg{err: err}
		}
		return papersMsg{papers: papers}
	}
}

func (m BrowserModel) loadVersions(paperID string) tea.Cmd {
	provider, timeout := m.provider, m.config.LoadTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		versions, err := provider.Versions(ctx, paperID)
		if err != nil {
			return loadErrMsg{err: err}
		}
		return versionsMsg{paperID: paperID, versions: versions}
	}
}

func (m BrowserModel) loadDetail(versionID string) tea.Cmd {
	provider, timeout := m.provider, m.config.LoadTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		version, dataset, err := provider.Describe(ctx, versionID)
		if err != nil {
			return loadErrMsg{err: err}
		}
		msg := detailMsg{version: version, dataset: dataset}
		if summary, err := provider.Stats(ctx, versionID); err != nil {
			msg.statErr = err
		} else {
			msg.summary = &summary
		}
		return msg
	}
}
