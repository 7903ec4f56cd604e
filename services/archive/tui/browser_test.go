// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptimelabs/tesseract/services/archive/ingest"
	"github.com/deeptimelabs/tesseract/services/archive/ledger"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
)

type fakeProvider struct {
	papers   []lineage.Paper
	versions []lineage.Version
}

func (f *fakeProvider) Papers(context.Context) ([]lineage.Paper, error) {
	return f.papers, nil
}

func (f *fakeProvider) Versions(context.Context, string) ([]lineage.Version, error) {
	return f.versions, nil
}

func (f *fakeProvider) Describe(_ context.Context, versionID string) (lineage.Version, *ingest.Dataset, error) {
	for _, v := range f.versions {
		if v.ID == versionID {
			return v, nil, nil
		}
	}
	return lineage.Version{}, nil, nil
}

func (f *fakeProvider) Stats(_ context.Context, versionID string) (ledger.Summary, error) {
	return ledger.Summary{VersionID: versionID}, nil
}

func newTestBrowser() (BrowserModel, *fakeProvider) {
	provider := &fakeProvider{
		papers: []lineage.Paper{
			{ID: "paper-1", Title: "Holocene cores"},
			{ID: "paper-2", Title: "Varve chronology"},
		},
		versions: []lineage.Version{
			{ID: "ver-1", PaperID: "paper-1", Number: 1, State: lineage.StateSuperseded},
			{ID: "ver-2", PaperID: "paper-1", Number: 2, State: lineage.StatePublished},
		},
	}
	m := NewBrowserModel(provider, DefaultBrowserConfig())

	sized, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = sized.(BrowserModel)
	loaded, _ := m.Update(papersMsg{papers: provider.papers})
	return loaded.(BrowserModel), provider
}

func runCmd(t *testing.T, m BrowserModel, cmd tea.Cmd) BrowserModel {
	t.Helper()
	require.NotNil(t, cmd)
	updated, _ := m.Update(cmd())
	return updated.(BrowserModel)
}

// TestBrowser_DescendAndAscend walks papers to versions to detail and back.
func TestBrowser_DescendAndAscend(t *testing.T) {
	m, _ := newTestBrowser()
	require.Equal(t, LevelPapers, m.level)
	require.Len(t, m.papers, 2)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = runCmd(t, updated.(BrowserModel), cmd)
	require.Equal(t, LevelVersions, m.level)
	// Cursor lands on the head (last published version).
	assert.Equal(t, 1, m.cursor)

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = runCmd(t, updated.(BrowserModel), cmd)
	require.Equal(t, LevelDetail, m.level)
	assert.Equal(t, "ver-2", m.version.ID)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(BrowserModel)
	require.Equal(t, LevelVersions, m.level)
	assert.Equal(t, 1, m.cursor)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(BrowserModel)
	assert.Equal(t, LevelPapers, m.level)
}

// TestBrowser_CursorBounds keeps the cursor inside the list.
func TestBrowser_CursorBounds(t *testing.T) {
	m, _ := newTestBrowser()

	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}}
	up := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}}

	for i := 0; i < 5; i++ {
		updated, _ := m.Update(down)
		m = updated.(BrowserModel)
	}
	assert.Equal(t, 1, m.cursor)

	for i := 0; i < 5; i++ {
		updated, _ := m.Update(up)
		m = updated.(BrowserModel)
	}
	assert.Equal(t, 0, m.cursor)
}

// TestBrowser_QuitAndHelp toggles help and quits.
func TestBrowser_QuitAndHelp(t *testing.T) {
	m, _ := newTestBrowser()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	m = updated.(BrowserModel)
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "Keys")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(BrowserModel)
	assert.False(t, m.showHelp)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(BrowserModel)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
}

// TestBrowser_LoadError renders the failure inline.
func TestBrowser_LoadError(t *testing.T) {
	m, _ := newTestBrowser()

	updated, _ := m.Update(loadErrMsg{err: assert.AnError})
	m = updated.(BrowserModel)
	assert.Contains(t, m.View(), assert.AnError.Error())
}
