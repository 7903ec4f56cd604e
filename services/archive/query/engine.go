// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package query resolves spatio-temporal range queries against published
// versions.
//
// Results stream through a lazy cursor in (version number ascending,
// chunk hash ascending) order, so identical requests paginate
// identically. The engine never mutates state and never decrypts chunk
// bytes; capability checks happen in the service facade before a cursor
// is handed out.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/ingest"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
	"github.com/deeptimelabs/tesseract/services/archive/vault"
)

// Engine resolves query requests against the lineage and the vault.
type Engine struct {
	db     *storage.DB
	papers *lineage.Store
	chunks *vault.Store
	log    *logging.Logger
}

// NewEngine wires a read-only query engine.
func NewEngine(db *storage.DB, papers *lineage.Store, chunks *vault.Store, log *logging.Logger) (*Engine, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if papers == nil {
		return nil, errors.New("papers must not be nil")
	}
	if chunks == nil {
		return nil, errors.New("chunks must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Engine{db: db, papers: papers, chunks: chunks, log: log}, nil
}

// Run resolves the request's versions and returns a cursor over the
// matching chunks. An empty result is an exhausted cursor, not an error.
func (e *Engine) Run(ctx context.Context, req Request) (*Cursor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	versions, err := e.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	c := &Cursor{engine: e, req: req, versions: versions}
	c.Reset()
	return c, nil
}

// resolve loads the selected versions, number ascending. Drafts are
// never query-visible.
func (e *Engine) resolve(ctx context.Context, req Request) ([]lineage.Version, error) {
	switch req.Selector.Mode {
	case ModeHead:
		head, err := e.papers.Head(ctx, req.PaperID)
		if err != nil {
			return nil, err
		}
		return []lineage.Version{head}, nil
	case ModeAll:
		return e.papers.ListVersions(ctx, req.PaperID)
	case ModeSpecific:
		v, err := e.papers.GetVersion(ctx, req.Selector.VersionID)
		if err != nil {
			return nil, err
		}
		if v.PaperID != req.PaperID {
			return nil, errs.Validationf("version %s belongs to paper %s, not %s", v.ID, v.PaperID, req.PaperID)
		}
		if !v.Readable() {
			return nil, errs.NotFoundf("version %s is not published", v.ID)
		}
		return []lineage.Version{v}, nil
	default:
		return nil, errs.Validationf("unknown selector mode %q", req.Selector.Mode)
	}
}

// Cursor walks query results lazily: dataset manifests and chunk
// sidecars load on demand as the caller advances. Not safe for
// concurrent use.
type Cursor struct {
	engine   *Engine
	req      Request
	versions []lineage.Version

	vi     int
	loaded bool
	hashes []string
	hi     int
	pos    string
	err    error
	done   bool
}

// Next returns the next matching item. The second return is false when
// the cursor is exhausted. Errors are sticky.
func (c *Cursor) Next(ctx context.Context) (Item, bool, error) {
	if c.err != nil {
		return Item{}, false, c.err
	}
	for {
		if c.done {
			return Item{}, false, nil
		}
		if c.vi >= len(c.versions) {
			c.done = true
			return Item{}, false, nil
		}
		v := c.versions[c.vi]
		if !c.loaded {
			if v.DatasetID == "" {
				c.advanceVersion()
				continue
			}
			ds, err := ingest.LoadDataset(ctx, c.engine.db, v.DatasetID)
			if err != nil {
				return Item{}, false, c.fail(fmt.Errorf("version %s: %w", v.ID, err))
			}
			c.hashes = sortedUnique(ds.ChunkHashes)
			c.hi = 0
			c.loaded = true
		}
		if c.hi >= len(c.hashes) {
			c.advanceVersion()
			continue
		}
		hash := c.hashes[c.hi]
		c.hi++

		token := positionToken(v.Number, hash)
		if c.req.After != "" && token <= c.req.After {
			continue
		}
		chunk, err := c.engine.chunks.Stat(ctx, c.req.PaperID, hash)
		if err != nil {
			return Item{}, false, c.fail(fmt.Errorf("version %s: %w", v.ID, err))
		}
		ok, err := c.req.Filter.matches(chunk.Bounds)
		if err != nil {
			return Item{}, false, c.fail(fmt.Errorf("chunk %s: %w", hash, err))
		}
		if !ok {
			continue
		}
		c.pos = token
		return Item{
			PaperID:   c.req.PaperID,
			VersionID: v.ID,
			Number:    v.Number,
			DatasetID: v.DatasetID,
			Chunk:     chunk,
		}, true, nil
	}
}

// Collect drains the cursor. Intended for small result sets and tests;
// large walks should page with Next and Position.
func (c *Cursor) Collect(ctx context.Context) ([]Item, error) {
	var out []Item
	for {
		item, ok, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

// Reset rewinds the cursor to the start of its request. The request's
// After token still applies.
func (c *Cursor) Reset() {
	c.vi = 0
	c.loaded = false
	c.hashes = nil
	c.hi = 0
	c.pos = ""
	c.err = nil
	c.done = false
}

// Position returns the token of the last item Next returned, for
// resuming with Request.After. Empty before the first item.
func (c *Cursor) Position() string { return c.pos }

func (c *Cursor) advanceVersion() {
	c.vi++
	c.loaded = false
	c.hashes = nil
	c.hi = 0
}

func (c *Cursor) fail(err error) error {
	c.err = err
	return err
}

// positionToken orders items lexicographically the same way the walk
// does: zero-padded version number, then chunk hash.
func positionToken(number int, hash string) string {
	return fmt.Sprintf("%012d:%s", number, hash)
}

// sortedUnique sorts hashes ascending and collapses duplicates, which a
// manifest can carry when identical byte runs repeat within one payload.
func sortedUnique(hashes []string) []string {
	out := slices.Clone(hashes)
	slices.Sort(out)
	return slices.Compact(out)
}
