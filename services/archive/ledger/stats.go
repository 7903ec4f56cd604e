// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

// Kind is a countable access event.
type Kind string

const (
	// KindView counts metadata or in-place data views.
	KindView Kind = "view"

	// KindDownload counts bulk dataset retrievals.
	KindDownload Kind = "download"
)

// Valid reports whether k is a known stat kind.
func (k Kind) Valid() bool {
	switch k {
	case KindView, KindDownload:
		return true
	}
	return false
}

// dayLayout is the civil UTC day format used in idempotence keys.
const dayLayout = "2006-01-02"

// statRetryAttempts bounds the internal retries of the test-and-increment
// transaction when concurrent duplicates collide.
const statRetryAttempts = 5

// Counter is the aggregate for one (version, kind) pair. FirstDay and
// LastDay are the civil UTC days of the earliest and latest counted
// events.
type Counter struct {
	VersionID string `json:"version_id"`
	Kind      Kind   `json:"kind"`
	Count     int64  `json:"count"`
	FirstDay  string `json:"first_day,omitempty"`
	LastDay   string `json:"last_day,omitempty"`
}

// Summary bundles a version's counters for stats reads.
type Summary struct {
	VersionID string  `json:"version_id"`
	Views     Counter `json:"views"`
	Downloads Counter `json:"downloads"`
}

// Ledger persists idempotent access statistics.
//
// Each counted event leaves a marker keyed by
// (version, kind, day, viewer hash); the marker check and the counter
// bump commit in one transaction, so concurrent duplicates from the same
// viewer resolve to exactly one increment.
type Ledger struct {
	db       *storage.DB
	log      *logging.Logger
	exporter Exporter
}

// NewLedger opens a statistics ledger over db. A nil exporter disables
// export; a nil log falls back to the process default.
func NewLedger(db *storage.DB, exporter Exporter, log *logging.Logger) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if exporter == nil {
		exporter = NopExporter{}
	}
	if log == nil {
		log = logging.Default()
	}
	return &Ledger{db: db, log: log, exporter: exporter}, nil
}

// Record counts one access event exactly once per
// (version, viewer, day, kind). Repeats within the same day are no-ops
// returning the current counter. The returned flag reports whether this
// call performed the increment.
//
// # Inputs
//   - version: the accessed version; must be Published or Superseded
//   - viewer: the identity the event is attributed to
//   - kind: view or download
//   - day: civil UTC day of the event, formatted YYYY-MM-DD
func (l *Ledger) Record(ctx context.Context, version lineage.Version, viewer Viewer, kind Kind, day string) (Counter, bool, error) {
	if !kind.Valid() {
		return Counter{}, false, errs.Validationf("unknown stat kind %q", kind)
	}
	if viewer.ID == "" {
		return Counter{}, false, errs.Validationf("viewer id must not be empty")
	}
	if _, err := time.Parse(dayLayout, day); err != nil {
		return Counter{}, false, errs.Validationf("day %q is not a YYYY-MM-DD civil day", day)
	}
	if version.ID == "" {
		return Counter{}, false, errs.Validationf("version id must not be empty")
	}
	if !version.Readable() {
		return Counter{}, false, errs.Validationf("version %s is %s; stats cover published versions only", version.ID, version.State)
	}

	marker := markerKey(version.ID, kind, day, viewerHash(viewer.ID))
	var (
		out     Counter
		counted bool
	)
	err := l.db.WithTxnRetry(ctx, statRetryAttempts, func(txn *badger.Txn) error {
		counted = false
		out = Counter{VersionID: version.ID, Kind: kind}
		switch err := storage.GetJSON(txn, counterKey(version.ID, kind), &out); {
		case err == nil, errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		switch _, err := txn.Get(marker); {
		case err == nil:
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		counted = true
		out.Count++
		if out.FirstDay == "" || day < out.FirstDay {
			out.FirstDay = day
		}
		if day > out.LastDay {
			out.LastDay = day
		}
		if err := txn.Set(marker, nil); err != nil {
			return err
		}
		return storage.PutJSON(txn, counterKey(version.ID, kind), &out)
	})
	if err != nil {
		if storage.IsConflict(err) {
			return Counter{}, false, errs.Conflictf("stat update for version %s kept conflicting; retry", version.ID)
		}
		return Counter{}, false, err
	}
	if counted {
		l.exporter.Export(StatEvent{
			PaperID:   version.PaperID,
			VersionID: version.ID,
			Kind:      kind,
			Day:       day,
			Count:     out.Count,
		})
	}
	return out, counted, nil
}

// Stats returns the view and download counters for a version. Versions
// with no recorded activity yield zero counters.
func (l *Ledger) Stats(ctx context.Context, versionID string) (Summary, error) {
	if versionID == "" {
		return Summary{}, errs.Validationf("version id must not be empty")
	}
	out := Summary{
		VersionID: versionID,
		Views:     Counter{VersionID: versionID, Kind: KindView},
		Downloads: Counter{VersionID: versionID, Kind: KindDownload},
	}
	err := l.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		switch err := storage.GetJSON(txn, counterKey(versionID, KindView), &out.Views); {
		case err == nil, errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		switch err := storage.GetJSON(txn, counterKey(versionID, KindDownload), &out.Downloads); {
		case err == nil, errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

// Close releases the exporter.
func (l *Ledger) Close() {
	l.exporter.Close()
}

func counterKey(versionID string, kind Kind) []byte {
	return []byte(fmt.Sprintf("sc:%s:%s", versionID, kind))
}

func markerKey(versionID string, kind Kind, day, viewerHash string) []byte {
	return []byte(fmt.Sprintf("sm:%s:%s:%s:%s", versionID, kind, day, viewerHash))
}

// viewerHash keeps raw viewer identities out of the keyspace. 128 bits
// of the digest is plenty for a dedup key.
func viewerHash(viewerID string) string {
	sum := sha256.Sum256([]byte(viewerID))
	return hex.EncodeToString(sum[:16])
}
