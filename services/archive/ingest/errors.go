// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"fmt"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

var (
	// ErrEmptyPayload is returned for payloads with no decodable samples.
	ErrEmptyPayload = fmt.Errorf("%w: payload carries no samples", errs.ErrValidation)

	// ErrLineTooLong is returned when a payload line exceeds the
	// configured cap. The wrapped message names the 1-based line.
	ErrLineTooLong = fmt.Errorf("%w: payload line too long", errs.ErrValidation)

	// ErrMixedCalendar is returned when samples in one payload carry
	// different calendar tags.
	ErrMixedCalendar = fmt.Errorf("%w: payload mixes calendars", errs.ErrValidation)

	// ErrMixedFrame is returned when samples in one payload carry
	// different spatial reference frames.
	ErrMixedFrame = fmt.Errorf("%w: payload mixes spatial frames", errs.ErrValidation)

	// ErrBoundsExceeded is returned when a chunk's computed extent
	// escapes the declared dataset bounds. The wrapped message names the
	// chunk index and hash.
	ErrBoundsExceeded = fmt.Errorf("%w: chunk bounds exceed the declared dataset bounds", errs.ErrValidation)

	// ErrDatasetNotFound is returned for unknown dataset ids.
	ErrDatasetNotFound = fmt.Errorf("%w: dataset", errs.ErrNotFound)
)
