// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

// CodecJSONLv1 tags the payload format: one JSON sample per line.
const CodecJSONLv1 = "jsonl.v1"

// Sample is one decoded payload record: an opaque value anchored at one
// point in time and space. Value round-trips as base64 in the wire form.
type Sample struct {
	T     coordinate.Temporal `json:"t"`
	Pos   coordinate.Spatial  `json:"pos"`
	Value []byte              `json:"value,omitempty"`
}

// line pairs a decoded sample with the raw bytes it came from. Raw keeps
// the trailing newline so chunk plaintexts are exact byte runs of the
// payload.
type line struct {
	num    int
	raw    []byte
	sample Sample
}

// decodePayload splits payload into lines and decodes each sample. Blank
// lines are skipped. All samples must share one calendar and one spatial
// frame. Errors name the offending 1-based line.
func decodePayload(payload []byte, maxLineBytes int) ([]line, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	var (
		out      []line
		num      int
		calendar coordinate.Calendar
		frame    coordinate.Frame
	)
	for start := 0; start < len(payload); {
		var raw []byte
		if end := bytes.IndexByte(payload[start:], '\n'); end < 0 {
			raw = payload[start:]
			start = len(payload)
		} else {
			raw = payload[start : start+end+1]
			start += end + 1
		}
		num++
		content := bytes.TrimRight(raw, "\r\n")
		if len(bytes.TrimSpace(content)) == 0 {
			continue
		}
		if maxLineBytes > 0 && len(content) > maxLineBytes {
			return nil, fmt.Errorf("line %d: %w (%d bytes, limit %d)", num, ErrLineTooLong, len(content), maxLineBytes)
		}
		var s Sample
		if err := json.Unmarshal(content, &s); err != nil {
			return nil, errs.Validationf("line %d: malformed sample: %v", num, err)
		}
		if err := s.T.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", num, err)
		}
		if err := s.Pos.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", num, err)
		}
		if len(out) == 0 {
			calendar = s.T.Calendar
			frame = s.Pos.Frame
		} else {
			if s.T.Calendar != calendar {
				return nil, fmt.Errorf("line %d: %w: %q after %q", num, ErrMixedCalendar, s.T.Calendar, calendar)
			}
			if s.Pos.Frame != frame {
				return nil, fmt.Errorf("line %d: %w: %q after %q", num, ErrMixedFrame, s.Pos.Frame, frame)
			}
		}
		out = append(out, line{num: num, raw: raw, sample: s})
	}
	if len(out) == 0 {
		return nil, ErrEmptyPayload
	}
	return out, nil
}
