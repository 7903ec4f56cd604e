// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coordinate

import (
	"fmt"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

// Package sentinels. All are validation errors: callers can match the
// specific condition or the taxonomy kind (errs.ErrValidation).
var (
	ErrUnknownCalendar  = fmt.Errorf("%w: unknown calendar tag", errs.ErrValidation)
	ErrOutOfEpochRange  = fmt.Errorf("%w: day offset outside supported epoch range", errs.ErrValidation)
	ErrInvalidCivil     = fmt.Errorf("%w: invalid civil date", errs.ErrValidation)
	ErrCalendarMismatch = fmt.Errorf("%w: calendar tags differ", errs.ErrValidation)
	ErrInvertedRange    = fmt.Errorf("%w: range start after end", errs.ErrValidation)
	ErrNonFinite        = fmt.Errorf("%w: spatial component is not finite", errs.ErrValidation)
	ErrBadFrame         = fmt.Errorf("%w: malformed reference frame", errs.ErrValidation)
	ErrFrameMismatch    = fmt.Errorf("%w: reference frames differ", errs.ErrValidation)
	ErrInvertedBox      = fmt.Errorf("%w: box min exceeds max", errs.ErrValidation)
)
