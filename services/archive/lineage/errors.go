// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lineage

import (
	"fmt"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

var (
	// ErrNotDraft marks a mutation attempted on a version past the Draft
	// state. Published versions are frozen, policy included.
	ErrNotDraft = fmt.Errorf("%w: version is not a draft", errs.ErrValidation)

	// ErrHeadMoved marks a publish that lost the head race. The caller
	// rebases the draft onto the new head and retries.
	ErrHeadMoved = fmt.Errorf("%w: paper head moved", errs.ErrConflict)

	// ErrChainBroken marks a certification chain that failed
	// re-verification.
	ErrChainBroken = fmt.Errorf("%w: certification chain broken", errs.ErrIntegrity)
)
