// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vault

import (
	"errors"
	"fmt"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

var (
	// ErrChunkNotFound is returned when no chunk with the requested hash
	// exists under the paper.
	ErrChunkNotFound = fmt.Errorf("%w: chunk", errs.ErrNotFound)

	// ErrChunkCorrupt is returned when a stored chunk fails GCM
	// authentication or the post-decrypt hash check. The plaintext is
	// never returned alongside this error.
	ErrChunkCorrupt = fmt.Errorf("%w: chunk corrupt", errs.ErrIntegrity)

	// ErrEmptyPlaintext is returned by Seal for zero-length payloads.
	ErrEmptyPlaintext = fmt.Errorf("%w: empty chunk plaintext", errs.ErrValidation)

	// ErrKeyVersionUnknown is returned when a sidecar references a master
	// key version missing from the paper's key record.
	ErrKeyVersionUnknown = fmt.Errorf("%w: unknown master key version", errs.ErrIntegrity)

	// ErrKeyringInsecure is returned at startup when the mlock limit is
	// too low and the insecure override is not set. The keyring fails
	// closed rather than holding key material in swappable memory.
	ErrKeyringInsecure = errors.New("mlock limit insufficient for secure keyring")

	// ErrKeyringClosed is returned after the keyring has been destroyed.
	ErrKeyringClosed = errors.New("keyring closed")
)
