// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chain implements a tamper-evident hash chain over ordered links.
//
// Each Link carries a Hash computed from its content and a PrevHash pointing
// at the link before it, so the sequence forms a chain similar to blockchain:
//
//	Link[0] → Link[1] → Link[2] → ... → Link[N]
//	  Hash₀     Hash₁     Hash₂           HashN
//	    ↑         ↑         ↑               ↑
//	    └─────────┴─────────┴───────────────┘
//	           Each PrevHash links to previous Hash
//
// If any link's content is modified after sealing, its recomputed hash no
// longer matches and every later link's PrevHash reference breaks. The
// archive appends one link per published version, which makes lineage
// tampering detectable long after the fact.
package chain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// secureHashEqual performs constant-time comparison of two hash strings.
// This prevents timing attacks where an attacker could determine how many
// leading characters of a hash are correct by measuring response times.
func secureHashEqual(a, b string) bool {
	// subtle.ConstantTimeCompare returns 1 if equal, 0 if not
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// =============================================================================
// Types
// =============================================================================

// Link is one sealed entry in a hash chain.
//
// # Fields
//
//   - Content: Canonical payload the hash commits to. Producers are
//     responsible for canonical encoding; the chain treats it as opaque.
//   - SealedAt: Seal timestamp (Unix ms), part of the hashed material.
//   - PrevHash: Hash of the previous link, empty for the first link.
//   - Hash: 64-character lowercase hex SHA-256 over the fields above.
//
// # Thread Safety
//
// Immutable after sealing. Safe for concurrent read access.
type Link struct {
	Content  string `json:"content"`
	SealedAt int64  `json:"sealed_at"`
	PrevHash string `json:"prev_hash,omitempty"`
	Hash     string `json:"hash"`
}

// VerificationResult contains detailed results from chain verification.
//
// # Fields
//
//   - Valid: Whether the entire chain is valid
//   - ChainLength: Number of links verified
//   - FinalHash: The hash of the last link in the chain
//   - InvalidIndex: Index of first invalid link (-1 if all valid)
//   - ExpectedHash: What the hash should have been (if invalid)
//   - ActualHash: What the hash actually was (if invalid)
//   - ErrorMessage: Human-readable error description
//
// # Thread Safety
//
// Immutable after creation. Safe for concurrent read access.
type VerificationResult struct {
	Valid        bool   `json:"valid"`
	ChainLength  int    `json:"chain_length"`
	FinalHash    string `json:"final_hash,omitempty"`
	InvalidIndex int    `json:"invalid_index"`
	ExpectedHash string `json:"expected_hash,omitempty"`
	ActualHash   string `json:"actual_hash,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// =============================================================================
// Interfaces
// =============================================================================

// HashComputer computes cryptographic hashes for links.
//
// # Description
//
// Abstracts hash computation for testability and algorithm flexibility.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type HashComputer interface {
	// ComputeLinkHash computes the hash for one link.
	//
	// # Inputs
	//
	//   - content: The canonical link payload
	//   - sealedAt: Seal timestamp (Unix ms)
	//   - prevHash: Hash of the previous link, empty for the first
	//
	// # Outputs
	//
	//   - string: 64-character lowercase hex hash
	ComputeLinkHash(content string, sealedAt int64, prevHash string) string

	// ComputeContentHash computes a plain hash of content, without chain
	// context. Used for standalone payload fingerprints.
	ComputeContentHash(content string) string
}

// Verifier checks the integrity of an ordered sequence of links.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Verifier interface {
	// Verify walks the chain and reports the first break, if any.
	//
	// # Inputs
	//
	//   - links: Ordered list of links, oldest first
	//
	// # Outputs
	//
	//   - *VerificationResult: Detailed verification results
	//
	// # Assumptions
	//
	//   - Links are in seal order
	//   - First link has empty PrevHash
	Verify(links []Link) *VerificationResult
}

// KeyedHashComputer computes keyed hashes (HMAC) for deployments that need
// authenticated chains, not just tamper evidence. No implementation ships
// with the archive; inject one via the constructor functions.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type KeyedHashComputer interface {
	// ComputeHMAC computes a keyed hash for content.
	//
	// # Inputs
	//
	//   - keyID: Identifier for the key to use (for key rotation)
	//   - content: Content to hash
	//
	// # Outputs
	//
	//   - string: Hex-encoded HMAC
	//   - error: Non-nil if the key is unknown or unavailable
	ComputeHMAC(keyID string, content string) (string, error)

	// VerifyHMAC verifies a keyed hash.
	VerifyHMAC(keyID string, content string, expectedHMAC string) (bool, error)
}

// =============================================================================
// Implementations
// =============================================================================

// fullVerifier verifies chains by recomputing all hashes.
//
// Complete verification that recomputes each link's hash from content and
// verifies both hash correctness and chain links. Thread-safe if the
// hashComputer is thread-safe.
type fullVerifier struct {
	hashComputer HashComputer
}

// sha256HashComputer computes hashes using SHA-256. Stateless.
type sha256HashComputer struct{}

// NewSHA256HashComputer creates the production hash computer implementation.
func NewSHA256HashComputer() HashComputer {
	return &sha256HashComputer{}
}

// NewFullVerifier creates a verifier that recomputes every link hash.
//
// # Examples
//
//	verifier := NewFullVerifier()
//	result := verifier.Verify(links)
//	if !result.Valid {
//	    log.Warn("chain broken", "error", result.ErrorMessage)
//	}
//
// # Limitations
//
//   - O(n) hash computations; expensive for very long chains
func NewFullVerifier() Verifier {
	return &fullVerifier{
		hashComputer: NewSHA256HashComputer(),
	}
}

// Seal computes and attaches the hash for the next link in a chain.
//
// # Inputs
//
//   - c: Hash computer to seal with
//   - content: Canonical link payload
//   - sealedAt: Seal timestamp (Unix ms)
//   - prevHash: Hash of the previous link, empty for the first
//
// # Outputs
//
//   - Link: Sealed link ready to append
func Seal(c HashComputer, content string, sealedAt int64, prevHash string) Link {
	return Link{
		Content:  content,
		SealedAt: sealedAt,
		PrevHash: prevHash,
		Hash:     c.ComputeLinkHash(content, sealedAt, prevHash),
	}
}

// =============================================================================
// fullVerifier Methods
// =============================================================================

// Verify fully verifies the chain by recomputing all hashes.
//
// # Description
//
// Performs complete verification by:
//  1. Checking the first link has an empty PrevHash
//  2. Verifying each link's PrevHash matches the previous link's Hash
//  3. Recomputing each link's hash from content
//  4. Verifying the computed hash matches the stored Hash
//
// # Inputs
//
//   - links: Ordered list of links, oldest first
//
// # Outputs
//
//   - *VerificationResult: Detailed verification results
//
// # Assumptions
//
//   - Links contain valid Content and SealedAt fields
//   - Links are in seal order
func (v *fullVerifier) Verify(links []Link) *VerificationResult {
	result := &VerificationResult{
		Valid:        true,
		ChainLength:  len(links),
		InvalidIndex: -1,
	}

	if len(links) == 0 {
		return result
	}

	// First link should have empty PrevHash
	if links[0].PrevHash != "" {
		result.Valid = false
		result.InvalidIndex = 0
		result.ExpectedHash = ""
		result.ActualHash = links[0].PrevHash
		result.ErrorMessage = "first link should have empty PrevHash"
		return result
	}

	// Walk the chain verifying both hash computation and chain links
	prevHash := ""
	for i, link := range links {
		// Verify PrevHash links correctly (constant-time comparison to prevent timing attacks)
		if !secureHashEqual(link.PrevHash, prevHash) {
			result.Valid = false
			result.InvalidIndex = i
			result.ExpectedHash = prevHash
			result.ActualHash = link.PrevHash
			result.ErrorMessage = fmt.Sprintf(
				"chain broken at link %d: expected PrevHash %s, got %s",
				i, truncateHash(prevHash), truncateHash(link.PrevHash),
			)
			return result
		}

		// Recompute hash from content
		computedHash := v.hashComputer.ComputeLinkHash(
			link.Content, link.SealedAt, link.PrevHash,
		)
		// Constant-time comparison to prevent timing attacks
		if !secureHashEqual(computedHash, link.Hash) {
			result.Valid = false
			result.InvalidIndex = i
			result.ExpectedHash = computedHash
			result.ActualHash = link.Hash
			result.ErrorMessage = fmt.Sprintf(
				"hash mismatch at link %d: computed %s, stored %s (content may have been modified)",
				i, truncateHash(computedHash), truncateHash(link.Hash),
			)
			return result
		}

		prevHash = link.Hash
	}

	result.FinalHash = links[len(links)-1].Hash
	return result
}

// =============================================================================
// sha256HashComputer Methods
// =============================================================================

// ComputeLinkHash computes the SHA-256 hash for a link using the formula
// SHA256(Content || SealedAt || PrevHash).
func (c *sha256HashComputer) ComputeLinkHash(content string, sealedAt int64, prevHash string) string {
	// Use null byte delimiter to prevent collision attacks where different inputs
	// produce the same concatenated string (e.g., "abc"+123 vs "abc1"+23)
	data := fmt.Sprintf("%s\x00%d\x00%s", content, sealedAt, prevHash)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeContentHash computes the SHA-256 hash of content alone.
func (c *sha256HashComputer) ComputeContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// =============================================================================
// Helper Functions
// =============================================================================

// truncateHash returns a truncated hash for display in error messages.
// Shows first 8 and last 4 characters with "..." in between; full 64-char
// hashes are unwieldy in error text. Returns the original string if it is
// 16 characters or fewer.
func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-4:]
}
