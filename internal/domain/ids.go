package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ClaimID derives the deterministic claim identifier for a (policy, outage)
// pair. Repeated threshold evaluations for the same pair produce the same ID,
// so conditional inserts collapse duplicate deliveries into one claim.
func ClaimID(policyID, outageEventID string) string {
	return "CLM-" + shortHash(policyID+"|"+outageEventID)
}

// PayoutID derives the deterministic payout identifier for a claim. One claim
// maps to one payout ID regardless of how many times the approved event is
// delivered.
func PayoutID(claimID string) string {
	return "PAY-" + shortHash(claimID)
}

// OutageEventID builds a feed-style outage identifier from the utility name
// and outage start time. Used by the seed tool; real events carry IDs minted
// by the feed.
func OutageEventID(utilityName string, start time.Time) string {
	code := strings.ToUpper(strings.ReplaceAll(utilityName, " ", ""))
	if len(code) > 10 {
		code = code[:10]
	}
	return fmt.Sprintf("OUT-%s-%s", code, start.UTC().Format("20060102150405"))
}

// shortHash returns the first 16 hex characters of the SHA-256 of input.
// 64 bits of hash is ample for uniqueness at claims-pipeline scale while
// keeping IDs readable in logs.
func shortHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:8])
}
