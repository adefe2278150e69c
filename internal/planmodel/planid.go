package planmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// maxProposalDigestBytes bounds how much of the proposal body feeds the
// plan-id digest, per the 80kB cap in the plan-id rule.
const maxProposalDigestBytes = 80 * 1024

// NewPlanID computes the deterministic plan identifier
// YYYYMMDD-HHMMSS-<12hex> where the hex suffix is a truncated SHA-256 of
// (discovery || modelKey || proposal[:80kB]), and the timestamp prefix is the
// supplied instant truncated to the second. Identical inputs at the same UTC
// second always produce the same id.
func NewPlanID(now time.Time, discovery, modelKey string, proposal []byte) string {
	if len(proposal) > maxProposalDigestBytes {
		proposal = proposal[:maxProposalDigestBytes]
	}
	h := sha256.New()
	h.Write([]byte(discovery))
	h.Write([]byte{0})
	h.Write([]byte(modelKey))
	h.Write([]byte{0})
	h.Write(proposal)
	sum := h.Sum(nil)
	suffix := hex.EncodeToString(sum)[:12]
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), suffix)
}
