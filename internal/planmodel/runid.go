package planmodel

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewRunID mints a report/runs/<runId> identifier: YYYYMMDD-HHMMSS-<6hex>.
// Unlike the plan id, the suffix is random rather than content-derived since
// a run id only needs to be unique among a plan's archived runs, not
// reproducible from inputs.
func NewRunID(now time.Time) (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate run id suffix: %w", err)
	}
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(b[:])), nil
}
