package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// NewSubmissionID returns a fresh identifier for a queued submission.
// Identifiers are decoupled from the capture timestamp so that two forms
// completed within the same millisecond never collide.
func NewSubmissionID() string {
	return GenerateUUIDWithSuffix("sub")
}

// legacySubmissionID derives a stable identifier for records written before
// identifiers were persisted. The timestamp was the only key those records had.
func legacySubmissionID(timestamp int64, seq int) string {
	if seq == 0 {
		return fmt.Sprintf("sub_legacy_%d", timestamp)
	}
	return fmt.Sprintf("sub_legacy_%d_%d", timestamp, seq)
}
