package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("sub")
	assert.True(t, strings.HasPrefix(id, "sub_"))
	assert.Len(t, id, len("sub_")+36)
}

func TestNewSubmissionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSubmissionID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestLegacySubmissionID(t *testing.T) {
	assert.Equal(t, "sub_legacy_1000", legacySubmissionID(1000, 0))
	assert.Equal(t, "sub_legacy_1000_2", legacySubmissionID(1000, 2))
}
