package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "remedia/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseObservationID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseObservationID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseObservationID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseObservationID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, ObservationID(valid), id)
	})
}

func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE observations;--", true},
		{"null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"oversized input", strings.Repeat("a", 1000), true},
		{"whitespace only", "   ", true},
		{"uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"lowercase valid UUID", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAuditID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Typed IDs must stay distinct types; if they become aliases these
// conversions would stop being necessary and cross-assignment would compile.
func TestTypeDistinction(t *testing.T) {
	raw := uuid.New()
	obsID := ObservationID(raw)
	auditID := AuditID(raw)

	assert.Equal(t, uuid.UUID(obsID), uuid.UUID(auditID))
	assert.Equal(t, obsID.String(), auditID.String())
	assert.False(t, obsID.IsNil())
	assert.True(t, ObservationID{}.IsNil())
}
