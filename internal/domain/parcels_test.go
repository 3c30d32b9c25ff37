package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateParcelBatch tests batch-level QR validation
func TestValidateParcelBatch(t *testing.T) {
	tests := []struct {
		name    string
		batch   []string
		wantErr error
	}{
		{
			name:    "valid batch",
			batch:   []string{"QR-001", "QR-002", "QR-003"},
			wantErr: nil,
		},
		{
			name:    "empty batch is valid",
			batch:   nil,
			wantErr: nil,
		},
		{
			name:    "empty QR at position",
			batch:   []string{"QR-001", "", "QR-003"},
			wantErr: &EmptyQRError{Position: 1},
		},
		{
			name:    "duplicate QR",
			batch:   []string{"QR-001", "QR-002", "QR-001"},
			wantErr: &DuplicateQRError{QRCode: "QR-001"},
		},
		{
			name:    "empty reported before duplicate",
			batch:   []string{"QR-001", "", "QR-001"},
			wantErr: &EmptyQRError{Position: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParcelBatch(tt.batch)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantErr, err)
			}
		})
	}
}

// TestReconcileParcels tests reconciliation against the loaded set
func TestReconcileParcels(t *testing.T) {
	loaded := []string{"QR-001", "QR-002", "QR-003"}

	t.Run("all requested parcels loaded", func(t *testing.T) {
		assert.NoError(t, ReconcileParcels([]string{"QR-003", "QR-001"}, loaded))
	})

	t.Run("subset of loaded is fine", func(t *testing.T) {
		assert.NoError(t, ReconcileParcels([]string{"QR-002"}, loaded))
	})

	t.Run("unmatched parcels preserve request order", func(t *testing.T) {
		err := ReconcileParcels([]string{"QR-009", "QR-001", "QR-007"}, loaded)
		require.Error(t, err)

		var unmatchedErr *UnmatchedParcelsError
		require.ErrorAs(t, err, &unmatchedErr)
		assert.Equal(t, []string{"QR-009", "QR-007"}, unmatchedErr.Unmatched)
	})

	t.Run("nothing loaded means everything unmatched", func(t *testing.T) {
		err := ReconcileParcels([]string{"QR-001", "QR-002"}, nil)
		require.Error(t, err)

		var unmatchedErr *UnmatchedParcelsError
		require.ErrorAs(t, err, &unmatchedErr)
		assert.Equal(t, []string{"QR-001", "QR-002"}, unmatchedErr.Unmatched)
	})
}
