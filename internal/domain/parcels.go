package domain

import (
	"fmt"
	"strings"
)

// Parcel validation errors.
type DuplicateQRError struct {
	QRCode string
}

func (e *DuplicateQRError) Error() string {
	return fmt.Sprintf("duplicate parcel QR code %q in batch", e.QRCode)
}

type EmptyQRError struct {
	Position int
}

func (e *EmptyQRError) Error() string {
	return fmt.Sprintf("empty parcel QR code at position %d", e.Position)
}

// UnmatchedParcelsError carries the QR codes requested for unload that were
// never recorded as loaded, in request order.
type UnmatchedParcelsError struct {
	Unmatched []string
}

func (e *UnmatchedParcelsError) Error() string {
	return fmt.Sprintf("parcels not found in loaded set: %s", strings.Join(e.Unmatched, ", "))
}

// ValidateParcelBatch checks a submitted batch of QR codes for empty values
// and duplicates. QR codes are compared case-sensitively as submitted.
func ValidateParcelBatch(batch []string) error {
	seen := make(map[string]struct{}, len(batch))

	for i, qr := range batch {
		if qr == "" {
			return &EmptyQRError{Position: i}
		}
		if _, dup := seen[qr]; dup {
			return &DuplicateQRError{QRCode: qr}
		}
		seen[qr] = struct{}{}
	}

	return nil
}

// ReconcileParcels verifies that every requested QR code exists in the
// previously loaded set. The unmatched list preserves request order.
func ReconcileParcels(requested []string, loaded []string) error {
	loadedSet := make(map[string]struct{}, len(loaded))
	for _, qr := range loaded {
		loadedSet[qr] = struct{}{}
	}

	var unmatched []string
	for _, qr := range requested {
		if _, ok := loadedSet[qr]; !ok {
			unmatched = append(unmatched, qr)
		}
	}

	if len(unmatched) > 0 {
		return &UnmatchedParcelsError{Unmatched: unmatched}
	}

	return nil
}
