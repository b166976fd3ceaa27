package service

import (
	"context"
	"errors"

	"casegate/internal/intake/fingerprint"
	"casegate/internal/intake/models"
	dErrors "casegate/pkg/domain-errors"
	"casegate/pkg/platform/sentinel"
)

// RecordFinder looks a record up by fingerprint.
type RecordFinder interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.Record, error)
}

// DuplicateChecker answers whether a fingerprint is already committed.
type DuplicateChecker struct {
	records RecordFinder
}

func NewDuplicateChecker(records RecordFinder) *DuplicateChecker {
	return &DuplicateChecker{records: records}
}

// Check returns the committed record and true, or nil and false when no record
// carries fp. Malformed fingerprints never reach the store. Store failures
// other than not-found are returned.
func (c *DuplicateChecker) Check(ctx context.Context, fp string) (*models.Record, bool, error) {
	if !fingerprint.Valid(fp) {
		return nil, false, dErrors.New(dErrors.CodeInvariantViolation, "malformed fingerprint")
	}
	record, err := c.records.FindByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}
