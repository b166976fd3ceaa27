package models

import (
	"strings"
	"time"
)

// FingerprintLength is the storage width of a record fingerprint.
const FingerprintLength = 32

// SentinelFingerprint is reported in place of a fingerprint when a submission
// is rejected before a record could exist.
var SentinelFingerprint = strings.Repeat("-", FingerprintLength)

// Crisis is a pre-seeded crisis that records are filed against.
type Crisis struct {
	ID    int64
	Title string
	Code  string
}

// Record is a committed case. It is created once and never mutated.
type Record struct {
	ID          int64
	GivenName   string
	FamilyName  string
	DateOfBirth time.Time
	OriginCode  string
	CrisisID    int64
	Categories  Categories
	Amount      Amount
	Fingerprint string
	CreatedAt   time.Time
}

// Features returns the classifier feature vector for the record.
func (r *Record) Features() FeatureVector {
	return FeatureVector{Amount: r.Amount.Float64(), Categories: float64(r.Categories.Count())}
}

// FeatureVector is the two-dimensional input of the anomaly classifier.
type FeatureVector struct {
	Amount     float64
	Categories float64
}

// Slice returns the vector in classifier column order.
func (f FeatureVector) Slice() []float64 {
	return []float64{f.Amount, f.Categories}
}

// Submission is a validated inbound intake payload.
//
// DateOfBirthText keeps the submitted spelling of the date because the
// fingerprint is derived from it verbatim.
type Submission struct {
	GivenName       string
	FamilyName      string
	DateOfBirthText string
	DateOfBirth     time.Time
	OriginCode      string
	CrisisID        int64
	Categories      Categories
	Amount          Amount
}

// Features returns the classifier feature vector for the submission.
func (s *Submission) Features() FeatureVector {
	return FeatureVector{Amount: s.Amount.Float64(), Categories: float64(s.Categories.Count())}
}

// Tag is the outcome marker reported back to the submitter.
type Tag string

const (
	TagNew             Tag = "T"
	TagDuplicate       Tag = "F"
	TagRejectedOutlier Tag = "P"
)

// State tracks a submission through the intake pipeline.
type State string

const (
	StateReceived          State = "RECEIVED"
	StateFingerprinted     State = "FINGERPRINTED"
	StateDuplicate         State = "DUPLICATE"
	StateClassifying       State = "CLASSIFYING"
	StateRejectedDuplicate State = "REJECTED_DUPLICATE"
	StateRejectedOutlier   State = "REJECTED_OUTLIER"
	StateCommitted         State = "COMMITTED"
)

// IsTerminal reports whether no further transition can follow s.
func (s State) IsTerminal() bool {
	switch s {
	case StateRejectedDuplicate, StateRejectedOutlier, StateCommitted:
		return true
	default:
		return false
	}
}

// Outcome is the terminal result of one submission.
type Outcome struct {
	Fingerprint string
	Tag         Tag
	State       State
	// RecordID is set only for committed submissions.
	RecordID int64
}
