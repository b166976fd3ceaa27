package models

import (
	"fmt"
	"time"
	"unicode/utf8"

	dErrors "casegate/pkg/domain-errors"
)

const (
	// DateLayout is the only accepted spelling of a date of birth.
	DateLayout = "2006-01-02"

	maxNameLength = 80
	originLength  = 3
)

// Validate checks the invariants a submission must hold before it enters the
// pipeline.
func (s *Submission) Validate() error {
	if err := validateName("given name", s.GivenName); err != nil {
		return err
	}
	if err := validateName("family name", s.FamilyName); err != nil {
		return err
	}
	dob, err := time.Parse(DateLayout, s.DateOfBirthText)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "date of birth must be YYYY-MM-DD")
	}
	if !s.DateOfBirth.IsZero() && !dob.Equal(s.DateOfBirth) {
		return dErrors.New(dErrors.CodeInvariantViolation, "date of birth does not match its text")
	}
	if utf8.RuneCountInString(s.OriginCode) != originLength {
		return dErrors.New(dErrors.CodeValidation, "country of origin must be three characters")
	}
	if s.CrisisID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "crisis id must be positive")
	}
	if s.Amount < 0 || s.Amount > MaxAmount {
		return dErrors.New(dErrors.CodeValidation, "amount out of range")
	}
	return nil
}

func validateName(field, value string) error {
	if value == "" {
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds %d characters", field, maxNameLength))
	}
	return nil
}
