package handler

import (
	"strconv"
	"strings"
	"time"

	"casegate/internal/intake/models"
	dErrors "casegate/pkg/domain-errors"
)

// SubmitRequest is the payload of an inbound "event" frame. Field names match
// the intake form keys.
type SubmitRequest struct {
	GivenName   string `json:"FN"`
	FamilyName  string `json:"LN"`
	DateOfBirth string `json:"DOB"`
	Origin      string `json:"COO"`
	CrisisID    string `json:"CCC"`
	Categories  string `json:"RAT"`
	Amount      string `json:"AMO"`
}

// ToSubmission parses the textual fields. Identity fields are kept verbatim
// since the fingerprint is computed over the submitted text.
func (r *SubmitRequest) ToSubmission() (models.Submission, error) {
	if r == nil {
		return models.Submission{}, dErrors.New(dErrors.CodeBadRequest, "payload is required")
	}

	for _, f := range []struct{ key, value string }{
		{"FN", r.GivenName},
		{"LN", r.FamilyName},
		{"DOB", r.DateOfBirth},
		{"COO", r.Origin},
		{"CCC", r.CrisisID},
		{"RAT", r.Categories},
		{"AMO", r.Amount},
	} {
		if strings.TrimSpace(f.value) == "" {
			return models.Submission{}, dErrors.New(dErrors.CodeValidation, f.key+" is required")
		}
	}

	dob, err := time.Parse(models.DateLayout, r.DateOfBirth)
	if err != nil {
		return models.Submission{}, dErrors.New(dErrors.CodeValidation, "DOB must be a YYYY-MM-DD date")
	}

	crisisID, err := strconv.ParseInt(strings.TrimSpace(r.CrisisID), 10, 64)
	if err != nil || crisisID <= 0 {
		return models.Submission{}, dErrors.New(dErrors.CodeValidation, "CCC must be a positive crisis id")
	}

	categories, err := models.ParseCategories(r.Categories)
	if err != nil {
		return models.Submission{}, err
	}

	amount, err := models.ParseAmount(r.Amount)
	if err != nil {
		return models.Submission{}, err
	}

	return models.Submission{
		GivenName:       r.GivenName,
		FamilyName:      r.FamilyName,
		DateOfBirthText: r.DateOfBirth,
		DateOfBirth:     dob,
		OriginCode:      r.Origin,
		CrisisID:        crisisID,
		Categories:      categories,
		Amount:          amount,
	}, nil
}
