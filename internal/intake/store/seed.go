package store

import (
	"context"
	"fmt"
	"strings"

	"casegate/internal/intake/models"
	dErrors "casegate/pkg/domain-errors"
)

// DefaultCrises is seeded when no crisis list is configured.
var DefaultCrises = []models.Crisis{
	{Code: "SYR", Title: "Syria"},
	{Code: "YEM", Title: "Yemen"},
	{Code: "SSD", Title: "South Sudan"},
	{Code: "AFG", Title: "Afghanistan"},
	{Code: "SOM", Title: "Somalia"},
	{Code: "UKR", Title: "Ukraine"},
}

// CrisisSeeder is the subset of a store needed to seed crises.
type CrisisSeeder interface {
	ListCrises(ctx context.Context) ([]models.Crisis, error)
	CreateCrisis(ctx context.Context, crisis *models.Crisis) error
}

// SeedCrises creates crises when the store has none yet and returns how many
// were created. Existing crises are left untouched.
func SeedCrises(ctx context.Context, s CrisisSeeder, crises []models.Crisis) (int, error) {
	existing, err := s.ListCrises(ctx)
	if err != nil {
		return 0, fmt.Errorf("list crises: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i := range crises {
		crisis := crises[i]
		if err := s.CreateCrisis(ctx, &crisis); err != nil {
			return i, fmt.Errorf("seed crisis %s: %w", crisis.Code, err)
		}
	}
	return len(crises), nil
}

// ParseCrisisList reads a "CODE:Title;CODE:Title" list. An empty string yields
// DefaultCrises.
func ParseCrisisList(raw string) ([]models.Crisis, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]models.Crisis(nil), DefaultCrises...), nil
	}
	var crises []models.Crisis
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, title, ok := strings.Cut(entry, ":")
		code = strings.ToUpper(strings.TrimSpace(code))
		title = strings.TrimSpace(title)
		if !ok || len(code) != 3 || title == "" {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid crisis entry %q", entry))
		}
		if len(title) > 80 {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("crisis title too long: %q", title))
		}
		crises = append(crises, models.Crisis{Code: code, Title: title})
	}
	if len(crises) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "crisis list is empty")
	}
	return crises, nil
}
