package models

import (
	"strings"

	dErrors "casegate/pkg/domain-errors"
	platformstrings "casegate/pkg/platform/strings"
)

// Category is a requested-assistance code as sent by intake clients.
type Category string

const (
	CategoryFood       Category = "FO"
	CategoryHousing    Category = "TH"
	CategoryEquipment  Category = "CE"
	CategoryWater      Category = "WA"
	CategorySanitation Category = "SA"
	CategoryBuilding   Category = "RE"
)

// AllCategories lists every code in storage column order.
var AllCategories = []Category{
	CategoryFood,
	CategoryHousing,
	CategoryEquipment,
	CategoryWater,
	CategorySanitation,
	CategoryBuilding,
}

// Categories holds the six requested-assistance flags of a record.
type Categories struct {
	Food       bool
	Housing    bool
	Equipment  bool
	Water      bool
	Sanitation bool
	Building   bool
}

// ParseCategories maps a comma-separated code list onto flags. Repeated codes
// collapse; unknown codes are rejected.
func ParseCategories(raw string) (Categories, error) {
	var c Categories
	for _, code := range platformstrings.DedupeAndTrim(strings.Split(raw, ",")) {
		if err := c.set(Category(strings.ToUpper(code))); err != nil {
			return Categories{}, err
		}
	}
	return c, nil
}

func (c *Categories) set(code Category) error {
	switch code {
	case CategoryFood:
		c.Food = true
	case CategoryHousing:
		c.Housing = true
	case CategoryEquipment:
		c.Equipment = true
	case CategoryWater:
		c.Water = true
	case CategorySanitation:
		c.Sanitation = true
	case CategoryBuilding:
		c.Building = true
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown assistance category "+string(code))
	}
	return nil
}

// Count is the number of requested categories.
func (c Categories) Count() int {
	n := 0
	for _, set := range []bool{c.Food, c.Housing, c.Equipment, c.Water, c.Sanitation, c.Building} {
		if set {
			n++
		}
	}
	return n
}

// Codes returns the set flags as codes, in AllCategories order.
func (c Categories) Codes() []Category {
	flags := []bool{c.Food, c.Housing, c.Equipment, c.Water, c.Sanitation, c.Building}
	codes := make([]Category, 0, len(flags))
	for i, set := range flags {
		if set {
			codes = append(codes, AllCategories[i])
		}
	}
	return codes
}
