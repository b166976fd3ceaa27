package models

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "casegate/pkg/domain-errors"
)

// MaxAmount mirrors the NUMERIC(10,2) storage column.
const MaxAmount Amount = 99_999_999_99

// Amount is a non-negative monetary value in hundredths of a currency unit.
type Amount int64

// NewAmount builds an Amount from whole units and cents.
func NewAmount(units, cents int64) Amount {
	return Amount(units*100 + cents)
}

// ParseAmount parses a decimal string with at most two fractional digits.
func ParseAmount(raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	if strings.HasPrefix(raw, "-") {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must not be negative")
	}
	raw = strings.TrimPrefix(raw, "+")

	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must be a decimal number")
	}
	if len(frac) > 2 {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must have at most two decimal places")
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasFrac && frac != "" && !isDigits(frac)) {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must be a decimal number")
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > int64(MaxAmount/100) {
		return 0, dErrors.New(dErrors.CodeValidation, "amount is out of range")
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)

	a := Amount(units*100 + cents)
	if a > MaxAmount {
		return 0, dErrors.New(dErrors.CodeValidation, "amount is out of range")
	}
	return a, nil
}

// MustParseAmount is ParseAmount for literals; it panics on error.
func MustParseAmount(raw string) Amount {
	a, err := ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) String() string {
	return fmt.Sprintf("%d.%02d", int64(a)/100, int64(a)%100)
}

// Float64 returns the amount in currency units.
func (a Amount) Float64() float64 {
	return float64(a) / 100
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
