package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidGroupName   = errors.New("invalid group name")
	ErrAmountTooLarge     = errors.New("amount exceeds maximum allowed")
	ErrExternalRefTooLong = errors.New("external reference exceeds limit")
)

// Validation constants
const (
	MaxGroupNameLength   = 128
	MinGroupNameLength   = 1
	MaxExternalRefLength = 512
	MaxAmount            = "1000000000000000000" // 1e12 whole units at six decimals
	MaxParticipants      = 256
)

var maxAmount = decimal.RequireFromString(MaxAmount)

// ValidateGroupName validates a group display name.
func ValidateGroupName(name string) error {
	name = strings.TrimSpace(name)

	if len(name) < MinGroupNameLength {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidGroupName)
	}

	if len(name) > MaxGroupNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidGroupName, MaxGroupNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control characters", ErrInvalidGroupName)
		}
	}

	return nil
}

// ValidateAmount validates a positive whole amount in the smallest unit.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrAmountZero
	}

	if !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxAmount)
	}

	return nil
}

// ValidateExternalRef validates the off-chain content reference of an expense.
func ValidateExternalRef(ref string) error {
	if len(ref) > MaxExternalRefLength {
		return fmt.Errorf("%w: %d bytes", ErrExternalRefTooLong, len(ref))
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
