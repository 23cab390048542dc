package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateGroupName(t *testing.T) {
	t.Parallel()

	t.Run("valid name", func(t *testing.T) {
		if err := ValidateGroupName("Lisbon Trip"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := ValidateGroupName("   ")
		if !errors.Is(err, ErrInvalidGroupName) {
			t.Fatalf("expected ErrInvalidGroupName, got %v", err)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		tooLong := strings.Repeat("a", MaxGroupNameLength+1)
		err := ValidateGroupName(tooLong)
		if !errors.Is(err, ErrInvalidGroupName) {
			t.Fatalf("expected ErrInvalidGroupName, got %v", err)
		}
	})

	t.Run("control characters", func(t *testing.T) {
		err := ValidateGroupName("flat\x00share")
		if !errors.Is(err, ErrInvalidGroupName) {
			t.Fatalf("expected ErrInvalidGroupName, got %v", err)
		}
	})
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	if err := ValidateAmount(decimal.NewFromInt(100)); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	if err := ValidateAmount(decimal.Zero); !errors.Is(err, ErrAmountZero) {
		t.Fatalf("expected ErrAmountZero, got %v", err)
	}

	if err := ValidateAmount(decimal.NewFromInt(-1)); !errors.Is(err, ErrAmountZero) {
		t.Fatalf("expected ErrAmountZero for negative, got %v", err)
	}

	if err := ValidateAmount(decimal.NewFromFloat(1.5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	tooLarge := decimal.RequireFromString(MaxAmount).Add(decimal.NewFromInt(1))
	if err := ValidateAmount(tooLarge); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	limit, offset, err := ValidatePagination(0, -5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if limit != 50 || offset != 0 {
		t.Fatalf("expected defaults (50,0), got (%d,%d)", limit, offset)
	}

	limit, _, _ = ValidatePagination(5000, 0)
	if limit != 1000 {
		t.Fatalf("expected limit to be capped at 1000, got %d", limit)
	}
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	addr, err := ParseAddress(" 0x00000000000000000000000000000000000a11ce ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != alice {
		t.Fatalf("expected %s, got %s", alice.Hex(), addr.Hex())
	}

	if _, err := ParseAddress("alice"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}

	if _, err := ParseHash("0x1234"); err == nil {
		t.Fatal("expected short hash to fail")
	}
	if h, err := ParseHash(""); err != nil || h != ([32]byte{}) {
		t.Fatalf("expected zero hash, got %v (%v)", h, err)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNoBond, "no_bond"},
		{fmt.Errorf("propose: %w", ErrSplitSumMismatch), "split_sum_mismatch"},
		{fmt.Errorf("%w: 0xabc holds 1, need 2", ErrInsufficientFunds), "insufficient_funds"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
