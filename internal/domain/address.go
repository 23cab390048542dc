package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseAddresses parses a list of addresses, failing on the first bad one.
func ParseAddresses(ss []string) ([]common.Address, error) {
	out := make([]common.Address, len(ss))
	for i, s := range ss {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// ParseHash parses a 32-byte hex hash. An empty string yields the zero hash.
func ParseHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Hash{}, nil
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", s)
	}
	for _, c := range raw {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return common.Hash{}, fmt.Errorf("invalid hash %q", s)
		}
	}
	return common.HexToHash(s), nil
}
