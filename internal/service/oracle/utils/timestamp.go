package utils

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

// ConvertTimestampToSecond normalizes a timestamp given in seconds,
// milliseconds, microseconds or nanoseconds to seconds.
func ConvertTimestampToSecond(timestamp uint64) uint64 {
	switch {
	// nanosecond
	case timestamp > 1e18:
		return timestamp / uint64(1_000_000_000)
	// microsecond
	case timestamp > 1e15:
		return timestamp / uint64(1_000_000)
	// millisecond
	case timestamp > 1e12:
		return timestamp / uint64(1_000)
	// second
	default:
		return timestamp
	}
}

// Pow10 returns 10^n.
func Pow10(n uint64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(n), nil)
}

// ParseABI parses a JSON ABI definition.
func ParseABI(definition string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ABI")
	}

	return &parsed, nil
}
