package oracle

import (
	"math/big"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

var bigTen = big.NewInt(10)

// ConvertPrice scales a feed reading into base currency units:
// floor(raw * unit / 10^decimals). Non-positive raw prices convert to zero.
func ConvertPrice(reading types.FeedReading, unit *big.Int) *big.Int {
	if reading.RawPrice == nil || reading.RawPrice.Sign() <= 0 {
		return new(big.Int)
	}

	scale := new(big.Int).Exp(bigTen, big.NewInt(int64(reading.Decimals)), nil)

	price := new(big.Int).Mul(reading.RawPrice, unit)
	return price.Quo(price, scale)
}
