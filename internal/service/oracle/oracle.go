package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

// DefaultStalenessThreshold is the staleness bound a secondary oracle starts with.
const DefaultStalenessThreshold = 90 * 24 * time.Hour

var (
	_ types.PriceOracle = &PrimaryOracle{}
	_ types.PriceOracle = &SecondaryOracle{}
)

func checkAdmin(auth types.Authorizer, caller common.Address) error {
	if !auth.HasAnyRole(caller, types.RoleAssetListingAdmin, types.RolePoolAdmin) {
		return errors.Wrapf(ErrNotAuthorized, "caller %s", caller.Hex())
	}

	return nil
}

func checkBaseCurrencyUnit(unit *big.Int) error {
	if unit == nil || unit.Sign() <= 0 {
		return errors.New("base currency unit must be positive")
	}

	return nil
}

// delegateToFallback asks the next tier for a price. A missing fallback prices everything at zero.
func delegateToFallback(ctx context.Context, fallback types.PriceOracle, asset common.Address) (*big.Int, error) {
	if fallback == nil {
		return new(big.Int), nil
	}

	return fallback.GetAssetPrice(ctx, asset)
}

// getAssetsPrices resolves every asset in order; the first failure aborts the batch.
func getAssetsPrices(ctx context.Context, o types.PriceOracle, assets []common.Address) ([]*big.Int, error) {
	prices := make([]*big.Int, 0, len(assets))
	for _, asset := range assets {
		price, err := o.GetAssetPrice(ctx, asset)
		if err != nil {
			return nil, err
		}

		prices = append(prices, price)
	}

	return prices, nil
}
