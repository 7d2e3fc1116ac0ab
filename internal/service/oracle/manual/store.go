package manual

import (
	"context"
	"math/big"
	"sync"

	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

var ErrNotAuthorized = errors.New("caller not asset listing or pool admin")

var _ types.PriceOracle = &Oracle{}

// Oracle is the last-resort tier: prices set by hand, zero when unset.
type Oracle struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int

	auth   types.Authorizer
	logger log.Logger
}

func NewOracle(auth types.Authorizer) *Oracle {
	return &Oracle{
		prices: make(map[common.Address]*big.Int),
		auth:   auth,
		logger: log.WithFields(log.Fields{
			"svc":  "oracle",
			"tier": "manual",
		}),
	}
}

func (o *Oracle) String() string {
	return "manual"
}

func (o *Oracle) GetAssetPrice(_ context.Context, asset common.Address) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	price, ok := o.prices[asset]
	if !ok {
		return new(big.Int), nil
	}

	return new(big.Int).Set(price), nil
}

func (o *Oracle) SetAssetPrice(caller common.Address, asset common.Address, price *big.Int) error {
	return o.SetAssetPrices(caller, []common.Address{asset}, []*big.Int{price})
}

// SetAssetPrices validates the whole batch, then applies it under one lock
// so readers never observe part of it. A zero price clears the asset.
func (o *Oracle) SetAssetPrices(caller common.Address, assets []common.Address, prices []*big.Int) error {
	if !o.auth.HasAnyRole(caller, types.RoleAssetListingAdmin, types.RolePoolAdmin) {
		return errors.Wrapf(ErrNotAuthorized, "caller %s", caller.Hex())
	} else if len(assets) != len(prices) {
		return errors.Errorf("got %d assets and %d prices", len(assets), len(prices))
	}

	for i, price := range prices {
		if price == nil || price.Sign() < 0 {
			return errors.Errorf("invalid manual price for %s", assets[i].Hex())
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for i, asset := range assets {
		if prices[i].Sign() == 0 {
			delete(o.prices, asset)
		} else {
			o.prices[asset] = new(big.Int).Set(prices[i])
		}

		o.logger.WithFields(log.Fields{
			"asset": asset.Hex(),
			"price": prices[i].String(),
		}).Infoln("manual price set")
	}

	return nil
}

// Prices returns a snapshot of all manually set prices.
func (o *Oracle) Prices() map[common.Address]*big.Int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[common.Address]*big.Int, len(o.prices))
	for asset, price := range o.prices {
		out[asset] = new(big.Int).Set(price)
	}

	return out
}
