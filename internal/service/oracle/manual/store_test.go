package manual

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/acl"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	listing  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	dai      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func newOracle(t *testing.T) *Oracle {
	t.Helper()

	m := acl.NewManager(admin)
	require.NoError(t, m.GrantRole(admin, types.RoleAssetListingAdmin, listing))

	return NewOracle(m)
}

func TestOracle(t *testing.T) {
	ctx := context.Background()
	o := newOracle(t)
	assert.Equal(t, "manual", o.String())

	price, err := o.GetAssetPrice(ctx, dai)
	require.NoError(t, err)
	assert.Equal(t, 0, price.Sign())

	input := big.NewInt(100_010_000)
	require.NoError(t, o.SetAssetPrice(listing, dai, input))
	input.SetInt64(1)

	price, err = o.GetAssetPrice(ctx, dai)
	require.NoError(t, err)
	assert.Equal(t, "100010000", price.String())

	price.SetInt64(2)
	assert.Equal(t, "100010000", o.Prices()[dai].String())

	require.NoError(t, o.SetAssetPrice(listing, dai, big.NewInt(0)))
	assert.Empty(t, o.Prices())
}

func TestOracle_SetAssetPriceErrors(t *testing.T) {
	o := newOracle(t)

	err := o.SetAssetPrice(stranger, dai, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	assert.Error(t, o.SetAssetPrice(listing, dai, big.NewInt(-1)))
	assert.Error(t, o.SetAssetPrice(listing, dai, nil))
	assert.Empty(t, o.Prices())
}

func TestOracle_SetAssetPrices(t *testing.T) {
	o := newOracle(t)

	require.NoError(t, o.SetAssetPrices(listing, []common.Address{dai, usdc}, []*big.Int{big.NewInt(100_000_000), big.NewInt(99_990_000)}))
	prices := o.Prices()
	assert.Equal(t, "100000000", prices[dai].String())
	assert.Equal(t, "99990000", prices[usdc].String())

	// a bad entry rejects the whole batch
	err := o.SetAssetPrices(listing, []common.Address{dai, usdc}, []*big.Int{big.NewInt(1), big.NewInt(-1)})
	assert.Error(t, err)
	assert.Equal(t, "100000000", o.Prices()[dai].String())

	err = o.SetAssetPrices(listing, []common.Address{dai}, nil)
	assert.Error(t, err)

	err = o.SetAssetPrices(stranger, []common.Address{dai}, []*big.Int{big.NewInt(1)})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	require.NoError(t, o.SetAssetPrices(listing, nil, nil))
}

func TestOracle_SetAssetPricesIsAtomic(t *testing.T) {
	o := newOracle(t)
	assets := []common.Address{dai, usdc}
	require.NoError(t, o.SetAssetPrices(listing, assets, []*big.Int{big.NewInt(1), big.NewInt(1)}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		for i := int64(1); i <= 500; i++ {
			v := big.NewInt(i%2 + 1)
			assert.NoError(t, o.SetAssetPrices(listing, assets, []*big.Int{v, v}))
		}
	}()

	for i := 0; i < 500; i++ {
		prices := o.Prices()
		require.Equal(t, prices[dai].String(), prices[usdc].String())
	}

	wg.Wait()
}
