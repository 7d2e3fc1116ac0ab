package oracle

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/acl"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/manual"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/memfeed"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

var (
	aclAdmin     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolAdmin    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	listingAdmin = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	stranger     = common.HexToAddress("0x00000000000000000000000000000000000000a4")

	usd  = common.HexToAddress("0x0000000000000000000000000000000000000348")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	wbtc = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	feedWETH = common.HexToHash("0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace")
	feedWBTC = common.HexToHash("0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43")

	errFeedDown = errors.New("feed is down")
)

func unit() *big.Int {
	return big.NewInt(100_000_000)
}

// testChain is primary -> secondary -> manual over in-memory feeds, with a
// settable clock.
type testChain struct {
	acl         *acl.Manager
	events      *Recorder
	primaryFeed *memfeed.PriceFeed
	indexedFeed *memfeed.IndexedFeed
	manual      *manual.Oracle
	secondary   *SecondaryOracle
	primary     *PrimaryOracle

	now time.Time
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()

	c := &testChain{
		now: time.Unix(1_700_000_000, 0),
	}

	c.acl = acl.NewManager(aclAdmin)
	require.NoError(t, c.acl.GrantRole(aclAdmin, types.RolePoolAdmin, poolAdmin))
	require.NoError(t, c.acl.GrantRole(aclAdmin, types.RoleAssetListingAdmin, listingAdmin))

	c.events = NewRecorder(0)
	c.primaryFeed = memfeed.NewPriceFeed("primary-feed")
	c.indexedFeed = memfeed.NewIndexedFeed("indexed-feed")
	c.manual = manual.NewOracle(c.acl)

	var err error
	c.secondary, err = NewSecondaryOracle(SecondaryConfig{
		BaseCurrency:     usd,
		BaseCurrencyUnit: unit(),
		Source:           c.indexedFeed,
		Fallback:         c.manual,
		Authorizer:       c.acl,
		Events:           c.events,
		Clock:            func() time.Time { return c.now },
	})
	require.NoError(t, err)

	c.primary, err = NewPrimaryOracle(PrimaryConfig{
		BaseCurrency:     usd,
		BaseCurrencyUnit: unit(),
		Source:           c.primaryFeed,
		Fallback:         c.secondary,
		Authorizer:       c.acl,
		Events:           c.events,
	})
	require.NoError(t, err)

	return c
}

func (c *testChain) bindFeed(t *testing.T, asset common.Address, feedID common.Hash) {
	t.Helper()
	require.NoError(t, c.primary.SetAssetPriceFeedIDs(poolAdmin, []common.Address{asset}, []common.Hash{feedID}))
}

func (c *testChain) bindPair(t *testing.T, asset common.Address, pairIndex uint64) {
	t.Helper()
	require.NoError(t, c.secondary.SetAssetPairIndexes(poolAdmin, []common.Address{asset}, []uint64{pairIndex}))
}

// recordingOracle answers a fixed price and counts calls.
type recordingOracle struct {
	mu    sync.Mutex
	price *big.Int
	err   error
	calls []common.Address
}

func (o *recordingOracle) GetAssetPrice(_ context.Context, asset common.Address) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, asset)
	if o.err != nil {
		return nil, o.err
	}

	return new(big.Int).Set(o.price), nil
}

func (o *recordingOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.calls)
}

type failingFeed struct{}

func (failingFeed) ReadPrice(context.Context, common.Hash) (types.FeedReading, error) {
	return types.FeedReading{}, errFeedDown
}

func (failingFeed) ReadPair(context.Context, uint64) (types.FeedReading, error) {
	return types.FeedReading{}, errFeedDown
}
