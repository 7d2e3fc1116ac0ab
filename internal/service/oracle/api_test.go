package oracle

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/manual"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

const testAPIKey = "s3cret"

func newTestAPI(t *testing.T) (APIService, Service) {
	t.Helper()

	svc := newStaticService(t)
	return NewAPIService(svc, testAPIKey), svc
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price    *big.Int
		unit     *big.Int
		expected string
	}{
		{price: big.NewInt(500_000_000), unit: big.NewInt(100_000_000), expected: "5"},
		{price: big.NewInt(1_111_000), unit: big.NewInt(100_000_000), expected: "0.01111"},
		{price: big.NewInt(0), unit: big.NewInt(100_000_000), expected: "0"},
		{price: big.NewInt(12345), unit: big.NewInt(1), expected: "12345"},
		{price: big.NewInt(12345), unit: nil, expected: "12345"},
		{price: nil, unit: big.NewInt(100_000_000), expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPrice(tt.price, tt.unit))
		})
	}
}

func TestAPI_GetPrice(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	res, err := api.GetPrice(ctx, strings.ToLower(weth.Hex()))
	require.NoError(t, err)
	assert.Equal(t, &PriceResponse{
		Asset:     weth.Hex(),
		Price:     "300000000000",
		Formatted: "3000",
	}, res)

	_, err = api.GetPrice(ctx, "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = api.GetPrice(ctx, link.Hex())
	assert.ErrorIs(t, err, ErrStaleAnswer)
}

func TestAPI_GetPrices(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	res, err := api.GetPrices(ctx, []string{dai.Hex(), usd.Hex(), weth.Hex()})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "1", res[0].Formatted)
	assert.Equal(t, "1", res[1].Formatted)
	assert.Equal(t, "3000", res[2].Formatted)

	_, err = api.GetPrices(ctx, []string{dai.Hex(), link.Hex()})
	assert.ErrorIs(t, err, ErrStaleAnswer)

	tooMany := make([]string, maxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = dai.Hex()
	}
	_, err = api.GetPrices(ctx, tooMany)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAPI_GetAsset(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	res, err := api.GetAsset(ctx, weth.Hex())
	require.NoError(t, err)
	assert.Equal(t, feedWETH.Hex(), res.FeedID.String)
	assert.True(t, res.PairIndex.Valid)
	assert.Equal(t, int64(1), res.PairIndex.Int64)
	assert.False(t, res.ManualPrice.Valid)

	res, err = api.GetAsset(ctx, dai.Hex())
	require.NoError(t, err)
	assert.False(t, res.FeedID.Valid)
	assert.False(t, res.PairIndex.Valid)
	assert.Equal(t, "100000000", res.ManualPrice.String)
}

func TestAPI_GetConfig(t *testing.T) {
	api, _ := newTestAPI(t)

	res, err := api.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ConfigResponse{
		BaseCurrency:              usd.Hex(),
		BaseCurrencyUnit:          "100000000",
		StalenessThreshold:        "1h0m0s",
		StalenessThresholdSeconds: 3600,
		PrimarySource:             "static",
		PrimaryFallback:           "secondary",
		SecondarySource:           "static",
		SecondaryFallback:         "manual",
	}, res)
}

func TestAPI_GetEvents(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	all, err := api.GetEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	last, err := api.GetEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, all[2:], last)
	assert.Equal(t, "PairIndexUpdated", last[1].Name)
	assert.Equal(t, link.Hex(), last[1].Fields["asset"])
}

func TestAPI_AdminRequiresAPIKey(t *testing.T) {
	ctx := context.Background()
	svc := newStaticService(t)

	tests := []struct {
		name       string
		configured string
		given      string
	}{
		{name: "wrong key", configured: testAPIKey, given: "guess"},
		{name: "missing key", configured: testAPIKey, given: ""},
		{name: "admin disabled", configured: "", given: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := NewAPIService(svc, tt.configured)

			err := api.SetFeedIDs(ctx, tt.given, &FeedIDsRequest{})
			assert.ErrorIs(t, err, ErrInvalidAPIKey)

			err = api.SetPairIndexes(ctx, tt.given, &PairIndexesRequest{})
			assert.ErrorIs(t, err, ErrInvalidAPIKey)

			err = api.SetStalenessThreshold(ctx, tt.given, &StalenessThresholdRequest{Threshold: "1m"})
			assert.ErrorIs(t, err, ErrInvalidAPIKey)

			err = api.SetManualPrices(ctx, tt.given, &ManualPricesRequest{})
			assert.ErrorIs(t, err, ErrInvalidAPIKey)
		})
	}

	assert.Equal(t, 4, len(svc.Events().Names()))
}

func TestAPI_SetFeedIDs(t *testing.T) {
	api, svc := newTestAPI(t)
	ctx := context.Background()

	err := api.SetFeedIDs(ctx, testAPIKey, &FeedIDsRequest{
		Assets:  []string{dai.Hex()},
		FeedIDs: []string{feedWBTC.Hex()},
	})
	require.NoError(t, err)
	assert.Equal(t, feedWBTC, svc.Primary().GetPriceFeedIDOfAsset(dai))

	err = api.SetFeedIDs(ctx, testAPIKey, &FeedIDsRequest{
		Assets:  []string{dai.Hex()},
		FeedIDs: []string{"0x1234"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = api.SetFeedIDs(ctx, testAPIKey, &FeedIDsRequest{
		Assets:  []string{dai.Hex(), weth.Hex()},
		FeedIDs: []string{feedWETH.Hex()},
	})
	assert.ErrorIs(t, err, ErrInconsistentParams)
	assert.Equal(t, feedWBTC, svc.Primary().GetPriceFeedIDOfAsset(dai))

	err = api.SetFeedIDs(ctx, testAPIKey, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAPI_SetPairIndexes(t *testing.T) {
	api, svc := newTestAPI(t)
	ctx := context.Background()

	err := api.SetPairIndexes(ctx, testAPIKey, &PairIndexesRequest{
		Assets:      []string{dai.Hex(), weth.Hex()},
		PairIndexes: []uint64{5, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), svc.Secondary().GetPairIndexOfAsset(dai))
	assert.Equal(t, uint64(0), svc.Secondary().GetPairIndexOfAsset(weth))

	err = api.SetPairIndexes(ctx, testAPIKey, &PairIndexesRequest{
		Assets: []string{"0xzz"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAPI_SetStalenessThreshold(t *testing.T) {
	api, svc := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, api.SetStalenessThreshold(ctx, testAPIKey, &StalenessThresholdRequest{Threshold: "2h"}))
	assert.Equal(t, "2h0m0s", svc.Secondary().StalenessThreshold().String())

	err := api.SetStalenessThreshold(ctx, testAPIKey, &StalenessThresholdRequest{Threshold: "0s"})
	assert.ErrorIs(t, err, ErrZeroThresholdNotAllowed)

	err = api.SetStalenessThreshold(ctx, testAPIKey, &StalenessThresholdRequest{Threshold: "500ms"})
	assert.ErrorIs(t, err, ErrZeroThresholdNotAllowed)

	err = api.SetStalenessThreshold(ctx, testAPIKey, &StalenessThresholdRequest{Threshold: "soon"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, "2h0m0s", svc.Secondary().StalenessThreshold().String())

	require.NoError(t, api.SetStalenessThreshold(ctx, testAPIKey, &StalenessThresholdRequest{Threshold: "1.5s"}))
	cfg, err := api.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.StalenessThresholdSeconds)
}

func TestAPI_SetManualPrices(t *testing.T) {
	api, svc := newTestAPI(t)
	ctx := context.Background()

	err := api.SetManualPrices(ctx, testAPIKey, &ManualPricesRequest{
		Assets: []string{wbtc.Hex(), dai.Hex()},
		Prices: []string{"6000000000000", "0"},
	})
	require.NoError(t, err)

	prices := svc.Manual().Prices()
	assert.Equal(t, "6000000000000", prices[wbtc].String())
	assert.NotContains(t, prices, dai)

	err = api.SetManualPrices(ctx, testAPIKey, &ManualPricesRequest{
		Assets: []string{usd.Hex(), wbtc.Hex()},
		Prices: []string{"1", "-5"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotContains(t, svc.Manual().Prices(), usd)

	err = api.SetManualPrices(ctx, testAPIKey, &ManualPricesRequest{
		Assets: []string{usd.Hex()},
		Prices: []string{},
	})
	assert.ErrorIs(t, err, ErrInconsistentParams)
}

func TestAPI_OperatorWithoutRoleIsRejected(t *testing.T) {
	svc := newStaticService(t)
	require.NoError(t, svc.ACL().RevokeRole(svc.ACL().Admin(), types.RolePoolAdmin, svc.Operator()))

	api := NewAPIService(svc, testAPIKey)
	ctx := context.Background()

	err := api.SetFeedIDs(ctx, testAPIKey, &FeedIDsRequest{})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	err = api.SetManualPrices(ctx, testAPIKey, &ManualPricesRequest{
		Assets: []string{dai.Hex()},
		Prices: []string{"1"},
	})
	assert.ErrorIs(t, err, manual.ErrNotAuthorized)
}
