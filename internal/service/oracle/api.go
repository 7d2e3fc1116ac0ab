package oracle

import (
	"context"
	"crypto/subtle"
	"math/big"
	"strings"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

var (
	// ErrInvalidInput marks malformed API payloads.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidAPIKey is returned by admin calls with a missing or wrong key.
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// maxBatchSize bounds the number of assets in one API request.
const maxBatchSize = 256

type PriceResponse struct {
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Formatted string `json:"formatted"`
}

type AssetResponse struct {
	Asset       string      `json:"asset"`
	FeedID      null.String `json:"feedId"`
	PairIndex   null.Int    `json:"pairIndex"`
	ManualPrice null.String `json:"manualPrice"`
}

type ConfigResponse struct {
	BaseCurrency              string `json:"baseCurrency"`
	BaseCurrencyUnit          string `json:"baseCurrencyUnit"`
	StalenessThreshold        string `json:"stalenessThreshold"`
	StalenessThresholdSeconds int64  `json:"stalenessThresholdSeconds"`
	PrimarySource             string `json:"primarySource"`
	PrimaryFallback           string `json:"primaryFallback"`
	SecondarySource           string `json:"secondarySource"`
	SecondaryFallback         string `json:"secondaryFallback"`
}

type EventResponse struct {
	Seq    uint64                 `json:"seq"`
	Name   string                 `json:"name"`
	Time   time.Time              `json:"time"`
	Fields map[string]interface{} `json:"fields"`
}

type FeedIDsRequest struct {
	Assets  []string `json:"assets"`
	FeedIDs []string `json:"feedIds"`
}

type PairIndexesRequest struct {
	Assets      []string `json:"assets"`
	PairIndexes []uint64 `json:"pairIndexes"`
}

type StalenessThresholdRequest struct {
	// Threshold is a Go duration string, e.g. "1h30m".
	Threshold string `json:"threshold"`
}

type ManualPricesRequest struct {
	Assets []string `json:"assets"`
	Prices []string `json:"prices"`
}

type APIService interface {
	GetPrice(ctx context.Context, asset string) (*PriceResponse, error)
	GetPrices(ctx context.Context, assets []string) ([]*PriceResponse, error)
	GetAsset(ctx context.Context, asset string) (*AssetResponse, error)
	GetConfig(ctx context.Context) (*ConfigResponse, error)
	GetEvents(ctx context.Context, limit int) ([]*EventResponse, error)

	SetFeedIDs(ctx context.Context, apiKey string, req *FeedIDsRequest) error
	SetPairIndexes(ctx context.Context, apiKey string, req *PairIndexesRequest) error
	SetStalenessThreshold(ctx context.Context, apiKey string, req *StalenessThresholdRequest) error
	SetManualPrices(ctx context.Context, apiKey string, req *ManualPricesRequest) error
}

type apiSvc struct {
	svc    Service
	apiKey string

	logger  log.Logger
	svcTags metrics.Tags
}

// NewAPIService exposes svc over the API. Admin calls are disabled when
// apiKey is empty.
func NewAPIService(svc Service, apiKey string) APIService {
	return &apiSvc{
		svc:    svc,
		apiKey: apiKey,
		logger: log.WithField("svc", "api"),
		svcTags: metrics.Tags{
			"svc": "price_oracle_api",
		},
	}
}

func (s *apiSvc) GetPrice(ctx context.Context, asset string) (res *PriceResponse, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	addr, err := parseAddress(asset)
	if err != nil {
		return nil, err
	}

	price, err := s.svc.Primary().GetAssetPrice(ctx, addr)
	if err != nil {
		return nil, err
	}

	return s.priceResponse(addr, price), nil
}

func (s *apiSvc) GetPrices(ctx context.Context, assets []string) (res []*PriceResponse, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	addrs, err := parseAddresses(assets)
	if err != nil {
		return nil, err
	}

	prices, err := s.svc.Primary().GetAssetsPrices(ctx, addrs)
	if err != nil {
		return nil, err
	}

	res = make([]*PriceResponse, 0, len(prices))
	for i, price := range prices {
		res = append(res, s.priceResponse(addrs[i], price))
	}

	return res, nil
}

func (s *apiSvc) priceResponse(asset common.Address, price *big.Int) *PriceResponse {
	return &PriceResponse{
		Asset:     asset.Hex(),
		Price:     price.String(),
		Formatted: FormatPrice(price, s.svc.Primary().BaseCurrencyUnit()),
	}
}

func (s *apiSvc) GetAsset(_ context.Context, asset string) (*AssetResponse, error) {
	addr, err := parseAddress(asset)
	if err != nil {
		return nil, err
	}

	res := &AssetResponse{
		Asset: addr.Hex(),
	}

	if feedID := s.svc.Primary().GetPriceFeedIDOfAsset(addr); feedID != (common.Hash{}) {
		res.FeedID = null.StringFrom(feedID.Hex())
	}

	if pairIndex := s.svc.Secondary().GetPairIndexOfAsset(addr); pairIndex != 0 {
		res.PairIndex = null.IntFrom(int64(pairIndex))
	}

	if price, ok := s.svc.Manual().Prices()[addr]; ok {
		res.ManualPrice = null.StringFrom(price.String())
	}

	return res, nil
}

func (s *apiSvc) GetConfig(_ context.Context) (*ConfigResponse, error) {
	primary := s.svc.Primary()
	secondary := s.svc.Secondary()
	threshold := secondary.StalenessThreshold()

	return &ConfigResponse{
		BaseCurrency:              primary.BaseCurrency().Hex(),
		BaseCurrencyUnit:          primary.BaseCurrencyUnit().String(),
		StalenessThreshold:        threshold.String(),
		StalenessThresholdSeconds: int64(threshold / time.Second),
		PrimarySource:             types.Describe(primary.PriceFeedSource()),
		PrimaryFallback:           types.Describe(primary.FallbackOracle()),
		SecondarySource:           types.Describe(secondary.SourceFeed()),
		SecondaryFallback:         types.Describe(secondary.FallbackOracle()),
	}, nil
}

// GetEvents returns up to limit most recent events, oldest first.
func (s *apiSvc) GetEvents(_ context.Context, limit int) ([]*EventResponse, error) {
	events := s.svc.Events().Events()
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	res := make([]*EventResponse, 0, len(events))
	for _, ev := range events {
		res = append(res, &EventResponse{
			Seq:    ev.Seq,
			Name:   ev.EventName(),
			Time:   ev.Time,
			Fields: ev.Fields(),
		})
	}

	return res, nil
}

func (s *apiSvc) SetFeedIDs(_ context.Context, apiKey string, req *FeedIDsRequest) (err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := s.checkAPIKey(apiKey); err != nil {
		return err
	} else if req == nil {
		return errors.Wrap(ErrInvalidInput, "empty request")
	}

	assets, err := parseAddresses(req.Assets)
	if err != nil {
		return err
	}

	feedIDs := make([]common.Hash, 0, len(req.FeedIDs))
	for _, raw := range req.FeedIDs {
		feedID, err := parseFeedID(raw)
		if err != nil {
			return err
		}

		feedIDs = append(feedIDs, feedID)
	}

	return s.svc.Primary().SetAssetPriceFeedIDs(s.svc.Operator(), assets, feedIDs)
}

func (s *apiSvc) SetPairIndexes(_ context.Context, apiKey string, req *PairIndexesRequest) (err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := s.checkAPIKey(apiKey); err != nil {
		return err
	} else if req == nil {
		return errors.Wrap(ErrInvalidInput, "empty request")
	}

	assets, err := parseAddresses(req.Assets)
	if err != nil {
		return err
	}

	return s.svc.Secondary().SetAssetPairIndexes(s.svc.Operator(), assets, req.PairIndexes)
}

func (s *apiSvc) SetStalenessThreshold(_ context.Context, apiKey string, req *StalenessThresholdRequest) (err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := s.checkAPIKey(apiKey); err != nil {
		return err
	} else if req == nil {
		return errors.Wrap(ErrInvalidInput, "empty request")
	}

	threshold, err := time.ParseDuration(req.Threshold)
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "threshold %q: %v", req.Threshold, err)
	}

	return s.svc.Secondary().SetStalenessThreshold(s.svc.Operator(), threshold)
}

// SetManualPrices validates the whole batch and stores it atomically.
func (s *apiSvc) SetManualPrices(_ context.Context, apiKey string, req *ManualPricesRequest) (err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := s.checkAPIKey(apiKey); err != nil {
		return err
	} else if req == nil {
		return errors.Wrap(ErrInvalidInput, "empty request")
	}

	assets, err := parseAddresses(req.Assets)
	if err != nil {
		return err
	} else if len(assets) != len(req.Prices) {
		return ErrInconsistentParams
	}

	prices := make([]*big.Int, 0, len(req.Prices))
	for _, raw := range req.Prices {
		price, ok := new(big.Int).SetString(raw, 10)
		if !ok || price.Sign() < 0 {
			return errors.Wrapf(ErrInvalidInput, "price %q", raw)
		}

		prices = append(prices, price)
	}

	return s.svc.Manual().SetAssetPrices(s.svc.Operator(), assets, prices)
}

func (s *apiSvc) checkAPIKey(apiKey string) error {
	if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(s.apiKey), []byte(apiKey)) != 1 {
		return ErrInvalidAPIKey
	}

	return nil
}

// FormatPrice renders price as a decimal number of base currency units.
func FormatPrice(price, unit *big.Int) string {
	if price == nil {
		return "0"
	} else if unit == nil || unit.Sign() <= 0 {
		return price.String()
	}

	return decimal.NewFromBigInt(price, 0).Div(decimal.NewFromBigInt(unit, 0)).String()
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.Wrapf(ErrInvalidInput, "asset %q is not a hex address", raw)
	}

	return common.HexToAddress(raw), nil
}

func parseAddresses(raw []string) ([]common.Address, error) {
	if len(raw) > maxBatchSize {
		return nil, errors.Wrapf(ErrInvalidInput, "too many assets: %d > %d", len(raw), maxBatchSize)
	}

	addrs := make([]common.Address, 0, len(raw))
	for _, r := range raw {
		addr, err := parseAddress(r)
		if err != nil {
			return nil, err
		}

		addrs = append(addrs, addr)
	}

	return addrs, nil
}

func parseFeedID(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return common.Hash{}, errors.Wrapf(ErrInvalidInput, "feed id %q: %v", raw, err)
	} else if len(b) != common.HashLength {
		return common.Hash{}, errors.Wrapf(ErrInvalidInput, "feed id %q must be %d bytes", raw, common.HashLength)
	}

	return common.BytesToHash(b), nil
}
