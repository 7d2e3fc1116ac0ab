package oracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

type PrimaryConfig struct {
	BaseCurrency     common.Address
	BaseCurrencyUnit *big.Int
	Source           types.PriceFeedSource
	Fallback         types.PriceOracle
	Authorizer       types.Authorizer
	Events           EventSink
}

// PrimaryOracle prices assets from a feed addressed by per-asset feed ids,
// escalating to its fallback when an asset is unbound or its feed reads zero.
type PrimaryOracle struct {
	baseCurrency     common.Address
	baseCurrencyUnit *big.Int

	mu       sync.RWMutex
	feedIDs  map[common.Address]common.Hash
	source   types.PriceFeedSource
	fallback types.PriceOracle

	auth   types.Authorizer
	events EventSink

	logger  log.Logger
	svcTags metrics.Tags
}

func NewPrimaryOracle(cfg PrimaryConfig) (*PrimaryOracle, error) {
	if err := checkBaseCurrencyUnit(cfg.BaseCurrencyUnit); err != nil {
		return nil, err
	} else if cfg.Source == nil {
		return nil, errors.New("primary oracle requires a price feed source")
	} else if cfg.Authorizer == nil {
		return nil, errors.New("primary oracle requires an authorizer")
	}

	events := cfg.Events
	if events == nil {
		events = NopSink{}
	}

	return &PrimaryOracle{
		baseCurrency:     cfg.BaseCurrency,
		baseCurrencyUnit: new(big.Int).Set(cfg.BaseCurrencyUnit),
		feedIDs:          make(map[common.Address]common.Hash),
		source:           cfg.Source,
		fallback:         cfg.Fallback,
		auth:             cfg.Authorizer,
		events:           events,
		logger: log.WithFields(log.Fields{
			"svc":  "oracle",
			"tier": "primary",
		}),
		svcTags: metrics.Tags{
			"svc":  "price_oracle",
			"tier": "primary",
		},
	}, nil
}

func (o *PrimaryOracle) String() string {
	return "primary"
}

func (o *PrimaryOracle) BaseCurrency() common.Address {
	return o.baseCurrency
}

func (o *PrimaryOracle) BaseCurrencyUnit() *big.Int {
	return new(big.Int).Set(o.baseCurrencyUnit)
}

// GetPriceFeedIDOfAsset returns the bound feed id, or the zero hash.
func (o *PrimaryOracle) GetPriceFeedIDOfAsset(asset common.Address) common.Hash {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.feedIDs[asset]
}

// SetAssetPriceFeedIDs binds assets to feed ids pairwise. The whole batch is
// applied atomically and one PriceFeedIDUpdated is published per pair.
func (o *PrimaryOracle) SetAssetPriceFeedIDs(caller common.Address, assets []common.Address, feedIDs []common.Hash) error {
	if err := checkAdmin(o.auth, caller); err != nil {
		return err
	} else if len(assets) != len(feedIDs) {
		return errors.Wrapf(ErrInconsistentParams, "%d assets, %d feed ids", len(assets), len(feedIDs))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for i, asset := range assets {
		if feedIDs[i] == (common.Hash{}) {
			delete(o.feedIDs, asset)
		} else {
			o.feedIDs[asset] = feedIDs[i]
		}

		o.events.Publish(PriceFeedIDUpdated{
			Asset:  asset,
			FeedID: feedIDs[i],
		})
	}

	return nil
}

func (o *PrimaryOracle) FallbackOracle() types.PriceOracle {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.fallback
}

func (o *PrimaryOracle) SetFallbackOracle(caller common.Address, fallback types.PriceOracle) error {
	if err := checkAdmin(o.auth, caller); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.fallback = fallback
	o.events.Publish(FallbackOracleUpdated{
		Emitter: o.String(),
		Oracle:  fallback,
	})

	return nil
}

func (o *PrimaryOracle) PriceFeedSource() types.PriceFeedSource {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.source
}

func (o *PrimaryOracle) SetPriceFeedSource(caller common.Address, source types.PriceFeedSource) error {
	if err := checkAdmin(o.auth, caller); err != nil {
		return err
	} else if source == nil {
		return errors.New("price feed source is nil")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.source = source
	o.events.Publish(SourceFeedUpdated{
		Emitter: o.String(),
		Source:  source,
	})

	return nil
}

// GetAssetPrice returns the price of asset in base currency units.
func (o *PrimaryOracle) GetAssetPrice(ctx context.Context, asset common.Address) (price *big.Int, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(o.svcTags)(&err)

	if asset == o.baseCurrency {
		return new(big.Int).Set(o.baseCurrencyUnit), nil
	}

	o.mu.RLock()
	feedID, bound := o.feedIDs[asset]
	source := o.source
	fallback := o.fallback
	o.mu.RUnlock()

	if !bound {
		o.reportEscalation("unbound")
		return delegateToFallback(ctx, fallback, asset)
	}

	reading, err := source.ReadPrice(ctx, feedID)
	if err != nil {
		err = errors.Wrapf(err, "failed to read feed %s for asset %s", feedID.Hex(), asset.Hex())
		return nil, err
	}

	price = ConvertPrice(reading, o.baseCurrencyUnit)
	if price.Sign() == 0 {
		o.logger.WithFields(log.Fields{
			"asset":   asset.Hex(),
			"feed_id": feedID.Hex(),
		}).Debugln("feed reported zero price, asking fallback oracle")

		o.reportEscalation("zero_price")
		return delegateToFallback(ctx, fallback, asset)
	}

	return price, nil
}

// GetAssetsPrices returns prices for assets, in the same order.
func (o *PrimaryOracle) GetAssetsPrices(ctx context.Context, assets []common.Address) ([]*big.Int, error) {
	return getAssetsPrices(ctx, o, assets)
}

func (o *PrimaryOracle) reportEscalation(reason string) {
	metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
		s.Count("price_oracle.primary.escalation.count", 1, append(tagSpec, "reason:"+reason), 1)
	}, o.svcTags)
}
