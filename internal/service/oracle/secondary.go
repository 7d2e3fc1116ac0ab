package oracle

import (
	"context"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

type SecondaryConfig struct {
	BaseCurrency     common.Address
	BaseCurrencyUnit *big.Int
	Source           types.IndexedFeedSource
	Fallback         types.PriceOracle
	Authorizer       types.Authorizer
	Events           EventSink

	// StalenessThreshold defaults to DefaultStalenessThreshold when zero and
	// is truncated to whole seconds otherwise.
	StalenessThreshold time.Duration

	// Clock defaults to time.Now.
	Clock types.Clock
}

// SecondaryOracle prices assets from an indexed feed and rejects readings
// older than its staleness threshold. Unbound assets go to the fallback;
// a fresh zero reading for a bound asset is returned as is.
type SecondaryOracle struct {
	baseCurrency     common.Address
	baseCurrencyUnit *big.Int

	mu         sync.RWMutex
	pairs      map[common.Address]uint64
	source     types.IndexedFeedSource
	fallback   types.PriceOracle
	staleAfter time.Duration

	auth   types.Authorizer
	events EventSink
	now    types.Clock

	logger  log.Logger
	svcTags metrics.Tags
}

func NewSecondaryOracle(cfg SecondaryConfig) (*SecondaryOracle, error) {
	if err := checkBaseCurrencyUnit(cfg.BaseCurrencyUnit); err != nil {
		return nil, err
	} else if cfg.Source == nil {
		return nil, errors.New("secondary oracle requires an indexed feed source")
	} else if cfg.Authorizer == nil {
		return nil, errors.New("secondary oracle requires an authorizer")
	}

	threshold := DefaultStalenessThreshold
	if cfg.StalenessThreshold != 0 {
		var err error
		if threshold, err = wholeSeconds(cfg.StalenessThreshold); err != nil {
			return nil, err
		}
	}

	events := cfg.Events
	if events == nil {
		events = NopSink{}
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &SecondaryOracle{
		baseCurrency:     cfg.BaseCurrency,
		baseCurrencyUnit: new(big.Int).Set(cfg.BaseCurrencyUnit),
		pairs:            make(map[common.Address]uint64),
		source:           cfg.Source,
		fallback:         cfg.Fallback,
		staleAfter:       threshold,
		auth:             cfg.Authorizer,
		events:           events,
		now:              now,
		logger: log.WithFields(log.Fields{
			"svc":  "oracle",
			"tier": "secondary",
		}),
		svcTags: metrics.Tags{
			"svc":  "price_oracle",
			"tier": "secondary",
		},
	}, nil
}

func (o *SecondaryOracle) String() string {
	return "secondary"
}

func (o *SecondaryOracle) BaseCurrency() common.Address {
	return o.baseCurrency
}

func (o *SecondaryOracle) BaseCurrencyUnit() *big.Int {
	return new(big.Int).Set(o.baseCurrencyUnit)
}

// GetPairIndexOfAsset returns the bound pair index, 0 when unbound.
func (o *SecondaryOracle) GetPairIndexOfAsset(asset common.Address) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.pairs[asset]
}

// SetAssetPairIndexes binds assets to pair indexes pairwise, atomically,
// publishing one PairIndexUpdated per pair.
func (o *SecondaryOracle) SetAssetPairIndexes(caller common.Address, assets []common.Address, indexes []uint64) error {
	if err := checkAdmin(o.auth, caller); err != nil {
		return err
	} else if len(assets) != len(indexes) {
		return errors.Wrapf(ErrInconsistentParams, "%d assets, %d pair indexes", len(assets), len(indexes))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for i, asset := range assets {
		if indexes[i] == 0 {
			delete(o.pairs, asset)
		} else {
			o.pairs[asset] = indexes[i]
		}

		o.events.Publish(PairIndexUpdated{
			Asset:     asset,
			PairIndex: indexes[i],
		})
	}

	return nil
}

func (o *SecondaryOracle) StalenessThreshold() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.staleAfter
}

func (o *SecondaryOracle) SetStalenessThreshold(caller common.Address, threshold time.Duration) error {
	if err := checkAdmin(o.auth, caller); err != nil {
		return err
	}

	threshold, err := wholeSeconds(threshold)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.staleAfter = threshold
	o.events.Publish(StalenessThresholdSet{
		Threshold: threshold,
	})

	return nil
}

// wholeSeconds truncates threshold to the granularity reading ages are
// measured in. Anything below one second is rejected.
func wholeSeconds(threshold time.Duration) (time.Duration, error) {
	threshold = threshold.Truncate(time.Second)
	if threshold <= 0 {
		return 0, ErrZeroThresholdNotAllowed
	}

	return threshold, nil
}

func (o *SecondaryOracle) FallbackOracle() types.PriceOracle {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.fallback
}

func (o *SecondaryOracle) SetFallbackOracle(caller common.Address, fallback types.PriceOracle) error {
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

func (o *SecondaryOracle) SourceFeed() types.IndexedFeedSource {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.source
}

func (o *SecondaryOracle) SetSourceFeed(caller common.Address, source types.IndexedFeedSource) error {
	if err := checkAdmin(o.auth, caller); err != nil {
		return err
	} else if source == nil {
		return errors.New("indexed feed source is nil")
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

// GetAssetPrice returns the price of asset in base currency units, or
// ErrStaleAnswer when the bound pair was last updated too long ago.
func (o *SecondaryOracle) GetAssetPrice(ctx context.Context, asset common.Address) (price *big.Int, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(o.svcTags)(&err)

	if asset == o.baseCurrency {
		return new(big.Int).Set(o.baseCurrencyUnit), nil
	}

	o.mu.RLock()
	pairIndex := o.pairs[asset]
	source := o.source
	fallback := o.fallback
	threshold := o.staleAfter
	o.mu.RUnlock()

	if pairIndex == 0 {
		return delegateToFallback(ctx, fallback, asset)
	}

	reading, err := source.ReadPair(ctx, pairIndex)
	if err != nil {
		err = errors.Wrapf(err, "failed to read pair %d for asset %s", pairIndex, asset.Hex())
		return nil, err
	}

	age := readingAge(o.now(), reading.UpdatedAt)
	if age > threshold {
		o.logger.WithFields(log.Fields{
			"asset":      asset.Hex(),
			"pair_index": pairIndex,
			"updated_at": reading.UpdatedAt.Unix(),
			"age":        age.String(),
			"threshold":  threshold.String(),
		}).Warningln("indexed feed answer is stale")

		metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
			s.Count("price_oracle.secondary.stale_answer.count", 1, tagSpec, 1)
		}, o.svcTags)

		return nil, errors.Wrapf(ErrStaleAnswer, "pair %d is %s old", pairIndex, age)
	}

	return ConvertPrice(reading, o.baseCurrencyUnit), nil
}

// GetAssetsPrices returns prices for assets, in the same order.
func (o *SecondaryOracle) GetAssetsPrices(ctx context.Context, assets []common.Address) ([]*big.Int, error) {
	return getAssetsPrices(ctx, o, assets)
}

const maxAgeSeconds = math.MaxInt64 / int64(time.Second)

// readingAge is the age of a reading in whole seconds. Readings from the
// future are treated as fresh.
func readingAge(now, updatedAt time.Time) time.Duration {
	age := now.Unix() - updatedAt.Unix()
	if age < 0 {
		return 0
	} else if age > maxAgeSeconds {
		return math.MaxInt64
	}

	return time.Duration(age) * time.Second
}
