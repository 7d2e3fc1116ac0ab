// Package memfeed holds feed sources kept entirely in memory. They back the
// "static" provider and stand in for on-chain feeds in tests.
package memfeed

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

var (
	_ types.PriceFeedSource   = &PriceFeed{}
	_ types.IndexedFeedSource = &IndexedFeed{}
)

// PriceFeed is a feed id addressed source. Unknown ids read as zero.
type PriceFeed struct {
	mu       sync.RWMutex
	readings map[common.Hash]types.FeedReading
	name     string
}

func NewPriceFeed(name string) *PriceFeed {
	return &PriceFeed{
		readings: make(map[common.Hash]types.FeedReading),
		name:     name,
	}
}

func (f *PriceFeed) String() string {
	return f.name
}

func (f *PriceFeed) SetPrice(feedID common.Hash, rawPrice *big.Int, decimals uint8, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readings[feedID] = types.FeedReading{
		RawPrice:  new(big.Int).Set(rawPrice),
		Decimals:  decimals,
		UpdatedAt: updatedAt,
	}
}

func (f *PriceFeed) ReadPrice(_ context.Context, feedID common.Hash) (types.FeedReading, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	reading, ok := f.readings[feedID]
	if !ok {
		return types.ZeroReading(time.Unix(0, 0)), nil
	}

	return copyReading(reading), nil
}

// IndexedFeed is a pair index addressed source. Unknown pairs read as zero
// at Unix 0, which any staleness bound rejects.
type IndexedFeed struct {
	mu       sync.RWMutex
	readings map[uint64]types.FeedReading
	name     string
}

func NewIndexedFeed(name string) *IndexedFeed {
	return &IndexedFeed{
		readings: make(map[uint64]types.FeedReading),
		name:     name,
	}
}

func (f *IndexedFeed) String() string {
	return f.name
}

func (f *IndexedFeed) SetPair(pairIndex uint64, rawPrice *big.Int, decimals uint8, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readings[pairIndex] = types.FeedReading{
		RawPrice:  new(big.Int).Set(rawPrice),
		Decimals:  decimals,
		UpdatedAt: updatedAt,
	}
}

// UpdateTime moves the observation time of a pair, keeping its price.
func (f *IndexedFeed) UpdateTime(pairIndex uint64, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reading, ok := f.readings[pairIndex]
	if !ok {
		reading = types.ZeroReading(updatedAt)
	}
	reading.UpdatedAt = updatedAt
	f.readings[pairIndex] = reading
}

func (f *IndexedFeed) ReadPair(_ context.Context, pairIndex uint64) (types.FeedReading, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	reading, ok := f.readings[pairIndex]
	if !ok {
		return types.ZeroReading(time.Unix(0, 0)), nil
	}

	return copyReading(reading), nil
}

func copyReading(r types.FeedReading) types.FeedReading {
	r.RawPrice = new(big.Int).Set(r.RawPrice)
	return r
}
