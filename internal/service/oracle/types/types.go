package types

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceOracle is anything able to price an asset in base currency units.
type PriceOracle interface {
	GetAssetPrice(ctx context.Context, asset common.Address) (*big.Int, error)
}

// PriceFeedSource is a feed addressed by a 32-byte feed identifier.
type PriceFeedSource interface {
	ReadPrice(ctx context.Context, feedID common.Hash) (FeedReading, error)
}

// IndexedFeedSource is a feed addressed by a numeric pair index.
type IndexedFeedSource interface {
	ReadPair(ctx context.Context, pairIndex uint64) (FeedReading, error)
}

// FeedReading is a single observation returned by a feed source.
type FeedReading struct {
	// RawPrice is the non-negative integer price as reported by the feed
	RawPrice *big.Int

	// Decimals is the number of decimals RawPrice is expressed with
	Decimals uint8

	// UpdatedAt is the time of the observation, not consulted by the primary tier
	UpdatedAt time.Time
}

// ZeroReading returns a reading with zero price observed at t.
func ZeroReading(t time.Time) FeedReading {
	return FeedReading{
		RawPrice:  new(big.Int),
		UpdatedAt: t,
	}
}

// Role is an administrative capability.
type Role string

func (r Role) String() string {
	return string(r)
}

const (
	RolePoolAdmin         Role = "pool_admin"
	RoleAssetListingAdmin Role = "asset_listing_admin"
)

// Authorizer answers capability checks for admin-gated operations.
type Authorizer interface {
	HasAnyRole(caller common.Address, roles ...Role) bool
}

// Clock returns the current time.
type Clock func() time.Time

// FeedProvider represents the type of price feed provider
type FeedProvider string

func (f FeedProvider) String() string {
	return string(f)
}

const (
	FeedProviderPyth   FeedProvider = "pyth"
	FeedProviderStork  FeedProvider = "stork"
	FeedProviderSupra  FeedProvider = "supra"
	FeedProviderStatic FeedProvider = "static"
)

// Describe returns a printable name for an oracle or feed reference.
func Describe(ref interface{}) string {
	if ref == nil {
		return "<none>"
	}

	if s, ok := ref.(fmt.Stringer); ok {
		return s.String()
	}

	return fmt.Sprintf("%T", ref)
}
