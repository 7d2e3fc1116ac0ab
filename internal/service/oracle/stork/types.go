package stork

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

const FeedProviderStork = types.FeedProviderStork

// Decimals of the quantized prices Stork publishes.
const Decimals = 18

// DefaultSubscribeMessage is formatted with the quoted, comma joined asset ids.
const DefaultSubscribeMessage = `{"type":"subscribe","trace_id":"lending-price-oracle","data":["%s"]}`

type Fetcher interface {
	Start(ctx context.Context, conn *websocket.Conn) error
	Reading(feedID common.Hash) (types.FeedReading, bool)
	AssetIDs() []string

	// Connected reports whether a subscribed session is being read.
	Connected() bool
	// Ready is closed once the first prices have been cached.
	Ready() <-chan struct{}
}

// FeedID derives the feed identifier of a Stork asset id, keccak256(assetID).
func FeedID(assetID string) common.Hash {
	return crypto.Keccak256Hash([]byte(assetID))
}
