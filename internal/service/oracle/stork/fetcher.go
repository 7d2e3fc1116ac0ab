package stork

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/utils"
)

var ErrInvalidMessage = errors.New("received invalid message")

var _ Fetcher = &storkFetcher{}

type storkFetcher struct {
	latest    map[common.Hash]types.FeedReading
	connected bool
	assetIDs  []string
	message   string
	mu        sync.RWMutex

	ready     chan struct{}
	readyOnce sync.Once

	logger  log.Logger
	svcTags metrics.Tags
}

// NewFetcher returns a fetcher that subscribes to the given Stork asset ids
// and caches their latest quantized prices by feed id.
func NewFetcher(storkMessage string, assetIDs []string) *storkFetcher {
	if storkMessage == "" {
		storkMessage = DefaultSubscribeMessage
	}

	return &storkFetcher{
		latest:   make(map[common.Hash]types.FeedReading),
		assetIDs: append([]string(nil), assetIDs...),
		message:  storkMessage,
		ready:    make(chan struct{}),
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"provider": FeedProviderStork,
		}),
		svcTags: metrics.Tags{
			"provider": FeedProviderStork.String(),
		},
	}
}

func (f *storkFetcher) AssetIDs() []string {
	return append([]string(nil), f.assetIDs...)
}

func (f *storkFetcher) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.connected
}

func (f *storkFetcher) Ready() <-chan struct{} {
	return f.ready
}

func (f *storkFetcher) setConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
}

func (f *storkFetcher) Reading(feedID common.Hash) (types.FeedReading, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	reading, ok := f.latest[feedID]
	if !ok {
		return types.FeedReading{}, false
	}

	reading.RawPrice = new(big.Int).Set(reading.RawPrice)
	return reading, true
}

// Start subscribes on conn and consumes messages until the connection
// fails or ctx is cancelled. The cache survives reconnects.
func (f *storkFetcher) Start(ctx context.Context, conn *websocket.Conn) error {
	if err := f.subscribe(conn); err != nil {
		_ = conn.Close()
		return err
	}

	f.setConnected(true)
	defer f.setConnected(false)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, messageRead, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}

			f.logger.Warningln("error reading message:", err)
			return err
		}

		if err := f.handleMessage(messageRead); err != nil {
			_ = conn.Close()
			return err
		}
	}
}

// subscribe sends the initial subscription message to the WebSocket server.
func (f *storkFetcher) subscribe(conn *websocket.Conn) error {
	if len(f.assetIDs) == 0 {
		f.logger.Errorf("no asset ids to subscribe to")
		return errors.New("no asset ids to subscribe to")
	}

	msg := fmt.Sprintf(f.message, strings.Join(f.assetIDs, "\",\""))
	f.logger.Debugln("subscribing:", msg)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		f.logger.Warningln("error writing subscription message:", err)
		return errors.Wrap(err, "failed to subscribe")
	}

	return nil
}

// handleMessage applies one websocket message to the cache. Malformed
// payloads are skipped, an invalid_message reply aborts the session.
func (f *storkFetcher) handleMessage(messageRead []byte) error {
	f.logger.Debugln("received message:", string(messageRead))

	var msgResp messageResponse
	if err := json.Unmarshal(messageRead, &msgResp); err != nil {
		f.logger.Warningln("error unmarshalling feed message:", err)
		return nil
	}

	switch msgResp.Type {
	case messageTypeInvalid.String():
		return errors.Wrap(ErrInvalidMessage, string(msgResp.Data))
	case messageTypeSubscribe.String():
		f.logger.Infof("subscribed to asset ids: %s", strings.Join(f.assetIDs, ","))
	case messageTypeOraclePrices.String():
		var data oracleData
		if err := json.Unmarshal(msgResp.Data, &data); err != nil {
			f.logger.Warningln("error unmarshalling oracle data:", err)
			return nil
		}

		updates := make(map[common.Hash]types.FeedReading, len(data))
		for assetID, assetData := range data {
			reading, err := ConvertDataToReading(assetData)
			if err != nil {
				f.logger.WithField("asset_id", assetID).WithError(err).Warningln("skipping stork price")
				continue
			}

			updates[FeedID(assetID)] = reading
		}

		f.mu.Lock()
		for feedID, reading := range updates {
			f.latest[feedID] = reading
		}
		f.mu.Unlock()

		if len(updates) > 0 {
			f.readyOnce.Do(func() { close(f.ready) })
		}

		metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
			s.Count("price_oracle.stork.received.price.size", int64(len(updates)), tagSpec, 1)
		}, f.svcTags)
	default:
		f.logger.Warningln("received unknown message type:", msgResp.Type)
	}

	return nil
}

// ConvertDataToReading turns a Stork price update into a feed reading. The
// aggregated price is used when present, otherwise the first signed price.
func ConvertDataToReading(data Data) (types.FeedReading, error) {
	quantized := data.Price
	if quantized == "" && len(data.SignedPrices) > 0 {
		quantized = data.SignedPrices[0].Price
	}

	price, ok := math.NewIntFromString(quantized)
	if !ok {
		return types.FeedReading{}, errors.Errorf("invalid quantized price %q", quantized)
	}

	raw := price.BigInt()
	if raw.Sign() < 0 {
		raw.SetInt64(0)
	}

	var ts uint64
	if data.Timestamp > 0 {
		ts = utils.ConvertTimestampToSecond(uint64(data.Timestamp))
	}

	return types.FeedReading{
		RawPrice:  raw,
		Decimals:  Decimals,
		UpdatedAt: time.Unix(int64(ts), 0),
	}, nil
}
