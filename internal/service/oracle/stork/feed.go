package stork

import (
	"context"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/utils"
)

const DefaultMaxRetries = 5

type Config struct {
	WebsocketURL    string
	WebsocketHeader string
	Message         string
	AssetIDs        []string
	MaxRetries      int
}

var _ types.PriceFeedSource = &Feed{}

// Feed serves readings from a streaming Stork fetcher. Feeds not seen yet
// read as zero, which sends the primary tier to its fallback.
type Feed struct {
	cfg     Config
	fetcher Fetcher

	logger  log.Logger
	svcTags metrics.Tags
}

func NewFeed(cfg Config, fetcher Fetcher) *Feed {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	if fetcher == nil {
		fetcher = NewFetcher(cfg.Message, cfg.AssetIDs)
	}

	return &Feed{
		cfg:     cfg,
		fetcher: fetcher,
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"provider": FeedProviderStork,
		}),
		svcTags: metrics.Tags{
			"provider": FeedProviderStork.String(),
		},
	}
}

func (f *Feed) String() string {
	return FeedProviderStork.String()
}

func (f *Feed) ReadPrice(_ context.Context, feedID common.Hash) (types.FeedReading, error) {
	metrics.ReportFuncCall(f.svcTags)

	reading, ok := f.fetcher.Reading(feedID)
	if !ok {
		return types.ZeroReading(time.Unix(0, 0)), nil
	}

	return reading, nil
}

// Connected reports whether the websocket session is up and subscribed.
func (f *Feed) Connected() bool {
	return f.fetcher.Connected()
}

// WaitReady blocks until the first prices arrive or ctx is done.
func (f *Feed) WaitReady(ctx context.Context) error {
	select {
	case <-f.fetcher.Ready():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "no stork prices received")
	}
}

// Run keeps the websocket session alive until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	if f.cfg.WebsocketURL == "" {
		return errors.New("stork websocket url is not set")
	}

	b := utils.NewBackoff()
	for {
		conn, err := utils.ConnectWebSocket(ctx, f.cfg.WebsocketURL, f.cfg.WebsocketHeader, f.cfg.MaxRetries)
		if ctx.Err() != nil {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "failed to connect to stork websocket")
		}

		startedAt := time.Now()
		err = f.fetcher.Start(ctx, conn)
		if ctx.Err() != nil {
			f.logger.Infoln("context cancelled, stopping stork feed")
			return nil
		}

		if time.Since(startedAt) > time.Minute {
			b.Reset()
		}

		wait := b.Duration()
		f.logger.WithError(err).Warningf("stork session ended, reconnecting in %s", wait)
		metrics.ReportFuncError(f.svcTags)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
