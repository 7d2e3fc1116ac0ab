package oracle

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/config"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/acl"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/manual"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/memfeed"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/pyth"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/stork"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/supra"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

type Service interface {
	Start(ctx context.Context) error
	Close()

	Primary() *PrimaryOracle
	Secondary() *SecondaryOracle
	Manual() *manual.Oracle
	ACL() *acl.Manager
	Events() *Recorder
	Operator() common.Address

	// Probes returns health checks that exercise the configured sources.
	Probes() map[string]func(ctx context.Context) error
	// WaitReady blocks until streaming sources have delivered prices.
	WaitReady(ctx context.Context) error
}

type blockNumberReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

type oracleSvc struct {
	cfg *config.Config

	acl       *acl.Manager
	manual    *manual.Oracle
	secondary *SecondaryOracle
	primary   *PrimaryOracle
	recorder  *Recorder

	storkFeed *stork.Feed
	ethClient *ethclient.Client
	caller    ethereum.ContractCaller

	logger  log.Logger
	svcTags metrics.Tags
}

// NewService wires the resolution chain primary -> secondary -> manual from
// cfg and applies the configured bindings as the operator. caller serves
// on-chain sources; when nil and one is configured, cfg.EthRPC is dialed.
func NewService(ctx context.Context, cfg *config.Config, caller ethereum.ContractCaller) (Service, error) {
	svc := &oracleSvc{
		cfg:    cfg,
		caller: caller,
		logger: log.WithField("svc", "oracle"),
		svcTags: metrics.Tags{
			"svc": "price_oracle",
		},
	}

	aclAdmin := cfg.ACLAdmin
	if aclAdmin == (common.Address{}) {
		aclAdmin = cfg.Operator
	}

	svc.acl = acl.NewManager(aclAdmin)
	if err := svc.grantRoles(aclAdmin); err != nil {
		return nil, err
	}

	svc.recorder = NewRecorder(cfg.Events.History)
	events := MultiSink{
		svc.recorder,
		NewLogSink(svc.logger),
		NewMetricsSink(svc.svcTags),
	}

	svc.manual = manual.NewOracle(svc.acl)

	indexedSource, err := svc.indexedSource(ctx)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.secondary, err = NewSecondaryOracle(SecondaryConfig{
		BaseCurrency:       cfg.BaseCurrency,
		BaseCurrencyUnit:   cfg.BaseCurrencyUnit,
		Source:             indexedSource,
		Fallback:           svc.manual,
		Authorizer:         svc.acl,
		Events:             events,
		StalenessThreshold: cfg.Secondary.StalenessThreshold,
	})
	if err != nil {
		svc.Close()
		return nil, errors.Wrap(err, "failed to init secondary oracle")
	}

	priceSource, err := svc.priceSource(ctx)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.primary, err = NewPrimaryOracle(PrimaryConfig{
		BaseCurrency:     cfg.BaseCurrency,
		BaseCurrencyUnit: cfg.BaseCurrencyUnit,
		Source:           priceSource,
		Fallback:         svc.secondary,
		Authorizer:       svc.acl,
		Events:           events,
	})
	if err != nil {
		svc.Close()
		return nil, errors.Wrap(err, "failed to init primary oracle")
	}

	if err := svc.applyBindings(); err != nil {
		svc.Close()
		return nil, err
	}

	svc.logger.WithFields(log.Fields{
		"primary_source":   types.Describe(priceSource),
		"secondary_source": types.Describe(indexedSource),
		"assets":           len(cfg.Assets),
	}).Infoln("initialized price oracle chain")

	return svc, nil
}

func (s *oracleSvc) grantRoles(aclAdmin common.Address) error {
	grants := map[types.Role][]common.Address{
		types.RolePoolAdmin:         s.cfg.PoolAdmins,
		types.RoleAssetListingAdmin: s.cfg.AssetListingAdmins,
	}

	if s.cfg.Operator != (common.Address{}) {
		grants[types.RolePoolAdmin] = append([]common.Address{s.cfg.Operator}, grants[types.RolePoolAdmin]...)
	}

	for role, accounts := range grants {
		for _, account := range accounts {
			if err := s.acl.GrantRole(aclAdmin, role, account); err != nil {
				return errors.Wrapf(err, "failed to grant %s to %s", role, account.Hex())
			}
		}
	}

	return nil
}

func (s *oracleSvc) contractCaller(ctx context.Context) (ethereum.ContractCaller, error) {
	if s.caller != nil {
		return s.caller, nil
	}

	client, err := ethclient.DialContext(ctx, s.cfg.EthRPC)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial eth rpc %s", s.cfg.EthRPC)
	}

	s.ethClient = client
	s.caller = client
	return client, nil
}

func (s *oracleSvc) priceSource(ctx context.Context) (types.PriceFeedSource, error) {
	src := s.cfg.Primary.Source

	switch src.Type {
	case types.FeedProviderStatic:
		feed := memfeed.NewPriceFeed("static")
		for _, p := range s.cfg.StaticPrices {
			if p.FeedID != (common.Hash{}) {
				feed.SetPrice(p.FeedID, p.Price, p.Decimals, staticTime(p.UpdatedAt))
			}
		}

		return feed, nil
	case types.FeedProviderPyth:
		caller, err := s.contractCaller(ctx)
		if err != nil {
			return nil, err
		}

		feed, err := pyth.NewFeed(caller, src.Contract)
		if err != nil {
			return nil, errors.Wrap(err, "failed to init pyth feed")
		}

		return feed, nil
	case types.FeedProviderStork:
		s.storkFeed = stork.NewFeed(stork.Config{
			WebsocketURL:    s.cfg.Stork.WebsocketURL,
			WebsocketHeader: s.cfg.Stork.WebsocketHeader,
			Message:         s.cfg.Stork.Message,
			AssetIDs:        s.cfg.StorkAssetIDs(),
			MaxRetries:      s.cfg.Stork.MaxRetries,
		}, nil)

		return s.storkFeed, nil
	default:
		return nil, errors.Errorf("unsupported primary feed provider %q", src.Type)
	}
}

func (s *oracleSvc) indexedSource(ctx context.Context) (types.IndexedFeedSource, error) {
	src := s.cfg.Secondary.Source

	switch src.Type {
	case types.FeedProviderStatic:
		feed := memfeed.NewIndexedFeed("static")
		for _, p := range s.cfg.StaticPrices {
			if p.PairIndex != 0 {
				feed.SetPair(p.PairIndex, p.Price, p.Decimals, staticTime(p.UpdatedAt))
			}
		}

		return feed, nil
	case types.FeedProviderSupra:
		caller, err := s.contractCaller(ctx)
		if err != nil {
			return nil, err
		}

		feed, err := supra.NewFeed(caller, src.Contract)
		if err != nil {
			return nil, errors.Wrap(err, "failed to init supra feed")
		}

		return feed, nil
	default:
		return nil, errors.Errorf("unsupported secondary feed provider %q", src.Type)
	}
}

// applyBindings pushes configured bindings through the admin setters so
// they emit the same notifications as runtime changes.
func (s *oracleSvc) applyBindings() error {
	var (
		feedAssets []common.Address
		feedIDs    []common.Hash
		pairAssets []common.Address
		pairs      []uint64
	)

	for _, asset := range s.cfg.Assets {
		feedID := asset.FeedID
		if asset.StorkAssetID != "" {
			feedID = stork.FeedID(asset.StorkAssetID)
		}

		if feedID != (common.Hash{}) {
			feedAssets = append(feedAssets, asset.Asset)
			feedIDs = append(feedIDs, feedID)
		}

		if asset.PairIndex != 0 {
			pairAssets = append(pairAssets, asset.Asset)
			pairs = append(pairs, asset.PairIndex)
		}

		if asset.ManualPrice != nil && asset.ManualPrice.Sign() > 0 {
			if err := s.manual.SetAssetPrice(s.cfg.Operator, asset.Asset, asset.ManualPrice); err != nil {
				return errors.Wrapf(err, "failed to set manual price of %s", asset.Asset.Hex())
			}
		}
	}

	if len(feedAssets) > 0 {
		if err := s.primary.SetAssetPriceFeedIDs(s.cfg.Operator, feedAssets, feedIDs); err != nil {
			return errors.Wrap(err, "failed to apply feed id bindings")
		}
	}

	if len(pairAssets) > 0 {
		if err := s.secondary.SetAssetPairIndexes(s.cfg.Operator, pairAssets, pairs); err != nil {
			return errors.Wrap(err, "failed to apply pair index bindings")
		}
	}

	return nil
}

func staticTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}

	return t
}

func (s *oracleSvc) Primary() *PrimaryOracle     { return s.primary }
func (s *oracleSvc) Secondary() *SecondaryOracle { return s.secondary }
func (s *oracleSvc) Manual() *manual.Oracle      { return s.manual }
func (s *oracleSvc) ACL() *acl.Manager           { return s.acl }
func (s *oracleSvc) Events() *Recorder           { return s.recorder }
func (s *oracleSvc) Operator() common.Address    { return s.cfg.Operator }

func (s *oracleSvc) Probes() map[string]func(ctx context.Context) error {
	probes := make(map[string]func(ctx context.Context) error)

	if reader, ok := s.caller.(blockNumberReader); ok && s.usesChain() {
		probes["eth_rpc"] = func(ctx context.Context) error {
			_, err := reader.BlockNumber(ctx)
			return errors.Wrap(err, "failed to get block number")
		}
	}

	if feed := s.storkFeed; feed != nil {
		probes["stork"] = func(context.Context) error {
			if !feed.Connected() {
				return errors.New("stork websocket is not connected")
			}

			return nil
		}
	}

	if len(s.cfg.Assets) > 0 {
		asset := s.cfg.Assets[0].Asset
		probes["oracle"] = func(ctx context.Context) error {
			_, err := s.primary.GetAssetPrice(ctx, asset)
			return errors.Wrapf(err, "failed to resolve %s", asset.Hex())
		}
	}

	return probes
}

func (s *oracleSvc) usesChain() bool {
	return s.cfg.Primary.Source.Type == types.FeedProviderPyth ||
		s.cfg.Secondary.Source.Type == types.FeedProviderSupra
}

func (s *oracleSvc) WaitReady(ctx context.Context) error {
	if s.storkFeed == nil {
		return nil
	}

	return s.storkFeed.WaitReady(ctx)
}

// Start runs streaming feeds until ctx is cancelled.
func (s *oracleSvc) Start(ctx context.Context) (err error) {
	defer s.panicRecover(&err)

	if s.storkFeed == nil {
		<-ctx.Done()
		return nil
	}

	s.logger.Infoln("starting stork feed for", len(s.cfg.StorkAssetIDs()), "assets")
	return s.storkFeed.Run(ctx)
}

func (s *oracleSvc) panicRecover(err *error) {
	if r := recover(); r != nil {
		*err = errors.Errorf("%v", r)

		if e, ok := r.(error); ok {
			s.logger.WithError(e).Errorln("service main loop panicked with an error")
			s.logger.Debugln(string(debug.Stack()))
		} else {
			s.logger.Errorln(r)
		}
	}
}

func (s *oracleSvc) Close() {
	if s.ethClient != nil {
		s.ethClient.Close()
		s.ethClient = nil
	}
}
