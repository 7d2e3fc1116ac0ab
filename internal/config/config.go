package config

import (
	"math/big"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

// DefaultBaseCurrencyUnit is 1e8, USD with 8 decimals.
var DefaultBaseCurrencyUnit = big.NewInt(100_000_000)

type Config struct {
	BaseCurrency     common.Address `toml:"base_currency"`
	BaseCurrencyUnit *big.Int       `toml:"base_currency_unit"`

	// ACLAdmin may grant and revoke roles.
	ACLAdmin common.Address `toml:"acl_admin"`

	// Operator applies configured bindings and acts for authenticated API calls.
	Operator common.Address `toml:"operator"`

	PoolAdmins         []common.Address `toml:"pool_admins"`
	AssetListingAdmins []common.Address `toml:"asset_listing_admins"`

	// EthRPC is the JSON-RPC endpoint used by on-chain feed sources.
	EthRPC string `toml:"eth_rpc"`

	Primary   PrimaryConfig   `toml:"primary"`
	Secondary SecondaryConfig `toml:"secondary"`
	Stork     StorkConfig     `toml:"stork"`
	API       APIConfig       `toml:"api"`
	Events    EventsConfig    `toml:"events"`

	Assets       []AssetConfig       `toml:"assets"`
	StaticPrices []StaticPriceConfig `toml:"static_prices"`
}

type SourceConfig struct {
	Type     types.FeedProvider `toml:"type"`
	Contract common.Address     `toml:"contract"`
}

type PrimaryConfig struct {
	Source SourceConfig `toml:"source"`
}

type SecondaryConfig struct {
	Source             SourceConfig  `toml:"source"`
	StalenessThreshold time.Duration `toml:"staleness_threshold"`
}

type StorkConfig struct {
	WebsocketURL    string `toml:"websocket_url"`
	WebsocketHeader string `toml:"websocket_header"`
	Message         string `toml:"message"`
	MaxRetries      int    `toml:"max_retries"`
}

type APIConfig struct {
	ListenAddr string `toml:"listen_addr"`
	APIKey     string `toml:"api_key"`
}

type EventsConfig struct {
	History int `toml:"history"`
}

// AssetConfig binds one asset across the tiers. Zero values leave a tier
// unbound. StorkAssetID derives FeedID when FeedID is not set.
type AssetConfig struct {
	Asset        common.Address `toml:"asset"`
	FeedID       common.Hash    `toml:"feed_id"`
	StorkAssetID string         `toml:"stork_asset_id"`
	PairIndex    uint64         `toml:"pair_index"`
	ManualPrice  *big.Int       `toml:"manual_price"`
}

// StaticPriceConfig seeds the in-memory feeds used by the static source
// type. Exactly one of FeedID and PairIndex addresses the reading.
type StaticPriceConfig struct {
	FeedID    common.Hash `toml:"feed_id"`
	PairIndex uint64      `toml:"pair_index"`
	Price     *big.Int    `toml:"price"`
	Decimals  uint8       `toml:"decimals"`
	UpdatedAt time.Time   `toml:"updated_at"`
}

func Default() *Config {
	return &Config{
		BaseCurrencyUnit: new(big.Int).Set(DefaultBaseCurrencyUnit),
		Primary: PrimaryConfig{
			Source: SourceConfig{Type: types.FeedProviderStatic},
		},
		Secondary: SecondaryConfig{
			Source: SourceConfig{Type: types.FeedProviderStatic},
		},
		API: APIConfig{
			ListenAddr: "0.0.0.0:9924",
		},
		Events: EventsConfig{
			History: 1000,
		},
	}
}

// LoadFile reads and validates a TOML config file.
func LoadFile(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	return Parse(body)
}

// Parse decodes a TOML document on top of Default and validates the result.
func Parse(body []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal TOML config")
	}

	// a preset unit would be decoded in place, the default is applied below
	cfg := Default()
	cfg.BaseCurrencyUnit = nil

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			ethTypesHook(),
			bigIntHook(),
		),
		ErrorUnused: true,
		TagName:     "toml",
		Result:      cfg,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to init config decoder")
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if cfg.BaseCurrencyUnit == nil {
		cfg.BaseCurrencyUnit = new(big.Int).Set(DefaultBaseCurrencyUnit)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every problem found at once.
func (c *Config) Validate() (err error) {
	if c.BaseCurrencyUnit == nil || c.BaseCurrencyUnit.Sign() <= 0 {
		err = multierr.Append(err, errors.New("base_currency_unit must be positive"))
	}

	if threshold := c.Secondary.StalenessThreshold; threshold < 0 {
		err = multierr.Append(err, errors.New("secondary.staleness_threshold must not be negative"))
	} else if threshold > 0 && threshold < time.Second {
		err = multierr.Append(err, errors.New("secondary.staleness_threshold must be at least 1s"))
	}

	err = multierr.Append(err, c.Primary.Source.validate("primary.source", c.EthRPC))
	err = multierr.Append(err, c.Secondary.Source.validate("secondary.source", c.EthRPC))

	if c.Primary.Source.Type == types.FeedProviderSupra {
		err = multierr.Append(err, errors.New("primary.source: supra feeds are addressed by pair index"))
	}

	switch c.Secondary.Source.Type {
	case types.FeedProviderPyth, types.FeedProviderStork:
		err = multierr.Append(err, errors.Errorf("secondary.source: %s feeds are addressed by feed id", c.Secondary.Source.Type))
	}

	if c.Primary.Source.Type == types.FeedProviderStork && c.Stork.WebsocketURL == "" {
		err = multierr.Append(err, errors.New("stork.websocket_url is required for the stork source"))
	}

	if len(c.Assets) > 0 && c.Operator == (common.Address{}) {
		err = multierr.Append(err, errors.New("operator is required to apply asset bindings"))
	}

	seen := make(map[common.Address]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		if asset.Asset == (common.Address{}) {
			err = multierr.Append(err, errors.Errorf("assets[%d]: asset address is required", i))
			continue
		}

		if _, ok := seen[asset.Asset]; ok {
			err = multierr.Append(err, errors.Errorf("assets[%d]: duplicate asset %s", i, asset.Asset.Hex()))
		}
		seen[asset.Asset] = struct{}{}

		if asset.FeedID != (common.Hash{}) && asset.StorkAssetID != "" {
			err = multierr.Append(err, errors.Errorf("assets[%d]: feed_id and stork_asset_id are mutually exclusive", i))
		}

		if asset.ManualPrice != nil && asset.ManualPrice.Sign() < 0 {
			err = multierr.Append(err, errors.Errorf("assets[%d]: manual_price must not be negative", i))
		}
	}

	for i, p := range c.StaticPrices {
		hasFeed := p.FeedID != (common.Hash{})
		if hasFeed == (p.PairIndex != 0) {
			err = multierr.Append(err, errors.Errorf("static_prices[%d]: exactly one of feed_id and pair_index must be set", i))
		}

		if p.Price == nil || p.Price.Sign() < 0 {
			err = multierr.Append(err, errors.Errorf("static_prices[%d]: price must be set and not negative", i))
		}
	}

	return err
}

// StorkAssetIDs lists the Stork asset ids referenced by asset bindings.
func (c *Config) StorkAssetIDs() []string {
	var ids []string
	for _, asset := range c.Assets {
		if asset.StorkAssetID != "" {
			ids = append(ids, asset.StorkAssetID)
		}
	}

	return ids
}

func (s SourceConfig) validate(name, ethRPC string) error {
	switch s.Type {
	case types.FeedProviderStatic, types.FeedProviderStork:
		return nil
	case types.FeedProviderPyth, types.FeedProviderSupra:
		var err error
		if s.Contract == (common.Address{}) {
			err = multierr.Append(err, errors.Errorf("%s: contract address is required for %s", name, s.Type))
		}

		if ethRPC == "" {
			err = multierr.Append(err, errors.Errorf("%s: eth_rpc is required for %s", name, s.Type))
		}

		return err
	default:
		return errors.Errorf("%s: unsupported feed provider %q", name, s.Type)
	}
}

var (
	addressType   = reflect.TypeOf(common.Address{})
	hashType      = reflect.TypeOf(common.Hash{})
	bigIntType    = reflect.TypeOf(big.Int{})
	bigIntPtrType = reflect.TypeOf((*big.Int)(nil))
)

func ethTypesHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}

		s := strings.TrimSpace(data.(string))

		switch t {
		case addressType:
			if !common.IsHexAddress(s) {
				return nil, errors.Errorf("invalid address %q", s)
			}

			return common.HexToAddress(s), nil
		case hashType:
			b, err := hexutil.Decode(s)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid feed id %q", s)
			} else if len(b) != common.HashLength {
				return nil, errors.Errorf("invalid feed id %q: expected %d bytes, got %d", s, common.HashLength, len(b))
			}

			return common.BytesToHash(b), nil
		}

		return data, nil
	}
}

func bigIntHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != bigIntPtrType && t != bigIntType {
			return data, nil
		}

		switch f.Kind() {
		case reflect.String:
			v, ok := new(big.Int).SetString(strings.TrimSpace(data.(string)), 0)
			if !ok {
				return nil, errors.Errorf("invalid integer %q", data)
			}

			return v, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return big.NewInt(reflect.ValueOf(data).Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return new(big.Int).SetUint64(reflect.ValueOf(data).Uint()), nil
		}

		return data, nil
	}
}
