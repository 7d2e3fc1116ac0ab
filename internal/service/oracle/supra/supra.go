package supra

import (
	"context"
	"math/big"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/utils"
)

const FeedProviderSupra = types.FeedProviderSupra

// ABI covers getSvalue of the Supra S-Value feed.
const ABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "_pairIndex", "type": "uint256"}],
		"name": "getSvalue",
		"outputs": [
			{
				"components": [
					{"internalType": "uint256", "name": "round", "type": "uint256"},
					{"internalType": "uint256", "name": "decimals", "type": "uint256"},
					{"internalType": "uint256", "name": "time", "type": "uint256"},
					{"internalType": "uint256", "name": "price", "type": "uint256"}
				],
				"internalType": "struct ISupraSValueFeed.priceFeed",
				"name": "",
				"type": "tuple"
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// SValue mirrors ISupraSValueFeed.priceFeed.
type SValue struct {
	Round    *big.Int
	Decimals *big.Int
	Time     *big.Int
	Price    *big.Int
}

var _ types.IndexedFeedSource = &Feed{}

// Feed reads pair prices from a Supra S-Value feed contract.
type Feed struct {
	caller   ethereum.ContractCaller
	contract common.Address
	abi      *abi.ABI

	logger  log.Logger
	svcTags metrics.Tags
}

func NewFeed(caller ethereum.ContractCaller, contract common.Address) (*Feed, error) {
	parsed, err := utils.ParseABI(ABI)
	if err != nil {
		return nil, err
	}

	return &Feed{
		caller:   caller,
		contract: contract,
		abi:      parsed,
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"provider": FeedProviderSupra,
			"contract": contract.Hex(),
		}),
		svcTags: metrics.Tags{
			"provider": FeedProviderSupra.String(),
		},
	}, nil
}

func (f *Feed) String() string {
	return "supra:" + f.contract.Hex()
}

func (f *Feed) ReadPair(ctx context.Context, pairIndex uint64) (reading types.FeedReading, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(f.svcTags)(&err)

	callData, err := f.abi.Pack("getSvalue", new(big.Int).SetUint64(pairIndex))
	if err != nil {
		return reading, errors.Wrap(err, "packing getSvalue")
	}

	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &f.contract,
		Data: callData,
	}, nil)
	if err != nil {
		return reading, errors.Wrapf(err, "calling getSvalue(%d)", pairIndex)
	}

	unpacked, err := f.abi.Unpack("getSvalue", out)
	if err != nil {
		return reading, errors.Wrapf(err, "unpacking getSvalue(%d)", pairIndex)
	} else if len(unpacked) != 1 {
		return reading, errors.Errorf("expected 1 return value from getSvalue, got %d", len(unpacked))
	}

	value, ok := abi.ConvertType(unpacked[0], new(SValue)).(*SValue)
	if !ok {
		return reading, errors.New("unexpected return type from getSvalue")
	}

	f.logger.WithFields(log.Fields{
		"pair_index": pairIndex,
		"round":      value.Round.String(),
		"price":      value.Price.String(),
	}).Debugln("read s-value")

	return ToReading(*value)
}

// ToReading converts an S-Value into a feed reading, normalizing its
// timestamp to seconds.
func ToReading(v SValue) (types.FeedReading, error) {
	if v.Decimals == nil || !v.Decimals.IsUint64() || v.Decimals.Uint64() > 255 {
		return types.FeedReading{}, errors.Errorf("supra decimals %v out of range", v.Decimals)
	}

	raw := new(big.Int)
	if v.Price != nil {
		raw.Set(v.Price)
	}

	updatedAt := time.Unix(0, 0)
	if v.Time != nil && v.Time.IsUint64() {
		updatedAt = time.Unix(int64(utils.ConvertTimestampToSecond(v.Time.Uint64())), 0)
	}

	return types.FeedReading{
		RawPrice:  raw,
		Decimals:  uint8(v.Decimals.Uint64()),
		UpdatedAt: updatedAt,
	}, nil
}
