package pyth

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

const FeedProviderPyth = types.FeedProviderPyth

// ABI covers the single Pyth method the feed needs.
const ABI = `[
	{
		"inputs": [{"internalType": "bytes32", "name": "id", "type": "bytes32"}],
		"name": "getPriceUnsafe",
		"outputs": [
			{
				"components": [
					{"internalType": "int64", "name": "price", "type": "int64"},
					{"internalType": "uint64", "name": "conf", "type": "uint64"},
					{"internalType": "int32", "name": "expo", "type": "int32"},
					{"internalType": "uint256", "name": "publishTime", "type": "uint256"}
				],
				"internalType": "struct PythStructs.Price",
				"name": "price",
				"type": "tuple"
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Price mirrors PythStructs.Price.
type Price struct {
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime *big.Int
}

var _ types.PriceFeedSource = &Feed{}

// Feed reads prices from a Pyth contract through any contract caller
// (usually an ethclient.Client).
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
			"provider": FeedProviderPyth,
			"contract": contract.Hex(),
		}),
		svcTags: metrics.Tags{
			"provider": FeedProviderPyth.String(),
		},
	}, nil
}

func (f *Feed) String() string {
	return "pyth:" + f.contract.Hex()
}

func (f *Feed) ReadPrice(ctx context.Context, feedID common.Hash) (reading types.FeedReading, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(f.svcTags)(&err)

	callData, err := f.abi.Pack("getPriceUnsafe", [32]byte(feedID))
	if err != nil {
		return reading, errors.Wrap(err, "packing getPriceUnsafe")
	}

	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &f.contract,
		Data: callData,
	}, nil)
	if err != nil {
		return reading, errors.Wrapf(err, "calling getPriceUnsafe(%s)", feedID.Hex())
	}

	unpacked, err := f.abi.Unpack("getPriceUnsafe", out)
	if err != nil {
		return reading, errors.Wrapf(err, "unpacking getPriceUnsafe(%s)", feedID.Hex())
	} else if len(unpacked) != 1 {
		return reading, errors.Errorf("expected 1 return value from getPriceUnsafe, got %d", len(unpacked))
	}

	price, ok := abi.ConvertType(unpacked[0], new(Price)).(*Price)
	if !ok {
		return reading, errors.New("unexpected return type from getPriceUnsafe")
	}

	return ToReading(*price)
}

// maxExpo bounds positive exponents, 10^77 is the largest power of ten a
// uint256 holds.
const maxExpo = 77

// ToReading converts a Pyth price with exponent into a feed reading.
// Negative prices read as zero.
func ToReading(p Price) (types.FeedReading, error) {
	raw := big.NewInt(p.Price)
	if raw.Sign() < 0 {
		raw.SetInt64(0)
	}

	var decimals uint8
	switch {
	case p.Expo > maxExpo:
		return types.FeedReading{}, errors.Errorf("pyth exponent %d out of range", p.Expo)
	case p.Expo > 0:
		raw.Mul(raw, utils.Pow10(uint64(p.Expo)))
	case -int64(p.Expo) > 255:
		return types.FeedReading{}, errors.Errorf("pyth exponent %d out of range", p.Expo)
	default:
		decimals = uint8(-p.Expo)
	}

	var updatedAt time.Time
	if p.PublishTime != nil && p.PublishTime.IsUint64() {
		updatedAt = time.Unix(int64(utils.ConvertTimestampToSecond(p.PublishTime.Uint64())), 0)
	} else {
		updatedAt = time.Unix(0, 0)
	}

	return types.FeedReading{
		RawPrice:  raw,
		Decimals:  decimals,
		UpdatedAt: updatedAt,
	}, nil
}
