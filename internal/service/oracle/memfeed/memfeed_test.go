package memfeed

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceFeed(t *testing.T) {
	ctx := context.Background()
	feed := NewPriceFeed("static")
	assert.Equal(t, "static", feed.String())

	feedID := common.HexToHash("0x01")
	at := time.Unix(1_700_000_000, 0)

	reading, err := feed.ReadPrice(ctx, feedID)
	require.NoError(t, err)
	assert.Equal(t, 0, reading.RawPrice.Sign())
	assert.Equal(t, int64(0), reading.UpdatedAt.Unix())

	raw := big.NewInt(1234)
	feed.SetPrice(feedID, raw, 2, at)
	raw.SetInt64(0)

	reading, err = feed.ReadPrice(ctx, feedID)
	require.NoError(t, err)
	assert.Equal(t, "1234", reading.RawPrice.String())
	assert.Equal(t, uint8(2), reading.Decimals)
	assert.Equal(t, at, reading.UpdatedAt)

	reading.RawPrice.SetInt64(99)
	reading, err = feed.ReadPrice(ctx, feedID)
	require.NoError(t, err)
	assert.Equal(t, "1234", reading.RawPrice.String())
}

func TestIndexedFeed(t *testing.T) {
	ctx := context.Background()
	feed := NewIndexedFeed("indexed")
	at := time.Unix(1_700_000_000, 0)

	reading, err := feed.ReadPair(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, reading.RawPrice.Sign())
	assert.Equal(t, int64(0), reading.UpdatedAt.Unix())

	feed.SetPair(3, big.NewInt(42), 1, at)
	feed.UpdateTime(3, at.Add(time.Minute))

	reading, err = feed.ReadPair(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "42", reading.RawPrice.String())
	assert.Equal(t, uint8(1), reading.Decimals)
	assert.Equal(t, at.Add(time.Minute), reading.UpdatedAt)

	feed.UpdateTime(4, at)
	reading, err = feed.ReadPair(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, reading.RawPrice.Sign())
	assert.Equal(t, at, reading.UpdatedAt)
}
