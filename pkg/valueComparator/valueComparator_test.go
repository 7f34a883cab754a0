package valueComparator

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOracle struct {
	prices map[string]decimal.Decimal
}

func (f *fakeOracle) PriceUSD(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if p, ok := f.prices[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, flowErrors.NewFlowError(flowErrors.FlowError_PriceNotFound, fmt.Errorf("unlisted %s", symbol))
}

func setup() (*zap.Logger, *ValueComparatorConfig) {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	return l, &ValueComparatorConfig{
		TolerancePercent: 1,
		ToleranceUsd:     decimal.NewFromInt(5),
		MaxSubsetPool:    16,
	}
}

func ether(s string) *big.Int {
	d := decimal.RequireFromString(s).Shift(18)
	return d.BigInt()
}

func transfer(hash string, block uint64, amount *big.Int) *Transfer {
	return &Transfer{
		Hash:        hash,
		BlockNumber: block,
		From:        "0xa",
		To:          "0xb",
		Amount:      amount,
		Time:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(block) * 12 * time.Second),
	}
}

func Test_ValueComparator(t *testing.T) {
	l, cfg := setup()
	eth := Asset{Symbol: "ETH", Decimals: 18}
	units := Asset{Symbol: "UNIT", Decimals: 0}
	oracle := &fakeOracle{prices: map[string]decimal.Decimal{
		"ETH":  decimal.NewFromInt(60),
		"UNIT": decimal.NewFromInt(1),
	}}

	t.Run("Test direct match within the USD tolerance", func(t *testing.T) {
		vc := NewValueComparator(oracle, cfg, l)
		parent := transfer("0x01", 10, ether("10"))
		candidate := transfer("0x02", 11, ether("9.98"))

		res, err := vc.Compare(context.Background(), &ComparisonInput{Asset: eth, Parent: parent, Candidate: candidate})
		require.Nil(t, err)
		assert.Equal(t, Classification_Direct, res.Classification)
		assert.Equal(t, MatchBasis_Usd, res.Basis)
		assert.Equal(t, "600.00", res.ParentUsd)
		assert.Equal(t, "598.80", res.CandidateUsd)
		assert.Equal(t, []string{"0x02"}, res.MatchedHashes)
	})
	t.Run("Test a difference beyond the USD tolerance is not direct", func(t *testing.T) {
		vc := NewValueComparator(oracle, cfg, l)
		parent := transfer("0x01", 10, ether("10"))
		candidate := transfer("0x02", 11, ether("9.0"))

		res, err := vc.Compare(context.Background(), &ComparisonInput{Asset: eth, Parent: parent, Candidate: candidate})
		require.Nil(t, err)
		assert.NotEqual(t, Classification_Direct, res.Classification)
		assert.Equal(t, Classification_Unknown, res.Classification)
		assert.Equal(t, "540.00", res.CandidateUsd)
	})
	t.Run("Test a priced lone transfer beyond the USD tolerance is a split, not direct", func(t *testing.T) {
		priced := &fakeOracle{prices: map[string]decimal.Decimal{"ETH": decimal.NewFromInt(3000)}}
		vc := NewValueComparator(priced, &ValueComparatorConfig{
			TolerancePercent: 1,
			ToleranceUsd:     decimal.NewFromInt(150),
			MaxSubsetPool:    16,
		}, l)
		parent := transfer("0x01", 10, ether("10"))
		candidate := transfer("0x02", 11, ether("9.92"))

		res, err := vc.Compare(context.Background(), &ComparisonInput{
			Asset:        eth,
			Parent:       parent,
			Candidate:    candidate,
			OutgoingPool: []*Transfer{candidate},
		})
		require.Nil(t, err)
		assert.False(t, res.PriceMissing)
		assert.Equal(t, "30000.00", res.ParentUsd)
		assert.Equal(t, "29760.00", res.CandidateUsd)
		assert.Equal(t, Classification_Split, res.Classification)
		assert.NotEqual(t, MatchBasis_Amount, res.Basis)
		assert.Equal(t, []string{"0x02"}, res.MatchedHashes)
	})
	t.Run("Test split across sibling outgoing transfers", func(t *testing.T) {
		vc := NewValueComparator(oracle, cfg, l)
		parent := transfer("0x01", 10, big.NewInt(100))
		a := transfer("0x0a", 11, big.NewInt(30))
		b := transfer("0x0b", 12, big.NewInt(30))
		c := transfer("0x0c", 13, big.NewInt(40))

		res, err := vc.Compare(context.Background(), &ComparisonInput{
			Asset:        units,
			Parent:       parent,
			Candidate:    c,
			OutgoingPool: []*Transfer{c, b, a},
		})
		require.Nil(t, err)
		assert.Equal(t, Classification_Split, res.Classification)
		assert.Equal(t, []string{"0x0a", "0x0b", "0x0c"}, res.MatchedHashes)
	})
	t.Run("Test sum of incoming deposits", func(t *testing.T) {
		vc := NewValueComparator(oracle, cfg, l)
		parent := transfer("0x01", 10, big.NewInt(60))
		other := transfer("0x02", 11, big.NewInt(40))
		candidate := transfer("0x03", 12, big.NewInt(100))

		res, err := vc.Compare(context.Background(), &ComparisonInput{
			Asset:        units,
			Parent:       parent,
			Candidate:    candidate,
			OutgoingPool: []*Transfer{candidate},
			IncomingPool: []*Transfer{parent, other},
		})
		require.Nil(t, err)
		assert.Equal(t, Classification_Sum, res.Classification)
		assert.Equal(t, []string{"0x01", "0x02"}, res.MatchedHashes)
	})
	t.Run("Test missing price falls back to amount matching", func(t *testing.T) {
		vc := NewValueComparator(oracle, cfg, l)
		token := Asset{Symbol: "NOPE", Decimals: 18}
		parent := transfer("0x01", 10, ether("10"))
		candidate := transfer("0x02", 11, ether("9.95"))

		res, err := vc.Compare(context.Background(), &ComparisonInput{Asset: token, Parent: parent, Candidate: candidate})
		require.Nil(t, err)
		assert.True(t, res.PriceMissing)
		assert.Equal(t, Classification_Direct, res.Classification)
		assert.Equal(t, MatchBasis_Amount, res.Basis)
		assert.Equal(t, "", res.ParentUsd)
	})
	t.Run("Test missing price with no subset is unknown", func(t *testing.T) {
		vc := NewValueComparator(nil, cfg, l)
		parent := transfer("0x01", 10, big.NewInt(100))
		candidate := transfer("0x02", 11, big.NewInt(10))

		res, err := vc.Compare(context.Background(), &ComparisonInput{Asset: units, Parent: parent, Candidate: candidate})
		require.Nil(t, err)
		assert.True(t, res.PriceMissing)
		assert.Equal(t, Classification_Unknown, res.Classification)
		assert.Nil(t, res.MatchedHashes)
	})
	t.Run("Test earliest subset of the smallest size wins", func(t *testing.T) {
		vc := NewValueComparator(nil, cfg, l)
		parent := transfer("0x01", 1, big.NewInt(100))
		a := transfer("0x0a", 2, big.NewInt(50))
		b := transfer("0x0b", 3, big.NewInt(50))
		c := transfer("0x0c", 4, big.NewInt(50))
		d := transfer("0x0d", 5, big.NewInt(25))
		e := transfer("0x0e", 6, big.NewInt(25))

		res, err := vc.Compare(context.Background(), &ComparisonInput{
			Asset:        units,
			Parent:       parent,
			Candidate:    c,
			OutgoingPool: []*Transfer{e, d, c, b, a},
		})
		require.Nil(t, err)
		assert.Equal(t, Classification_Split, res.Classification)
		assert.Equal(t, []string{"0x0a", "0x0c"}, res.MatchedHashes)
	})
	t.Run("Test cancelled context is returned", func(t *testing.T) {
		vc := NewValueComparator(oracle, cfg, l)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := vc.Compare(ctx, &ComparisonInput{
			Asset:     eth,
			Parent:    transfer("0x01", 1, ether("1")),
			Candidate: transfer("0x02", 2, ether("1")),
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("Test oversized pools keep the required transfer", func(t *testing.T) {
		small := &ValueComparatorConfig{TolerancePercent: 0, ToleranceUsd: decimal.Zero, MaxSubsetPool: 3}
		vc := NewValueComparator(nil, small, l)

		pool := make([]*Transfer, 0)
		for i := 0; i < 6; i++ {
			pool = append(pool, transfer(fmt.Sprintf("0x%02d", i), uint64(i), big.NewInt(1)))
		}
		bounded := vc.boundPool(pool, pool[5])
		require.Len(t, bounded, 3)
		assert.Equal(t, "0x00", bounded[0].Hash)
		assert.Equal(t, "0x01", bounded[1].Hash)
		assert.Equal(t, "0x05", bounded[2].Hash)
	})
}

func Test_findSubset(t *testing.T) {
	amounts := []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30), big.NewInt(40)}

	t.Run("Test required element is always part of the subset", func(t *testing.T) {
		assert.Equal(t, []int{0, 3}, findSubset(amounts, 0, big.NewInt(50), 0))
		assert.Equal(t, []int{1, 2}, findSubset(amounts, 1, big.NewInt(50), 0))
		assert.Equal(t, []int{3}, findSubset(amounts, 3, big.NewInt(40), 0))
	})
	t.Run("Test percentage tolerance", func(t *testing.T) {
		assert.Nil(t, findSubset(amounts, 2, big.NewInt(33), 5))
		assert.Equal(t, []int{2}, findSubset(amounts, 2, big.NewInt(31), 5))
	})
	t.Run("Test no match and invalid required index", func(t *testing.T) {
		assert.Nil(t, findSubset(amounts, 0, big.NewInt(1000), 1))
		assert.Nil(t, findSubset(amounts, -1, big.NewInt(10), 1))
		assert.Nil(t, findSubset(nil, 0, big.NewInt(10), 1))
	})
	t.Run("Test full pool", func(t *testing.T) {
		assert.Equal(t, []int{0, 1, 2, 3}, findSubset(amounts, 2, big.NewInt(100), 0))
	})
}
