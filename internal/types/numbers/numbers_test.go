package numbers

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func Test_numbers(t *testing.T) {
	t.Run("Test BigQuantity serializes as a decimal string", func(t *testing.T) {
		v, ok := new(big.Int).SetString("13389173346000000000000000123", 10)
		assert.True(t, ok)

		b, err := json.Marshal(NewBigQuantity(v))
		assert.Nil(t, err)
		assert.Equal(t, `"13389173346000000000000000123"`, string(b))

		out := &BigQuantity{}
		assert.Nil(t, json.Unmarshal(b, out))
		assert.Equal(t, 0, v.Cmp(out.Big()))
	})
	t.Run("Test BigQuantity accepts hex and bare numbers", func(t *testing.T) {
		q := &BigQuantity{}
		assert.Nil(t, json.Unmarshal([]byte(`"0x0de0b6b3a7640000"`), q))
		assert.Equal(t, "1000000000000000000", q.String())

		assert.Nil(t, json.Unmarshal([]byte(`42`), q))
		assert.Equal(t, "42", q.String())

		assert.NotNil(t, json.Unmarshal([]byte(`"nope"`), q))
	})
	t.Run("Test BigQuantity does not alias its source", func(t *testing.T) {
		v := big.NewInt(10)
		q := NewBigQuantity(v)
		v.SetInt64(20)
		assert.Equal(t, "10", q.String())
	})
	t.Run("Test FormatUnits", func(t *testing.T) {
		v, _ := new(big.Int).SetString("1500000000000000000", 10)
		assert.Equal(t, "1.5", FormatUnits(v, 18))
		assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
		assert.Equal(t, "0", FormatUnits(nil, 18))
	})
	t.Run("Test ValueUSD", func(t *testing.T) {
		v, _ := new(big.Int).SetString("9980000000000000000", 10)
		usd := ValueUSD(v, 18, decimal.NewFromInt(60))
		assert.True(t, usd.Equal(decimal.RequireFromString("598.8")))
	})
	t.Run("Test WithinPercent", func(t *testing.T) {
		assert.True(t, WithinPercent(big.NewInt(100), big.NewInt(100), 0))
		assert.True(t, WithinPercent(big.NewInt(100), big.NewInt(101), 1))
		assert.True(t, WithinPercent(big.NewInt(100), big.NewInt(99), 1))
		assert.False(t, WithinPercent(big.NewInt(100), big.NewInt(102), 1))
	})
}
