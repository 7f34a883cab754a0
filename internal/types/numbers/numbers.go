package numbers

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// BigQuantity is an arbitrary precision integer that serializes to JSON as a decimal string.
// A generic integer cannot round-trip through JSON numbers without precision loss, so every
// cached or reported raw on-chain amount uses this type.
type BigQuantity big.Int

func NewBigQuantity(i *big.Int) *BigQuantity {
	if i == nil {
		return &BigQuantity{}
	}
	q := BigQuantity(*new(big.Int).Set(i))
	return &q
}

// NewBigQuantityFromString parses a base-10 or 0x-prefixed base-16 string.
func NewBigQuantityFromString(s string) (*BigQuantity, error) {
	i, err := ParseBigInt(s)
	if err != nil {
		return nil, err
	}
	return NewBigQuantity(i), nil
}

func (q *BigQuantity) Big() *big.Int {
	if q == nil {
		return new(big.Int)
	}
	i := big.Int(*q)
	return new(big.Int).Set(&i)
}

func (q *BigQuantity) String() string {
	return q.Big().String()
}

func (q *BigQuantity) Sign() int {
	return q.Big().Sign()
}

func (q BigQuantity) MarshalJSON() ([]byte, error) {
	i := big.Int(q)
	return json.Marshal(i.String())
}

func (q *BigQuantity) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		// tolerate bare JSON numbers written by older tooling
		s = string(input)
	}
	if s == "" {
		*q = BigQuantity{}
		return nil
	}
	i, err := ParseBigInt(s)
	if err != nil {
		return err
	}
	*q = BigQuantity(*i)
	return nil
}

func ParseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
		if s == "" {
			return new(big.Int), nil
		}
	}
	i, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("failed to parse '%s' as an integer", s)
	}
	return i, nil
}

// FormatUnits renders a raw integer amount as a decimal string scaled by 10^decimals.
func FormatUnits(value *big.Int, decimals int32) string {
	return ToDecimal(value, decimals).String()
}

// ToDecimal scales a raw integer amount by 10^decimals without going through floats.
func ToDecimal(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// ValueUSD returns the USD value of a raw amount given a per-unit price.
func ValueUSD(value *big.Int, decimals int32, priceUsd decimal.Decimal) decimal.Decimal {
	return ToDecimal(value, decimals).Mul(priceUsd)
}

// WithinPercent reports whether actual lies inside target * (1 ± percent/100).
func WithinPercent(target *big.Int, actual *big.Int, percent float64) bool {
	t := decimal.NewFromBigInt(target, 0)
	a := decimal.NewFromBigInt(actual, 0)
	delta := t.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100)).Abs()

	lower := t.Sub(delta)
	upper := t.Add(delta)
	return a.GreaterThanOrEqual(lower) && a.LessThanOrEqual(upper)
}

func BigGreaterThan(a, b string) (bool, error) {
	na, err := decimal.NewFromString(a)
	if err != nil {
		return false, err
	}
	nb, err := decimal.NewFromString(b)
	if err != nil {
		return false, err
	}

	return na.GreaterThan(nb), nil
}
