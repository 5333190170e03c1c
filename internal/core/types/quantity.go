package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// QuantityDigits is the number of fractional digits a Quantity keeps.
const QuantityDigits = 4

// Quantity counts stock in ten-thousandths of a unit of measure, so 2.5 kg is
// stored as 25000. Ledger arithmetic is plain integer arithmetic and the
// database column is a BIGINT. In JSON it is a decimal number.
type Quantity int64

const quantityScale = 10_000

// NewQuantity returns n whole units.
func NewQuantity(n int64) Quantity { return Quantity(n * quantityScale) }

// NewQuantityFromFloat64 rounds v to the nearest ten-thousandth.
func NewQuantityFromFloat64(v float64) Quantity {
	return quantityOf(decimal.NewFromFloat(v).Round(QuantityDigits))
}

// ParseQuantity parses a decimal string such as "12.5" or "-3". Digits past
// the fourth fractional place are dropped.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return quantityOf(d.Truncate(QuantityDigits)), nil
}

func quantityOf(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(QuantityDigits).IntPart())
}

// Int64Scaled returns the stored integer (units × 10⁴).
func (q Quantity) Int64Scaled() int64 { return int64(q) }

// Decimal returns the exact value.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -QuantityDigits) }

func (q Quantity) Float64() float64 { return q.Decimal().InexactFloat64() }

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// MulPrice returns the line amount q × price.
func (q Quantity) MulPrice(price Money) Money { return q.Decimal().Mul(price) }

// MinQuantity returns the smaller of a and b.
func MinQuantity(a, b Quantity) Quantity { return min(a, b) }

// MaxQuantity returns the larger of a and b.
func MaxQuantity(a, b Quantity) Quantity { return max(a, b) }

// String renders q with all four fractional digits, e.g. "12.5000".
func (q Quantity) String() string { return q.Decimal().StringFixed(QuantityDigits) }

// MarshalJSON writes q as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string. null decodes as zero.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
