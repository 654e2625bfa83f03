// Package money implements fixed-point decimal arithmetic for currency
// amounts. Amounts are never represented as float64; internally they are
// scaled int64 minor units (scale 2 — cents), matching the reviewed repo's
// convention of storing ledger amounts as int64 minor units, but exposed
// through a type that knows its own scale and serializes to the canonical
// decimal string form used on the wire ("1234.56").
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Scale is the number of decimal places supported by Amount. The spec fixes
// this at 2 for all currencies in scope.
const Scale = 2

var scaleFactor int64 = 100

// ErrInvalidAmount is returned when a string does not parse as a valid
// fixed-point decimal with at most Scale fractional digits.
var ErrInvalidAmount = errors.New("money: invalid amount")

// Amount is a fixed-point decimal value, stored as minor units (cents).
// The zero value is 0.00.
type Amount struct {
	minor int64
}

// Zero is the additive identity.
var Zero = Amount{}

// New constructs an Amount from whole currency units and cents, e.g.
// New(12, 34) == 12.34.
func New(units int64, cents int64) Amount {
	sign := int64(1)
	if units < 0 {
		sign = -1
		units = -units
	}
	return Amount{minor: sign * (units*scaleFactor + cents)}
}

// FromMinor constructs an Amount directly from its minor-unit (cent)
// representation.
func FromMinor(minor int64) Amount {
	return Amount{minor: minor}
}

// Parse reads the canonical decimal string form ("1234.56", "-0.05", "10").
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalidAmount
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return Zero, ErrInvalidAmount
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) {
		return Zero, ErrInvalidAmount
	}
	if hasFrac {
		if len(fracPart) > Scale {
			return Zero, ErrInvalidAmount
		}
		if !isDigits(fracPart) {
			return Zero, ErrInvalidAmount
		}
		for len(fracPart) < Scale {
			fracPart += "0"
		}
	} else {
		fracPart = strings.Repeat("0", Scale)
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	cents, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return Zero, ErrInvalidAmount
	}

	minor := units*scaleFactor + cents
	if negative {
		minor = -minor
	}
	return Amount{minor: minor}, nil
}

// MustParse is Parse but panics on error; intended for test fixtures and
// compile-time constant tables, never for untrusted input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the canonical decimal form, e.g. "1234.56", "-0.05".
func (a Amount) String() string {
	negative := a.minor < 0
	minor := a.minor
	if negative {
		minor = -minor
	}
	units := minor / scaleFactor
	cents := minor % scaleFactor
	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, units, cents)
}

// Minor returns the underlying minor-unit (cent) representation.
func (a Amount) Minor() int64 { return a.minor }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.minor == 0 }

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int {
	switch {
	case a.minor < 0:
		return -1
	case a.minor > 0:
		return 1
	default:
		return 0
	}
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount { return Amount{minor: a.minor + b.minor} }

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount { return Amount{minor: a.minor - b.minor} }

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{minor: -a.minor} }

// Cmp returns -1, 0, 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.minor < b.minor:
		return -1
	case a.minor > b.minor:
		return 1
	default:
		return 0
	}
}

// Equal reports exact equality.
func (a Amount) Equal(b Amount) bool { return a.minor == b.minor }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.minor < b.minor }

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.minor > b.minor }

// Min returns the lesser of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds a slice of amounts, returning Zero for an empty slice.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// WithinTolerance reports whether a and b differ by no more than the given
// percentage of b (the reference/expected amount), matching the Matcher's
// amount_tolerance_pct policy knob. A zero tolerance requires exact equality.
func (a Amount) WithinTolerance(b Amount, tolerancePct float64) bool {
	if tolerancePct <= 0 {
		return a.Equal(b)
	}
	diff := a.Sub(b)
	if diff.Sign() < 0 {
		diff = diff.Neg()
	}
	allowed := float64(b.minor) * tolerancePct / 100.0
	if allowed < 0 {
		allowed = -allowed
	}
	return float64(diff.minor) <= allowed
}

// MarshalJSON renders the canonical decimal string, quoted.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON
// number, always producing an exact fixed-point value.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer, storing the amount as its minor-unit
// integer representation so gorm persists it as a plain bigint column.
func (a Amount) Value() (driver.Value, error) {
	return a.minor, nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		a.minor = v
	case int32:
		a.minor = int64(v)
	case int:
		a.minor = int64(v)
	case nil:
		a.minor = 0
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
	return nil
}
