package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// Money is an amount in integer minor units of an ISO 4217 currency.
type Money struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Scale       int    `json:"scale"`
}

var ErrCurrencyMismatch = errors.New("currency mismatch")

// CurrencyScale returns the number of minor-unit digits for an ISO code.
func CurrencyScale(code string) (int, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}

// NewMoney builds a Money from minor units, resolving the currency scale.
func NewMoney(amountMinor int64, code string) (Money, error) {
	scale, err := CurrencyScale(code)
	if err != nil {
		return Money{}, err
	}
	return Money{AmountMinor: amountMinor, Currency: strings.ToUpper(strings.TrimSpace(code)), Scale: scale}, nil
}

// ParseMoney parses a decimal string such as "100.00" into minor units.
// Digits beyond the currency scale are rounded half-up.
func ParseMoney(amount, code string) (Money, error) {
	scale, err := CurrencyScale(code)
	if err != nil {
		return Money{}, err
	}
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Money{}, errors.New("empty amount")
	}

	negative := strings.HasPrefix(amount, "-")
	amount = strings.TrimLeft(amount, "+-")

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return Money{}, fmt.Errorf("invalid amount %q", amount)
	}

	roundUp := false
	if len(frac) > scale {
		roundUp = frac[scale] >= '5'
		frac = frac[:scale]
	}
	frac += strings.Repeat("0", scale-len(frac))

	minor, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if roundUp {
		minor++
	}
	if negative {
		minor = -minor
	}
	return Money{AmountMinor: minor, Currency: strings.ToUpper(strings.TrimSpace(code)), Scale: scale}, nil
}

// MustParseMoney panics on invalid input. Intended for tests and defaults.
func MustParseMoney(amount, code string) Money {
	m, err := ParseMoney(amount, code)
	if err != nil {
		panic(err)
	}
	return m
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Add adds two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency || m.Scale != other.Scale {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency, Scale: m.Scale}, nil
}

// Percent returns m * pct / 100 rounded half-up to the minor unit.
func (m Money) Percent(pct int) Money {
	product := m.AmountMinor * int64(pct)
	var minor int64
	if product >= 0 {
		minor = (product + 50) / 100
	} else {
		minor = -((-product + 50) / 100)
	}
	return Money{AmountMinor: minor, Currency: m.Currency, Scale: m.Scale}
}

func (m Money) IsPositive() bool { return m.AmountMinor > 0 }

func (m Money) IsZero() bool { return m.AmountMinor == 0 }

// Decimal renders the amount as a plain decimal string ("0.90").
func (m Money) Decimal() string {
	amount := m.AmountMinor
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	if m.Scale == 0 {
		return sign + strconv.FormatInt(amount, 10)
	}
	digits := strconv.FormatInt(amount, 10)
	if len(digits) <= m.Scale {
		digits = strings.Repeat("0", m.Scale-len(digits)+1) + digits
	}
	cut := len(digits) - m.Scale
	return sign + digits[:cut] + "." + digits[cut:]
}

func (m Money) String() string {
	return m.Decimal() + " " + m.Currency
}
