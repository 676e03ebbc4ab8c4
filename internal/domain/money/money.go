// Package money defines the integer minor-unit representation used for every
// amount in the financial core. No float or decimal type ever holds a token
// amount; the only conversion point is to and from processor cents.
package money

import "fmt"

// Tokens is an amount of the platform's internal unit of account.
// 1 token equals 1 USD cent by default (see platform/config.TokenPriceCents).
type Tokens int64

// Cents is an amount of external processor minor units (e.g. Stripe cents).
type Cents int64

// ToCents converts a Tokens amount to processor cents using the configured
// price-per-token. priceCents must be positive.
func (t Tokens) ToCents(priceCents int64) Cents {
	return Cents(int64(t) * priceCents)
}

// FromCents converts processor cents back to Tokens using the configured
// price-per-token. priceCents must be positive and evenly divide c in all
// call sites that matter for accounting; the division truncates toward zero.
func FromCents(c Cents, priceCents int64) Tokens {
	return Tokens(int64(c) / priceCents)
}

func (t Tokens) String() string {
	return fmt.Sprintf("%d", int64(t))
}

// Positive reports whether t is a valid positive amount for a request body
// (deposits, withdrawals, stakes are all requested as positive quantities).
func (t Tokens) Positive() bool {
	return t > 0
}
