package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peerpush/chally/internal/domain/money"
)

func TestToCentsAndFromCents_RoundTrip(t *testing.T) {
	tokens := money.Tokens(1000)
	cents := tokens.ToCents(1)
	assert.Equal(t, money.Cents(1000), cents)

	back := money.FromCents(cents, 1)
	assert.Equal(t, tokens, back)
}

func TestPositive(t *testing.T) {
	assert.True(t, money.Tokens(1).Positive())
	assert.False(t, money.Tokens(0).Positive())
	assert.False(t, money.Tokens(-1).Positive())
}
