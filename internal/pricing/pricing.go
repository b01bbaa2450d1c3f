// Package pricing derives a binary market's yes/no prices from the amounts
// staked on each side. Every Pricer returns prices in [0, 1] whose sum is
// exactly 1.
//
// Two models are provided:
//   - pool: the parimutuel ratio yes = staked_yes / (staked_yes + staked_no)
//   - lmsr: Hanson's logarithmic market scoring rule, treating the staked
//     amounts as outstanding share quantities
//
// All values use shopspring/decimal. The LMSR softmax is evaluated in float64
// with max-subtraction for numerical stability and converted immediately.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidLiquidity is returned when the LMSR b parameter is <= 0.
	ErrInvalidLiquidity = errors.New("pricing: liquidity parameter b must be positive")

	// ErrUnknownModel is returned by New for an unsupported model name.
	ErrUnknownModel = errors.New("pricing: unknown model")

	// MinPrice and MaxPrice bound LMSR prices so no side looks certain.
	MinPrice = decimal.NewFromFloat(0.001)
	MaxPrice = decimal.NewFromFloat(0.999)

	// PriceScale is the number of decimal places prices are rounded to.
	PriceScale int32 = 8

	half = decimal.NewFromFloat(0.5)
	one  = decimal.NewFromInt(1)
)

const (
	ModelPool = "pool"
	ModelLMSR = "lmsr"
)

// Pricer maps staked amounts to prices.
type Pricer interface {
	Prices(yesAmount, noAmount decimal.Decimal) (yes, no decimal.Decimal)
	Name() string
}

// New builds the Pricer named by model. b is only used by lmsr.
func New(model string, b decimal.Decimal) (Pricer, error) {
	switch model {
	case "", ModelPool:
		return PoolPricer{}, nil
	case ModelLMSR:
		return NewLMSR(b)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

// PoolPricer prices each side by its share of the total pool. An empty
// pool prices both sides at 0.5.
type PoolPricer struct{}

func (PoolPricer) Name() string { return ModelPool }

func (PoolPricer) Prices(yesAmount, noAmount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	total := yesAmount.Add(noAmount)
	if !total.IsPositive() {
		return half, half
	}
	yes := yesAmount.DivRound(total, PriceScale)
	return yes, one.Sub(yes)
}

// LMSR prices with the softmax of q/b:
//
//	p_yes = exp(qYes / b) / (exp(qYes / b) + exp(qNo / b))
//
// Higher b means more liquidity and less price impact per unit staked.
type LMSR struct {
	b decimal.Decimal
}

// NewLMSR creates an LMSR pricer with liquidity parameter b.
func NewLMSR(b decimal.Decimal) (*LMSR, error) {
	if b.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLiquidity
	}
	return &LMSR{b: b}, nil
}

func (m *LMSR) Name() string { return ModelLMSR }

// B returns the liquidity parameter.
func (m *LMSR) B() decimal.Decimal { return m.b }

func (m *LMSR) Prices(yesAmount, noAmount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	bf := m.b.InexactFloat64()
	yOverB := yesAmount.InexactFloat64() / bf
	nOverB := noAmount.InexactFloat64() / bf
	maxVal := math.Max(yOverB, nOverB)

	expYes := math.Exp(yOverB - maxVal)
	expNo := math.Exp(nOverB - maxVal)

	yes := decimal.NewFromFloat(expYes / (expYes + expNo)).Round(PriceScale)
	if yes.LessThan(MinPrice) {
		yes = MinPrice
	}
	if yes.GreaterThan(MaxPrice) {
		yes = MaxPrice
	}
	return yes, one.Sub(yes)
}
