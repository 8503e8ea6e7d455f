// Package arbitrage balances two competing picks into a surebet.
//
// Given an opportunity and the current settings, Calculate:
//  1. Checks both books are enabled.
//  2. Puts the designated stake-A book on side A at the fixed stake.
//  3. Computes the counter-stake that equalizes payout on either outcome.
//  4. Adds rebate income and decides alert eligibility.
//
// Money math runs on shopspring/decimal and is rounded to whole units only
// at the end.
package arbitrage

import (
	"github.com/shopspring/decimal"

	"arb-monitor/internal/config"
	"arb-monitor/pkg/types"
)

// DefaultStake is used when no fixed stake is configured.
const DefaultStake int64 = 10000

var one = decimal.NewFromInt(1)

// Calculate balances opp under s. ok=false means "not an opportunity": a
// disabled book, non-positive odds, or a non-positive counter-stake.
func Calculate(opp types.Opportunity, s config.Settings) (types.ArbitrageResult, bool) {
	bookA := config.NormBook(opp.PickA.Book)
	bookB := config.NormBook(opp.PickB.Book)
	if !s.BookEnabled(bookA) || !s.BookEnabled(bookB) {
		return types.ArbitrageResult{}, false
	}

	pickA, pickB := opp.PickA, opp.PickB
	labelA, labelB := types.SideA, types.SideB
	switch s.Stake.ABook {
	case bookA:
	case bookB:
		pickA, pickB = pickB, pickA
	default:
		labelA = types.SideUndesignated
	}
	pickA.Book = config.NormBook(pickA.Book)
	pickB.Book = config.NormBook(pickB.Book)

	if pickA.Odds <= 0 || pickB.Odds <= 0 {
		return types.ArbitrageResult{}, false
	}
	oA := decimal.NewFromFloat(pickA.Odds)
	oB := decimal.NewFromFloat(pickB.Odds)

	amount := s.Stake.AmountA
	if amount <= 0 {
		amount = DefaultStake
	}
	sA := decimal.NewFromInt(amount)

	legA := rebateFor(s, pickA.Book)
	legB := rebateFor(s, pickB.Book)

	sB, ok := counterStake(sA, oA, oB, legA, legB)
	if !ok || !sB.IsPositive() {
		return types.ArbitrageResult{}, false
	}
	profit := guaranteedProfit(sA, oA, sB, legA, legB)

	res := types.ArbitrageResult{
		Opportunity: opp,
		SideLabelA:  labelA,
		SideLabelB:  labelB,
		PickA:       pickA,
		PickB:       pickB,
		WaterA:      oA.Sub(one).StringFixed(3),
		WaterB:      oB.Sub(one).StringFixed(3),
		StakeA:      amount,
		StakeB:      sB.Round(0).IntPart(),
		Profit:      profit.Round(0).IntPart(),
		Signature:   Signature(opp),
		RowKey:      RowKey(opp),
	}
	res.ShouldAlert = res.Designated() &&
		s.IsAlertPair(pickA.Book, pickB.Book) &&
		res.Profit >= s.Stake.MinProfit
	return res, true
}

// rebate is one leg's rebate terms.
type rebate struct {
	rate    decimal.Decimal
	netLoss bool
}

func rebateFor(s config.Settings, book string) rebate {
	p, ok := s.RebatePlatformFor(book)
	if !ok {
		return rebate{rate: decimal.Zero}
	}
	return rebate{rate: decimal.NewFromFloat(p.Rate), netLoss: p.Scheme == config.SchemeNetLoss}
}

// counterStake returns the side-B stake that equalizes payout.
//
// Turnover rebates on both legs give the plain balance sB = sA*oA/oB. The
// deprecated net-loss scheme discounts the odds by the rebate rate on the
// affected leg; a non-positive discounted denominator has no balance.
func counterStake(sA, oA, oB decimal.Decimal, a, b rebate) (decimal.Decimal, bool) {
	num := sA.Mul(oA)
	if a.netLoss {
		num = sA.Mul(oA.Sub(a.rate))
	}
	den := oB
	if b.netLoss {
		den = oB.Sub(b.rate)
	}
	if !den.IsPositive() {
		return decimal.Zero, false
	}
	return num.Div(den), true
}

// guaranteedProfit is the payout on side A minus total outlay, plus rebate
// income: rA*sA for a turnover A leg and rB*sB for the B leg.
func guaranteedProfit(sA, oA, sB decimal.Decimal, a, b rebate) decimal.Decimal {
	p := sA.Mul(oA).Sub(sA.Add(sB))
	if !a.netLoss {
		p = p.Add(a.rate.Mul(sA))
	}
	return p.Add(b.rate.Mul(sB))
}
