// Package prize computes tournament prize pools and per-rank payouts in wei.
package prize

import (
	"fmt"
	"math/big"

	"neural-garden/internal/constants"
	"neural-garden/internal/domain"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

var twentyQuestionsPercent = []int64{50, 30, 20}

func Pool(entryFeeWei *big.Int, participants int) *big.Int {
	if entryFeeWei == nil || participants <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Mul(entryFeeWei, big.NewInt(int64(participants)))
}

func GasReserve(pool *big.Int) *big.Int {
	return new(big.Int).Div(pool, big.NewInt(constants.GasReserveDivisor))
}

func Distributable(pool *big.Int) *big.Int {
	return new(big.Int).Sub(pool, GasReserve(pool))
}

// Amount returns the prize for a 1-based rank. Ranks beyond the mode's cutoff get zero.
func Amount(mode domain.Mode, distributable *big.Int, rank int) *big.Int {
	if rank < 1 || rank > mode.PayoutCutoff() || distributable.Sign() <= 0 {
		return new(big.Int)
	}

	switch mode {
	case domain.ModeAgentChallenge, domain.ModeRiddle:
		return new(big.Int).Set(distributable)
	case domain.ModeTwentyQuestions:
		return share(distributable, twentyQuestionsPercent[rank-1], 100)
	case domain.ModeDebateArena:
		return share(distributable, debateWeight(rank), debateWeightTotal())
	}
	return new(big.Int)
}

// Schedule returns the payout for each rank 1..n, capped by the mode cutoff.
func Schedule(mode domain.Mode, distributable *big.Int, n int) []*big.Int {
	if n > mode.PayoutCutoff() {
		n = mode.PayoutCutoff()
	}
	out := make([]*big.Int, 0, n)
	for rank := 1; rank <= n; rank++ {
		out = append(out, Amount(mode, distributable, rank))
	}
	return out
}

// debate prizes are weighted quadratically: rank 1 of 5 gets 25/55
func debateWeight(rank int) int64 {
	w := int64(constants.DebateTopRanks + 1 - rank)
	return w * w
}

func debateWeightTotal() int64 {
	var total int64
	for r := 1; r <= constants.DebateTopRanks; r++ {
		total += debateWeight(r)
	}
	return total
}

func share(amount *big.Int, num, den int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(num))
	return out.Div(out, big.NewInt(den))
}

// ParseEther converts a decimal ether amount such as "0.01" into wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ether amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("ether amount must not be negative: %s", s)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("ether amount %s has more than %d decimals", s, etherDecimals)
	}
	return wei.BigInt(), nil
}

func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
