package prize

import (
	"math/big"
	"testing"

	"neural-garden/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	wei, err := ParseEther(s)
	require.NoError(t, err)
	return wei
}

func TestAgentChallengeWinnerTakesAll(t *testing.T) {
	pool := Pool(ether(t, "1"), 10)
	require.Equal(t, ether(t, "10"), pool)

	dist := Distributable(pool)
	assert.Equal(t, ether(t, "0.1"), GasReserve(pool))
	assert.Equal(t, ether(t, "9.9"), Amount(domain.ModeAgentChallenge, dist, 1))
	assert.Equal(t, "0", Amount(domain.ModeAgentChallenge, dist, 2).String())
}

func TestTwentyQuestionsPercentages(t *testing.T) {
	dist := ether(t, "9.9")

	assert.Equal(t, ether(t, "4.95"), Amount(domain.ModeTwentyQuestions, dist, 1))
	assert.Equal(t, ether(t, "2.97"), Amount(domain.ModeTwentyQuestions, dist, 2))
	assert.Equal(t, ether(t, "1.98"), Amount(domain.ModeTwentyQuestions, dist, 3))
	assert.Equal(t, "0", Amount(domain.ModeTwentyQuestions, dist, 4).String())
}

func TestDebateQuadraticSplit(t *testing.T) {
	got := Schedule(domain.ModeDebateArena, ether(t, "5.5"), 7)

	require.Len(t, got, 5)
	want := []string{"2.5", "1.6", "0.9", "0.4", "0.1"}
	for i, w := range want {
		assert.Equal(t, w, FormatEther(got[i]), "rank %d", i+1)
	}
}

func TestPrizesNeverExceedDistributable(t *testing.T) {
	modes := []domain.Mode{domain.ModeAgentChallenge, domain.ModeRiddle, domain.ModeTwentyQuestions, domain.ModeDebateArena}
	fees := []string{"0.01", "0.000000000000000007", "1.234567891234567891"}

	for _, mode := range modes {
		for _, fee := range fees {
			for n := 1; n <= 13; n++ {
				dist := Distributable(Pool(ether(t, fee), n))
				total := new(big.Int)
				for _, p := range Schedule(mode, dist, 10) {
					total.Add(total, p)
				}
				assert.LessOrEqual(t, total.Cmp(dist), 0, "mode %s fee %s n %d", mode, fee, n)
			}
		}
	}
}

func TestPoolEdgeCases(t *testing.T) {
	assert.Equal(t, "0", Pool(nil, 3).String())
	assert.Equal(t, "0", Pool(big.NewInt(5), 0).String())
	assert.Equal(t, "0", Amount(domain.ModeAgentChallenge, new(big.Int), 1).String())
}

func TestParseEther(t *testing.T) {
	wei, err := ParseEther("0.01")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", wei.String())

	_, err = ParseEther("-1")
	assert.Error(t, err)

	_, err = ParseEther("0.0000000000000000001")
	assert.Error(t, err)

	_, err = ParseEther("abc")
	assert.Error(t, err)

	assert.Equal(t, "0.01", FormatEther(wei))
	assert.Equal(t, "0", FormatEther(nil))
}
