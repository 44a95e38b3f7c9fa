package fundlock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decred/minotari/internal/store"
)

func outputsOfValue(values ...uint64) []*store.Output {
	out := make([]*store.Output, len(values))
	for i, v := range values {
		out[i] = &store.Output{ID: int64(i + 1), Value: v}
	}
	return out
}

func TestSelectInputsExactMatchNeedsNoChange(t *testing.T) {
	policy := FeePolicy{} // zero fee for an exact-match check
	candidates := outputsOfValue(300, 200, 100, 50)

	result, err := selectInputs(candidates, 650, 1, policy, 0)
	require.NoError(t, err)
	require.False(t, result.RequiresChangeOutput)
	require.Equal(t, uint64(650), result.TotalValue)
	require.Len(t, result.Selected, 4)
}

func TestSelectInputsOverShootRequiresChange(t *testing.T) {
	policy := DefaultFeePolicy()
	candidates := outputsOfValue(1000)

	result, err := selectInputs(candidates, 100, 1, policy, 1)
	require.NoError(t, err)
	require.True(t, result.RequiresChangeOutput)
	require.Equal(t, uint64(1000), result.TotalValue)
}

func TestSelectInputsInsufficientFunds(t *testing.T) {
	policy := DefaultFeePolicy()
	candidates := outputsOfValue(10, 20)

	_, err := selectInputs(candidates, 1000, 1, policy, 1)
	require.Error(t, err)
	var insufficient *ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, uint64(30), insufficient.Available)
}
