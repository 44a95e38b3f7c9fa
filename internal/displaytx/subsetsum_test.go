package displaytx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFindSubsetSumMatchesMultipleInputs covers minotari spec §8's worked
// example: inputs {300, 200, 100, 50} matching an outbound send of 650,
// which requires all four (300+200+100+50=650) since no proper subset
// reaches the target.
func TestFindSubsetSumMatchesMultipleInputs(t *testing.T) {
	candidates := []candidate{
		{index: 11, value: 300},
		{index: 22, value: 200},
		{index: 33, value: 100},
		{index: 44, value: 50},
	}

	got := findSubsetSum(candidates, 650)
	require.Equal(t, []int{11, 22, 33, 44}, got)
}

func TestFindSubsetSumPrefersFirstMatchByIndexOrder(t *testing.T) {
	candidates := []candidate{
		{index: 1, value: 100},
		{index: 2, value: 50},
		{index: 3, value: 50},
	}

	got := findSubsetSum(candidates, 100)
	require.Equal(t, []int{1}, got)
}

func TestFindSubsetSumNoMatch(t *testing.T) {
	candidates := []candidate{
		{index: 1, value: 300},
		{index: 2, value: 200},
	}

	got := findSubsetSum(candidates, 650)
	require.Nil(t, got)
}

func TestFindSubsetSumEmptyCandidates(t *testing.T) {
	got := findSubsetSum(nil, 0)
	require.Equal(t, []int{}, got)
}
