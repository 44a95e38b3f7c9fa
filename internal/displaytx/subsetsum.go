package displaytx

// candidate is one unmatched debit input available to the subset-sum
// search, carrying enough of blockproc.SpentInput to build the resulting
// DisplayedTransaction.
type candidate struct {
	index int
	value uint64
}

// findSubsetSum performs a depth-first search over candidates (in order)
// for a subset summing exactly to target, returning the first match found
// by index order — deterministic for a given input order (minotari spec
// §4.5.1). A nil return means no exact subset exists.
func findSubsetSum(candidates []candidate, target uint64) []int {
	chosen := make([]int, 0, len(candidates))
	if dfs(candidates, 0, target, &chosen) {
		out := make([]int, len(chosen))
		copy(out, chosen)
		return out
	}
	return nil
}

func dfs(candidates []candidate, startIndex int, remaining uint64, chosen *[]int) bool {
	if remaining == 0 {
		return true
	}
	for i := startIndex; i < len(candidates); i++ {
		v := candidates[i].value
		if v > remaining {
			continue
		}
		*chosen = append(*chosen, candidates[i].index)
		if dfs(candidates, i+1, remaining-v, chosen) {
			return true
		}
		*chosen = (*chosen)[:len(*chosen)-1]
	}
	return false
}
