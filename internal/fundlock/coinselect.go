package fundlock

import (
	"fmt"

	"github.com/decred/minotari/internal/store"
)

// ErrInsufficientFunds is returned when the account's spendable outputs
// cannot cover amount plus fees, mirroring the teacher's chanfunding
// coin-selection error shape.
type ErrInsufficientFunds struct {
	Available uint64
	Required  uint64
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("fundlock: insufficient funds: need %d, only %d available",
		e.Required, e.Available)
}

// selectionResult is the outcome of a successful coin-selection pass.
type selectionResult struct {
	Selected             []*store.Output
	RequiresChangeOutput bool
	TotalValue           uint64
	FeeWithoutChange     uint64
	FeeWithChange        uint64
}

// selectInputs walks candidates (expected pre-sorted by value descending,
// the order ListUnspentOutputsForSelection returns) accumulating outputs
// until either the exact no-change total or the with-change total is met
// (minotari spec §4.7.1). numOutputs is the number of recipient outputs
// requested by the caller, excluding any change output.
func selectInputs(candidates []*store.Output, amount uint64, numOutputs int, policy FeePolicy, feePerGram uint64) (*selectionResult, error) {
	feeWithoutChange := policy.Estimate(0, numOutputs, feePerGram)
	feeWithChange := policy.Estimate(0, numOutputs+1, feePerGram)

	var selected []*store.Output
	var total uint64

	for _, o := range candidates {
		selected = append(selected, o)
		total += o.Value

		feeWithoutChange = policy.Estimate(len(selected), numOutputs, feePerGram)
		feeWithChange = policy.Estimate(len(selected), numOutputs+1, feePerGram)

		if total == amount+feeWithoutChange {
			return &selectionResult{
				Selected:             selected,
				RequiresChangeOutput: false,
				TotalValue:           total,
				FeeWithoutChange:     feeWithoutChange,
				FeeWithChange:        feeWithChange,
			}, nil
		}
		if total > amount+feeWithChange {
			return &selectionResult{
				Selected:             selected,
				RequiresChangeOutput: true,
				TotalValue:           total,
				FeeWithoutChange:     feeWithoutChange,
				FeeWithChange:        feeWithChange,
			}, nil
		}
	}

	return nil, &ErrInsufficientFunds{Available: total, Required: amount + feeWithoutChange}
}
