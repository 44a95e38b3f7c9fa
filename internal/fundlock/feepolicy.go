// Package fundlock selects UTXOs to cover a requested spend, locks them
// against concurrent use, and supports idempotent retry by request key
// (minotari spec §4.7).
package fundlock

const (
	// DefaultInputWeight is the per-input contribution to a transaction's
	// fee-weight, in bytes-equivalent units charged at fee_per_gram.
	DefaultInputWeight = 96

	// DefaultOutputWeight is the per-output contribution when the
	// caller does not supply a more precise estimated_output_size.
	DefaultOutputWeight = 68

	// DefaultFeatureByteSize is the per-output feature-byte contribution,
	// charged once for every output on top of its OutputWeight.
	DefaultFeatureByteSize = 56
)

// FeePolicy computes a transaction's fee as a linear function of its
// input count, output count, and per-output feature bytes, at a given
// fee_per_gram rate (minotari spec §4.7.1). It is the fundlock analogue
// of a confirmed sweep-fee policy: fixed parameters negotiated once and
// applied consistently to every estimate within a lock request.
type FeePolicy struct {
	InputWeight     uint64
	OutputWeight    uint64
	FeatureByteSize uint64
}

// DefaultFeePolicy returns the weight parameters used when the caller
// supplies no estimated_output_size.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		InputWeight:     DefaultInputWeight,
		OutputWeight:    DefaultOutputWeight,
		FeatureByteSize: DefaultFeatureByteSize,
	}
}

// Estimate returns the fee, in the same unit as feePerGram, for a
// transaction with the given input/output counts.
func (p FeePolicy) Estimate(numInputs, numOutputs int, feePerGram uint64) uint64 {
	weight := uint64(numInputs)*p.InputWeight +
		uint64(numOutputs)*p.OutputWeight +
		uint64(numOutputs)*p.FeatureByteSize
	return weight * feePerGram
}
