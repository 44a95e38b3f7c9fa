package blockproc

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decred/minotari/internal/testutil"
	"github.com/decred/minotari/internal/walletrpc"
)

func outputBlob(value uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return buf
}

// TestProcessBlockCoinbaseFlagIsPerOutput covers minotari spec scenario 1:
// a block with exactly one received output and no spent inputs used to be
// misclassified as Coinbase by block shape alone. The scanner's per-output
// flag must decide it instead, regardless of how the rest of the block
// looks.
func TestProcessBlockCoinbaseFlagIsPerOutput(t *testing.T) {
	st := testutil.NewStore(t)
	accountID := testutil.NewAccount(t, st, "alice")
	p := New(st, 3, nil)

	block := walletrpc.BlockScanResult{
		Height:    100,
		BlockHash: [32]byte{1},
		WalletOutputs: []walletrpc.WalletOutput{
			{Hash: [32]byte{2}, OutputBlob: outputBlob(500), IsCoinbase: false},
		},
	}

	acc, err := p.ProcessBlock(context.Background(), accountID, 100, block, false)
	require.NoError(t, err)
	require.Len(t, acc.Outputs, 1)
	require.False(t, acc.Outputs[0].IsCoinbase)

	changes, err := st.ListActiveBalanceChanges(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, DescScannedOutput, changes[0].Description)
}

// TestProcessBlockCoinbaseFlagSurvivesConcurrentSpend covers the reverse
// misclassification: a coinbase output detected in the same block as a
// spent input used to be downgraded to Transfer by the old block-shape
// heuristic (len(Inputs) > 0).
func TestProcessBlockCoinbaseFlagSurvivesConcurrentSpend(t *testing.T) {
	st := testutil.NewStore(t)
	accountID := testutil.NewAccount(t, st, "alice")
	p := New(st, 3, nil)

	priorBlock := walletrpc.BlockScanResult{
		Height:    99,
		BlockHash: [32]byte{9},
		WalletOutputs: []walletrpc.WalletOutput{
			{Hash: [32]byte{8}, OutputBlob: outputBlob(200), IsCoinbase: false},
		},
	}
	_, err := p.ProcessBlock(context.Background(), accountID, 99, priorBlock, false)
	require.NoError(t, err)

	block := walletrpc.BlockScanResult{
		Height:    100,
		BlockHash: [32]byte{1},
		WalletOutputs: []walletrpc.WalletOutput{
			{Hash: [32]byte{2}, OutputBlob: outputBlob(500), IsCoinbase: true},
		},
		Inputs: [][32]byte{{8}},
	}

	acc, err := p.ProcessBlock(context.Background(), accountID, 100, block, false)
	require.NoError(t, err)
	require.Len(t, acc.Outputs, 1)
	require.True(t, acc.Outputs[0].IsCoinbase)
	require.Len(t, acc.Inputs, 1)

	changes, err := st.ListBalanceChangesByOutput(context.Background(), acc.Outputs[0].Output.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, DescCoinbaseOutput, changes[0].Description)
}
