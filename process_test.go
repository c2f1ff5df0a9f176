package traceir_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	traceir "github.com/vulcanize/go-trace-ir"
	"github.com/vulcanize/go-trace-ir/account"
	"github.com/vulcanize/go-trace-ir/code"
	"github.com/vulcanize/go-trace-ir/ir"
	"github.com/vulcanize/go-trace-ir/payload"
	"github.com/vulcanize/go-trace-ir/shared"
	"github.com/vulcanize/go-trace-ir/trie"
)

var (
	addrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	addrC = common.HexToAddress("0x3333333333333333333333333333333333333333")

	slotS = common.HexToHash("0x01")

	codeB     = []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	codeHashB = crypto.Keccak256Hash(codeB)
)

func nonce(n uint64) *uint64 { return &n }

func slotValue(t *testing.T, v uint64) []byte {
	t.Helper()
	enc, err := rlp.EncodeToBytes(uint256.NewInt(v).Bytes())
	require.NoError(t, err)
	return enc
}

func putAccount(t *testing.T, tr *trie.Trie, addr common.Address, acct *account.Account) {
	t.Helper()
	enc, err := acct.Encode()
	require.NoError(t, err)
	require.NoError(t, tr.Put(shared.AddressToLeafKey(addr), enc))
}

// blockFixture is a pre-state of two accounts (A externally owned, B a
// contract with one storage slot) plus the trie handles needed to compute
// expected roots and witnesses for synthetic traces over it.
type blockFixture struct {
	preRoot     common.Hash
	storageRoot common.Hash
	nodes       map[common.Hash][]byte
	state       *trie.Trie
	storage     *trie.Trie
}

func newBlockFixture(t *testing.T) *blockFixture {
	t.Helper()
	arena := trie.NewNodeSet(nil)
	storage := trie.NewTrie(trie.EmptyNode{}, arena)
	require.NoError(t, storage.Put(shared.SlotToLeafKey(slotS), slotValue(t, 42)))
	storageRoot, err := storage.Hash()
	require.NoError(t, err)

	state := trie.NewTrie(trie.EmptyNode{}, arena)
	putAccount(t, state, addrA, &account.Account{
		Nonce:    1,
		Balance:  big.NewInt(1000),
		Root:     types.EmptyRootHash,
		CodeHash: account.EmptyCodeHash.Bytes(),
	})
	putAccount(t, state, addrB, &account.Account{
		Nonce:    1,
		Balance:  big.NewInt(0),
		Root:     storageRoot,
		CodeHash: codeHashB.Bytes(),
	})
	preRoot, err := state.Hash()
	require.NoError(t, err)

	nodes, err := state.Nodes()
	require.NoError(t, err)
	storageNodes, err := storage.Nodes()
	require.NoError(t, err)
	for h, enc := range storageNodes {
		nodes[h] = enc
	}

	return &blockFixture{
		preRoot:     preRoot,
		storageRoot: storageRoot,
		nodes:       nodes,
		state:       state,
		storage:     storage,
	}
}

func (f *blockFixture) payload(txs ...payload.TxTrace) *payload.TracePayload {
	return &payload.TracePayload{
		Header: payload.Header{
			Number:   4_200_000,
			Hash:     shared.RandomHash(),
			Coinbase: shared.RandomAddr(),
			GasUsed:  42_000,
		},
		PreStateRoot: f.preRoot,
		Nodes:        f.nodes,
		Code:         map[common.Hash][]byte{codeHashB: codeB},
		Txs:          txs,
	}
}

func process(t *testing.T, p *payload.TracePayload) ([]*ir.Generation, error) {
	t.Helper()
	raw, err := payload.EncodeBytes(p)
	require.NoError(t, err)
	return traceir.NewProcessor(nil).Process(context.Background(), raw)
}

// a transaction creating an account at an empty path must witness exactly
// the path proving that the account does not exist yet
func TestProcessCreateAccount(t *testing.T) {
	f := newBlockFixture(t)

	keyC := shared.AddressToLeafKey(addrC)
	postState, err := trie.Build(f.preRoot, trie.NewNodeSet(f.nodes))
	require.NoError(t, err)
	acctC := &account.Account{
		Nonce:    1,
		Balance:  big.NewInt(5),
		Root:     types.EmptyRootHash,
		CodeHash: account.EmptyCodeHash.Bytes(),
	}
	putAccount(t, postState, addrC, acctC)
	postRoot, err := postState.Hash()
	require.NoError(t, err)

	tx := payload.TxTrace{
		Hash:     shared.RandomHash(),
		PreRoot:  f.preRoot,
		PostRoot: postRoot,
		Ops: []payload.Op{
			{Kind: payload.OpCreate, Address: addrC, Balance: uint256.NewInt(5), Nonce: nonce(1)},
		},
	}

	units, err := process(t, f.payload(tx))
	require.NoError(t, err)
	require.Len(t, units, 1)

	// the witness is the absence proof for C: its path down to the point
	// of divergence, and nothing else
	wantState, err := f.state.Witness([][]byte{keyC})
	require.NoError(t, err)
	require.Equal(t, wantState, units[0].State)
	require.Empty(t, units[0].Storage)

	leafA, err := f.state.Get(shared.AddressToLeafKey(addrA))
	require.NoError(t, err)
	for _, enc := range units[0].State {
		require.False(t, bytes.Contains(enc, leafA), "witness leaks an unrelated account leaf")
	}
}

// two transactions touching the same storage slot must each carry the
// slot's subtree in their own witness
func TestProcessSharedStorageSlot(t *testing.T) {
	f := newBlockFixture(t)

	storage, err := trie.Build(f.storageRoot, trie.NewNodeSet(f.nodes))
	require.NoError(t, err)
	require.NoError(t, storage.Put(shared.SlotToLeafKey(slotS), slotValue(t, 99)))
	newStorageRoot, err := storage.Hash()
	require.NoError(t, err)
	postState, err := trie.Build(f.preRoot, trie.NewNodeSet(f.nodes))
	require.NoError(t, err)
	putAccount(t, postState, addrB, &account.Account{
		Nonce:    1,
		Balance:  big.NewInt(0),
		Root:     newStorageRoot,
		CodeHash: codeHashB.Bytes(),
	})
	postRoot, err := postState.Hash()
	require.NoError(t, err)

	tx1 := payload.TxTrace{
		Hash:     shared.RandomHash(),
		PreRoot:  f.preRoot,
		PostRoot: f.preRoot,
		Ops: []payload.Op{
			{Kind: payload.OpRead, Address: addrB, Slot: &slotS},
		},
	}
	tx2 := payload.TxTrace{
		Hash:     shared.RandomHash(),
		PreRoot:  f.preRoot,
		PostRoot: postRoot,
		Ops: []payload.Op{
			{Kind: payload.OpRead, Address: addrB, Slot: &slotS},
			{Kind: payload.OpWrite, Address: addrB, Slot: &slotS, Value: uint256.NewInt(99)},
		},
	}

	units, err := process(t, f.payload(tx1, tx2))
	require.NoError(t, err)
	require.Len(t, units, 2)

	wantStorage, err := f.storage.Witness([][]byte{shared.SlotToLeafKey(slotS)})
	require.NoError(t, err)
	require.Equal(t, wantStorage, units[0].Storage[addrB])
	require.Equal(t, wantStorage, units[1].Storage[addrB])
}

func TestProcessMissingCode(t *testing.T) {
	f := newBlockFixture(t)

	tx := payload.TxTrace{
		PreRoot:  f.preRoot,
		PostRoot: f.preRoot,
		Ops: []payload.Op{
			{Kind: payload.OpRead, Address: addrB, CodeHash: &codeHashB},
		},
	}
	p := f.payload(tx)
	p.Code = map[common.Hash][]byte{}

	_, err := process(t, p)
	var missing *code.MissingCodeError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, codeHashB, missing.Hash)
}

func TestProcessTamperedProofNode(t *testing.T) {
	f := newBlockFixture(t)

	p := f.payload(payload.TxTrace{
		PreRoot:  f.preRoot,
		PostRoot: f.preRoot,
		Ops:      []payload.Op{{Kind: payload.OpRead, Address: addrA}},
	})
	for h := range p.Nodes {
		tampered := append([]byte{}, p.Nodes[h]...)
		tampered[len(tampered)-1] ^= 0x01
		p.Nodes[h] = tampered
		break
	}

	_, err := process(t, p)
	var consistency *trie.ConsistencyError
	require.ErrorAs(t, err, &consistency)
}

func TestProcessDeterminism(t *testing.T) {
	f := newBlockFixture(t)
	p := f.payload(payload.TxTrace{
		Hash:     shared.RandomHash(),
		PreRoot:  f.preRoot,
		PostRoot: f.preRoot,
		Ops: []payload.Op{
			{Kind: payload.OpRead, Address: addrA},
			{Kind: payload.OpRead, Address: addrB, Slot: &slotS, CodeHash: &codeHashB},
		},
	})

	first, err := process(t, p)
	require.NoError(t, err)
	second, err := process(t, p)
	require.NoError(t, err)
	require.Len(t, second, len(first))

	for i := range first {
		a, err := ir.EncodeBytes(first[i])
		require.NoError(t, err)
		b, err := ir.EncodeBytes(second[i])
		require.NoError(t, err)
		require.Equal(t, a, b)

		ca, err := first[i].Cid()
		require.NoError(t, err)
		cb, err := second[i].Cid()
		require.NoError(t, err)
		require.Equal(t, ca, cb)
	}
}

func TestProcessEmptyPayload(t *testing.T) {
	p := &payload.TracePayload{
		PreStateRoot: types.EmptyRootHash,
		Nodes:        map[common.Hash][]byte{},
	}
	units, err := process(t, p)
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestProcessCancelled(t *testing.T) {
	f := newBlockFixture(t)
	raw, err := payload.EncodeBytes(f.payload())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = traceir.NewProcessor(nil).Process(ctx, raw)
	require.ErrorIs(t, err, context.Canceled)
}
