// Package replay applies each transaction's recorded state operations to the
// block's partial tries, in trace order, verifying the declared roots at
// every transaction boundary.
package replay

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vulcanize/go-trace-ir/account"
	"github.com/vulcanize/go-trace-ir/code"
	"github.com/vulcanize/go-trace-ir/payload"
	"github.com/vulcanize/go-trace-ir/shared"
	"github.com/vulcanize/go-trace-ir/trie"
)

// MismatchError signals that a recomputed state root disagrees with the root
// the trace declares for a transaction boundary. The block is unverifiable
// from this transaction on.
type MismatchError struct {
	Tx       int
	Declared string
	Want     common.Hash
	Got      common.Hash
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("replay: tx %d: recomputed state root %s does not match declared %s %s", e.Tx, e.Got, e.Declared, e.Want)
}

// TxWitness is the minimal pre-state of one transaction: every trie node and
// code blob needed to independently re-execute its operation log. Node
// encodings are structurally shared with the block's arena and must be
// treated as immutable.
type TxWitness struct {
	Index   int
	State   map[common.Hash][]byte
	Storage map[common.Address]map[common.Hash][]byte
	Code    map[common.Hash][]byte
}

// Replayer owns a block's live tries between transaction boundaries.
// It is single-threaded: each transaction's replay depends on the trie state
// the previous one left behind.
type Replayer struct {
	state   *trie.Trie
	arena   *trie.NodeSet
	code    map[common.Hash][]byte
	storage map[common.Address]*trie.Trie
}

// New returns a replayer over the block's built state trie and resolved code
// map. Storage tries are built lazily from the same arena the first time an
// account's storage is touched.
func New(state *trie.Trie, arena *trie.NodeSet, resolved map[common.Hash][]byte) *Replayer {
	return &Replayer{
		state:   state,
		arena:   arena,
		code:    resolved,
		storage: make(map[common.Address]*trie.Trie),
	}
}

// ReplayAll replays every transaction in order, returning one pre-state
// witness per transaction. The first root disagreement aborts the block.
func (r *Replayer) ReplayAll(txs []payload.TxTrace) ([]*TxWitness, error) {
	witnesses := make([]*TxWitness, 0, len(txs))
	for i := range txs {
		w, err := r.replayTx(i, &txs[i])
		if err != nil {
			return nil, err
		}
		witnesses = append(witnesses, w)
	}
	return witnesses, nil
}

func (r *Replayer) replayTx(i int, tx *payload.TxTrace) (*TxWitness, error) {
	root, err := r.state.Hash()
	if err != nil {
		return nil, err
	}
	if root != tx.PreRoot {
		return nil, &MismatchError{Tx: i, Declared: "preRoot", Want: tx.PreRoot, Got: root}
	}

	// the witness must capture this transaction's pre-state, so it is
	// extracted before any operation mutates the tries
	w, err := r.witness(i, tx.Ops)
	if err != nil {
		return nil, err
	}

	for j := range tx.Ops {
		if err := r.apply(&tx.Ops[j]); err != nil {
			return nil, fmt.Errorf("tx %d op %d (%s): %w", i, j, tx.Ops[j].Kind, err)
		}
	}

	root, err = r.state.Hash()
	if err != nil {
		return nil, err
	}
	if root != tx.PostRoot {
		return nil, &MismatchError{Tx: i, Declared: "postRoot", Want: tx.PostRoot, Got: root}
	}
	return w, nil
}

// witness extracts the minimal sub-tries reachable by the op log's paths
// from the current (pre-transaction) tries, plus every code blob the log
// references.
func (r *Replayer) witness(i int, ops []payload.Op) (*TxWitness, error) {
	stateKeys := make([][]byte, 0, len(ops))
	slots := make(map[common.Address][][]byte)
	seen := make(map[common.Address]bool)
	w := &TxWitness{
		Index:   i,
		Storage: make(map[common.Address]map[common.Hash][]byte),
		Code:    make(map[common.Hash][]byte),
	}

	for j := range ops {
		op := &ops[j]
		if !seen[op.Address] {
			seen[op.Address] = true
			stateKeys = append(stateKeys, shared.AddressToLeafKey(op.Address))
		}
		if op.Slot != nil {
			slots[op.Address] = append(slots[op.Address], shared.SlotToLeafKey(*op.Slot))
		}
		if op.CodeHash != nil {
			blob, ok := r.code[*op.CodeHash]
			if !ok {
				return nil, &code.MissingCodeError{Hash: *op.CodeHash}
			}
			w.Code[*op.CodeHash] = blob
		}
		if op.Code != nil {
			w.Code[crypto.Keccak256Hash(op.Code)] = op.Code
		}
	}

	var err error
	if w.State, err = r.state.Witness(stateKeys); err != nil {
		return nil, err
	}
	for addr, keys := range slots {
		st, err := r.storageTrie(addr)
		if err != nil {
			return nil, err
		}
		nodes, err := st.Witness(keys)
		if err != nil {
			return nil, err
		}
		if len(nodes) > 0 {
			w.Storage[addr] = nodes
		}
	}
	return w, nil
}

func (r *Replayer) apply(op *payload.Op) error {
	switch op.Kind {
	case payload.OpRead:
		return r.applyRead(op)
	case payload.OpWrite:
		return r.applyWrite(op)
	case payload.OpCreate:
		return r.applyCreate(op)
	case payload.OpDestroy:
		return r.applyDestroy(op)
	case payload.OpDeploy:
		return r.applyDeploy(op)
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}

// applyRead walks the recorded path, confirming the witness covers it. A
// provably absent key is a valid read result; an unmaterialized subtree is
// a missing witness.
func (r *Replayer) applyRead(op *payload.Op) error {
	if op.Slot != nil {
		st, err := r.storageTrie(op.Address)
		if err != nil {
			return err
		}
		if _, err := st.Get(shared.SlotToLeafKey(*op.Slot)); err != nil && err != trie.ErrNotFound {
			return err
		}
		return nil
	}
	if _, err := r.state.Get(shared.AddressToLeafKey(op.Address)); err != nil && err != trie.ErrNotFound {
		return err
	}
	return nil
}

func (r *Replayer) applyWrite(op *payload.Op) error {
	if op.Slot != nil {
		return r.writeStorage(op)
	}
	acct, err := r.getOrEmpty(op.Address)
	if err != nil {
		return err
	}
	if op.Balance != nil {
		acct.Balance = op.Balance.ToBig()
	}
	if op.Nonce != nil {
		acct.Nonce = *op.Nonce
	}
	return r.putAccount(op.Address, acct)
}

func (r *Replayer) writeStorage(op *payload.Op) error {
	st, err := r.storageTrie(op.Address)
	if err != nil {
		return err
	}
	key := shared.SlotToLeafKey(*op.Slot)
	if op.Value == nil || op.Value.IsZero() {
		if err := st.Delete(key); err != nil {
			return err
		}
	} else {
		enc, err := rlp.EncodeToBytes(op.Value.Bytes())
		if err != nil {
			return err
		}
		if err := st.Put(key, enc); err != nil {
			return err
		}
	}
	acct, err := r.getOrEmpty(op.Address)
	if err != nil {
		return err
	}
	if acct.Root, err = st.Hash(); err != nil {
		return err
	}
	return r.putAccount(op.Address, acct)
}

func (r *Replayer) applyCreate(op *payload.Op) error {
	acct := account.Empty()
	if op.Balance != nil {
		acct.Balance = op.Balance.ToBig()
	}
	if op.Nonce != nil {
		acct.Nonce = *op.Nonce
	}
	// a fresh account starts with empty storage regardless of what a
	// destroyed predecessor at this address left cached
	r.storage[op.Address] = trie.NewTrie(trie.EmptyNode{}, r.arena)
	return r.putAccount(op.Address, acct)
}

func (r *Replayer) applyDestroy(op *payload.Op) error {
	delete(r.storage, op.Address)
	return r.state.Delete(shared.AddressToLeafKey(op.Address))
}

func (r *Replayer) applyDeploy(op *payload.Op) error {
	acct, err := r.getOrEmpty(op.Address)
	if err != nil {
		return err
	}
	var h common.Hash
	switch {
	case op.Code != nil:
		h = crypto.Keccak256Hash(op.Code)
		r.code[h] = op.Code
	case op.CodeHash != nil:
		h = *op.CodeHash
		if _, ok := r.code[h]; !ok {
			return &code.MissingCodeError{Hash: h}
		}
	default:
		return fmt.Errorf("deploy op carries neither code nor codeHash")
	}
	acct.CodeHash = h.Bytes()
	return r.putAccount(op.Address, acct)
}

// storageTrie returns the live storage trie for addr, building it from the
// account's recorded storage root on first touch.
func (r *Replayer) storageTrie(addr common.Address) (*trie.Trie, error) {
	if st, ok := r.storage[addr]; ok {
		return st, nil
	}
	acct, err := r.getOrEmpty(addr)
	if err != nil {
		return nil, err
	}
	st, err := trie.Build(acct.Root, r.arena)
	if err != nil {
		return nil, err
	}
	r.storage[addr] = st
	return st, nil
}

func (r *Replayer) getOrEmpty(addr common.Address) (*account.Account, error) {
	enc, err := r.state.Get(shared.AddressToLeafKey(addr))
	if err != nil {
		if err == trie.ErrNotFound {
			return account.Empty(), nil
		}
		return nil, err
	}
	return account.Decode(enc)
}

func (r *Replayer) putAccount(addr common.Address, acct *account.Account) error {
	enc, err := acct.Encode()
	if err != nil {
		return err
	}
	return r.state.Put(shared.AddressToLeafKey(addr), enc)
}
