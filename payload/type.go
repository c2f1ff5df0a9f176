// Package payload decodes the wire-encoded block trace bundle: proofs of the
// pre-state trie, contract code blobs, and per-transaction operation logs.
// The codec validates structure only; cryptographic consistency of the proof
// data is checked by the trie builder and code resolver.
package payload

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TracePayload is the decoded input bundle for one block. It is immutable
// once decoded; a block's whole translation is a pure computation over it.
type TracePayload struct {
	Header       Header
	PreStateRoot common.Hash
	// Nodes is the union of all state and storage trie proof nodes the
	// trace touched, keyed by content hash.
	Nodes map[common.Hash][]byte
	// Code maps code hashes to contract bytecode.
	Code map[common.Hash][]byte
	Txs  []TxTrace
}

// Header carries the block metadata the translation needs.
type Header struct {
	Number    uint64
	Hash      common.Hash
	Coinbase  common.Address
	GasUsed   uint64
	Timestamp uint64
}

// TxTrace is the ordered operation log of one transaction, with its declared
// pre- and post-state roots.
type TxTrace struct {
	Hash     common.Hash
	GasUsed  uint64
	PreRoot  common.Hash
	PostRoot common.Hash
	Ops      []Op
}

// OpKind names a state operation recorded by the tracer.
type OpKind string

const (
	OpRead    OpKind = "read"
	OpWrite   OpKind = "write"
	OpCreate  OpKind = "create"
	OpDestroy OpKind = "destroy"
	OpDeploy  OpKind = "deploy"
)

// Op is one recorded state operation. Address is always set; the remaining
// fields depend on the kind:
//
//	read    Slot set for a storage read, CodeHash set when code was read
//	write   Slot+Value for a storage write, else Balance and/or Nonce
//	create  Balance and Nonce of the new account
//	destroy no extra fields
//	deploy  Code for freshly written bytecode, or CodeHash referencing a blob
type Op struct {
	Kind     OpKind
	Address  common.Address
	Slot     *common.Hash
	Value    *uint256.Int
	Balance  *uint256.Int
	Nonce    *uint64
	CodeHash *common.Hash
	Code     []byte
}
