// Package ir defines the per-transaction generation unit handed to the
// downstream arithmetization engine, and its deterministic wire encoding.
package ir

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vulcanize/go-trace-ir/payload"
	"github.com/vulcanize/go-trace-ir/replay"
)

// Generation is one transaction's self-contained proving input: the minimal
// pre-state sub-tries reachable by its operations, the bytecode for every
// code hash it touches, its operation log, and the roots bracketing it.
// Ownership transfers to the consumer once emitted; the pipeline retains no
// reference.
type Generation struct {
	TxIndex  int
	TxHash   common.Hash
	GasUsed  uint64
	PreRoot  common.Hash
	PostRoot common.Hash
	// State holds the minimal state-trie witness, keyed by node digest.
	State map[common.Hash][]byte
	// Storage holds per-account minimal storage-trie witnesses.
	Storage map[common.Address]map[common.Hash][]byte
	// Code maps every touched code hash to its bytecode.
	Code map[common.Hash][]byte
	Ops  []payload.Op
}

// FromWitness assembles the generation unit for one transaction from its
// trace and the pre-state witness the replayer extracted for it.
func FromWitness(idx int, tx *payload.TxTrace, w *replay.TxWitness) *Generation {
	return &Generation{
		TxIndex:  idx,
		TxHash:   tx.Hash,
		GasUsed:  tx.GasUsed,
		PreRoot:  tx.PreRoot,
		PostRoot: tx.PostRoot,
		State:    w.State,
		Storage:  w.Storage,
		Code:     w.Code,
		Ops:      tx.Ops,
	}
}
