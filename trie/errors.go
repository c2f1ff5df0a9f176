package trie

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when the requested key provably has no value in
// the materialized region of the trie.
var ErrNotFound = errors.New("trie: key not found")

// ConsistencyError signals that a proof node's recomputed digest disagrees
// with the digest its parent records for it. The trace is corrupt or
// adversarial and the whole block is unverifiable.
type ConsistencyError struct {
	Want common.Hash
	Got  common.Hash
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("trie: node digest mismatch: recomputed %s, parent records %s", e.Got, e.Want)
}

// MissingNodeError signals that traversal reached a hash placeholder whose
// contents the trace never supplied. The witness is incomplete for the
// attempted operation.
type MissingNodeError struct {
	Hash common.Hash
	Path []byte
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("trie: missing witness for node %s at path %x", e.Hash, e.Path)
}
