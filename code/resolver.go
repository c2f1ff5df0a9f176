// Package code resolves the code hashes referenced by a block's trace
// against the bytecode blobs supplied with its payload.
package code

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcanize/go-trace-ir/account"
)

// MissingCodeError signals that a referenced code hash has no corresponding
// bytecode blob in the payload.
type MissingCodeError struct {
	Hash common.Hash
}

func (e *MissingCodeError) Error() string {
	return fmt.Sprintf("code: missing witness for code hash %s", e.Hash)
}

// HashMismatchError signals that a supplied bytecode blob does not hash to
// the key it is stored under.
type HashMismatchError struct {
	Want common.Hash
	Got  common.Hash
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("code: blob digest mismatch: recomputed %s, payload records %s", e.Got, e.Want)
}

// Resolve selects the bytecode for every referenced code hash, re-verifying
// each selected blob against its key. The empty code hash resolves to empty
// bytecode without a blob. Pure lookup; no state is retained.
func Resolve(blobs map[common.Hash][]byte, refs []common.Hash) (map[common.Hash][]byte, error) {
	resolved := make(map[common.Hash][]byte, len(refs))
	for _, h := range refs {
		if _, ok := resolved[h]; ok {
			continue
		}
		if h == account.EmptyCodeHash || h == (common.Hash{}) {
			resolved[account.EmptyCodeHash] = []byte{}
			continue
		}
		blob, ok := blobs[h]
		if !ok {
			return nil, &MissingCodeError{Hash: h}
		}
		if got := crypto.Keccak256Hash(blob); got != h {
			return nil, &HashMismatchError{Want: h, Got: got}
		}
		resolved[h] = blob
	}
	return resolved, nil
}

// Refs walks a blob map and returns its keys, for callers that need to
// verify an entire payload code set rather than a referenced subset.
func Refs(blobs map[common.Hash][]byte) []common.Hash {
	refs := make([]common.Hash, 0, len(blobs))
	for h := range blobs {
		refs = append(refs, h)
	}
	return refs
}
