package trie

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcanize/go-trace-ir/shared"
)

// Witness collects the canonical encodings of every node on the paths of the
// given keys, keyed by digest: the minimal sub-trie a verifier needs to walk
// those keys from the root. Nodes inlined in their parents ride along inside
// the parent encoding and are not listed separately. For an absent key the
// collected nodes prove the absence up to the point of divergence.
//
// The returned byte slices alias the node encodings; callers must treat them
// as immutable.
func (t *Trie) Witness(keys [][]byte) (map[common.Hash][]byte, error) {
	witness := make(map[common.Hash][]byte)
	for _, key := range keys {
		if err := t.witnessPath(t.root, shared.KeyToNibbles(key), true, witness); err != nil {
			return nil, err
		}
	}
	return witness, nil
}

// Nodes collects the canonical encodings of every materialized node in the
// trie, keyed by digest. It is the inverse of Build over the materialized
// region.
func (t *Trie) Nodes() (map[common.Hash][]byte, error) {
	witness := make(map[common.Hash][]byte)
	if err := t.collectAll(t.root, true, witness); err != nil {
		return nil, err
	}
	return witness, nil
}

// witnessPath walks one key path, recording the encoding of every node that
// parents reference by digest. root forces recording even for a small root
// node, since the block's root reference is always a digest.
func (t *Trie) witnessPath(curr Node, path []byte, root bool, out map[common.Hash][]byte) error {
	switch n := curr.(type) {
	case EmptyNode, HashNode:
		// absent or unmaterialized subtree, nothing to collect
		return nil
	case *LeafNode:
		return t.record(curr, root, out)
	case *BranchNode:
		if err := t.record(curr, root, out); err != nil {
			return err
		}
		if len(path) == 0 {
			return nil
		}
		return t.witnessPath(n.Children[path[0]], path[1:], false, out)
	case *ExtensionNode:
		if err := t.record(curr, root, out); err != nil {
			return err
		}
		if matched := prefixLen(n.Path, path); matched == len(n.Path) {
			return t.witnessPath(n.Child, path[matched:], false, out)
		}
		return nil
	default:
		panic("invalid trie node type")
	}
}

func (t *Trie) collectAll(curr Node, root bool, out map[common.Hash][]byte) error {
	switch n := curr.(type) {
	case EmptyNode, HashNode:
		return nil
	case *LeafNode:
		return t.record(curr, root, out)
	case *BranchNode:
		if err := t.record(curr, root, out); err != nil {
			return err
		}
		for i := range n.Children {
			if err := t.collectAll(n.Children[i], false, out); err != nil {
				return err
			}
		}
		return nil
	case *ExtensionNode:
		if err := t.record(curr, root, out); err != nil {
			return err
		}
		return t.collectAll(n.Child, false, out)
	default:
		panic("invalid trie node type")
	}
}

// record stores the node's encoding under its digest. Nodes small enough to
// be inlined by their parent are skipped unless they are the root.
func (t *Trie) record(n Node, root bool, out map[common.Hash][]byte) error {
	enc, err := Encode(n)
	if err != nil {
		return err
	}
	if len(enc) < 32 && !root {
		return nil
	}
	out[crypto.Keccak256Hash(enc)] = enc
	return nil
}
