package trie

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// NodeSet is the proof arena for one block: every trie node the trace
// supplied, keyed by content hash. State and storage tries of the block all
// resolve against the same set, so proof fragments from different
// transactions merge into one shared structure. The set is never mutated
// after construction.
type NodeSet struct {
	nodes map[common.Hash][]byte
}

// NewNodeSet wraps the decoded proof-node map.
func NewNodeSet(nodes map[common.Hash][]byte) *NodeSet {
	if nodes == nil {
		nodes = make(map[common.Hash][]byte)
	}
	return &NodeSet{nodes: nodes}
}

// Get returns the canonical encoding of the node with the given digest.
func (s *NodeSet) Get(h common.Hash) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	enc, ok := s.nodes[h]
	return enc, ok
}

// Len returns the number of nodes in the set.
func (s *NodeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.nodes)
}

// Verify recomputes the digest of every node in the set and checks it
// against the key it is stored under. Any disagreement means the trace is
// corrupt, and is reported before any of the nodes are used.
func (s *NodeSet) Verify() error {
	for want, enc := range s.nodes {
		if got := crypto.Keccak256Hash(enc); got != want {
			return &ConsistencyError{Want: want, Got: got}
		}
	}
	return nil
}

// Build reconstructs the partial trie for the claimed root from the proof
// set. Nodes are assembled top-down from the root reference; every child
// reference present in the set is materialized and digest-checked, the rest
// stay hash placeholders.
func Build(root common.Hash, set *NodeSet) (*Trie, error) {
	if root == types.EmptyRootHash || root == (common.Hash{}) {
		return NewTrie(EmptyNode{}, set), nil
	}
	n, err := materialize(NewHashNode(root), set)
	if err != nil {
		return nil, err
	}
	return NewTrie(n, set), nil
}

func materialize(n Node, set *NodeSet) (Node, error) {
	switch n := n.(type) {
	case HashNode:
		enc, ok := set.Get(n.hash)
		if !ok {
			return n, nil
		}
		if got := crypto.Keccak256Hash(enc); got != n.hash {
			return nil, &ConsistencyError{Want: n.hash, Got: got}
		}
		decoded, err := Decode(enc)
		if err != nil {
			return nil, err
		}
		return materialize(decoded, set)
	case *BranchNode:
		for i := range n.Children {
			c, err := materialize(n.Children[i], set)
			if err != nil {
				return nil, err
			}
			n.Children[i] = c
		}
		return n, nil
	case *ExtensionNode:
		c, err := materialize(n.Child, set)
		if err != nil {
			return nil, err
		}
		n.Child = c
		return n, nil
	default:
		return n, nil
	}
}
