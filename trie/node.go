package trie

import (
	"github.com/ethereum/go-ethereum/common"
)

// NodeKind discriminates the closed set of partial trie node variants.
type NodeKind string

const (
	UNKNOWN_NODE   NodeKind = "Unknown"
	BRANCH_NODE    NodeKind = "TrieBranchNode"
	EXTENSION_NODE NodeKind = "TrieExtensionNode"
	LEAF_NODE      NodeKind = "TrieLeafNode"
	HASH_NODE      NodeKind = "TrieHashNode"
	EMPTY_NODE     NodeKind = "TrieEmptyNode"
)

func (n NodeKind) String() string {
	return string(n)
}

// Node is the common interface of all partial trie nodes. The set of
// implementations is closed: Branch, Extension, Leaf, Hash (a subtree known
// only by its digest) and Empty.
type Node interface {
	Kind() NodeKind
}

// BranchNode is a 16-way fork. Children hold materialized nodes, hash
// placeholders, or Empty. Value carries the 17th slot payload for keys
// terminating at this node.
type BranchNode struct {
	Children [16]Node
	Value    []byte
}

// NewBranchNode returns a branch with all children set to Empty.
func NewBranchNode() *BranchNode {
	b := new(BranchNode)
	for i := range b.Children {
		b.Children[i] = EmptyNode{}
	}
	return b
}

func (n *BranchNode) Kind() NodeKind { return BRANCH_NODE }

// ExtensionNode compresses a run of nibbles shared by every key below it.
// Path holds hex nibbles without a terminator.
type ExtensionNode struct {
	Path  []byte
	Child Node
}

func (n *ExtensionNode) Kind() NodeKind { return EXTENSION_NODE }

// LeafNode terminates a key. Path holds the remaining hex nibbles of the key
// without a terminator.
type LeafNode struct {
	Path  []byte
	Value []byte
}

func (n *LeafNode) Kind() NodeKind { return LEAF_NODE }

// HashNode stands in for a subtree the trace did not materialize. Only its
// keccak digest is known.
type HashNode struct {
	hash common.Hash
}

// NewHashNode returns a placeholder for the subtree with the given digest.
func NewHashNode(h common.Hash) HashNode {
	return HashNode{hash: h}
}

func (n HashNode) Kind() NodeKind { return HASH_NODE }

// Hash returns the digest the placeholder stands for.
func (n HashNode) Hash() common.Hash { return n.hash }

// EmptyNode marks the absence of a child.
type EmptyNode struct{}

func (n EmptyNode) Kind() NodeKind { return EMPTY_NODE }

func isEmpty(n Node) bool {
	if n == nil {
		return true
	}
	_, ok := n.(EmptyNode)
	return ok
}

// prefixLen returns the length of the common prefix of a and b.
func prefixLen(a, b []byte) int {
	length := len(a)
	if len(b) < length {
		length = len(b)
	}
	var i int
	for i = 0; i < length; i++ {
		if a[i] != b[i] {
			break
		}
	}
	return i
}
