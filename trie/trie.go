package trie

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcanize/go-trace-ir/shared"
)

// Trie is a sparse Merkle Patricia trie reconstructed from proof fragments.
// Unvisited subtrees are hash placeholders; traversal into one fails with a
// MissingNodeError. Mutation follows Ethereum trie rules, so the recomputed
// root of a fully witnessed update matches the chain's.
//
// A Trie is not safe for concurrent use. One block's tries are owned by that
// block's replay and never shared across blocks.
type Trie struct {
	arena *NodeSet
	root  Node
}

// NewTrie returns a trie rooted in the given node, resolving placeholders
// against the provided proof arena.
func NewTrie(root Node, arena *NodeSet) *Trie {
	if root == nil {
		root = EmptyNode{}
	}
	return &Trie{arena: arena, root: root}
}

// Get returns the value stored under key. ErrNotFound means the key provably
// has no value; a MissingNodeError means the witness does not cover the path.
func (t *Trie) Get(key []byte) ([]byte, error) {
	path := shared.KeyToNibbles(key)
	r, bs, err := t.getWithPath(t.root, path)
	if err != nil {
		return nil, err
	}
	t.root = r
	return bs, nil
}

// getWithPath returns the value under the provided path in a subtrie rooted
// in curr. It also returns curr with all hash nodes along the path replaced
// by their materialized counterparts.
func (t *Trie) getWithPath(curr Node, path []byte) (Node, []byte, error) {
	switch n := curr.(type) {
	case EmptyNode:
		return curr, nil, ErrNotFound
	case *LeafNode:
		if bytes.Equal(n.Path, path) {
			return curr, n.Value, nil
		}
		return curr, nil, ErrNotFound
	case *BranchNode:
		if len(path) == 0 {
			if n.Value == nil {
				return curr, nil, ErrNotFound
			}
			return curr, n.Value, nil
		}
		r, bs, err := t.getWithPath(n.Children[path[0]], path[1:])
		if err != nil {
			return nil, nil, err
		}
		n.Children[path[0]] = r
		return curr, bs, nil
	case *ExtensionNode:
		if bytes.HasPrefix(path, n.Path) {
			r, bs, err := t.getWithPath(n.Child, path[len(n.Path):])
			if err != nil {
				return nil, nil, err
			}
			n.Child = r
			return curr, bs, nil
		}
		return curr, nil, ErrNotFound
	case HashNode:
		r, err := t.resolve(n, path)
		if err != nil {
			return nil, nil, err
		}
		return t.getWithPath(r, path)
	default:
		panic("invalid trie node type")
	}
}

// Put stores value under key. An empty value deletes the key.
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	path := shared.KeyToNibbles(key)
	r, err := t.putIntoNode(t.root, path, value)
	if err != nil {
		return err
	}
	t.root = r
	return nil
}

func (t *Trie) putIntoNode(curr Node, path []byte, value []byte) (Node, error) {
	switch n := curr.(type) {
	case EmptyNode:
		return &LeafNode{Path: path, Value: value}, nil
	case *LeafNode:
		return t.putIntoLeaf(n, path, value)
	case *BranchNode:
		return t.putIntoBranch(n, path, value)
	case *ExtensionNode:
		return t.putIntoExtension(n, path, value)
	case HashNode:
		r, err := t.resolve(n, path)
		if err != nil {
			return nil, err
		}
		return t.putIntoNode(r, path, value)
	default:
		panic("invalid trie node type")
	}
}

// putIntoLeaf replaces the leaf's value on an exact match and otherwise
// forks the shared prefix into a branch.
func (t *Trie) putIntoLeaf(curr *LeafNode, path []byte, value []byte) (Node, error) {
	matched := prefixLen(curr.Path, path)
	if matched == len(path) && matched == len(curr.Path) {
		return &LeafNode{Path: path, Value: value}, nil
	}

	b := NewBranchNode()
	if matched == len(curr.Path) {
		b.Value = curr.Value
	} else {
		b.Children[curr.Path[matched]] = &LeafNode{Path: curr.Path[matched+1:], Value: curr.Value}
	}
	if matched == len(path) {
		b.Value = value
	} else {
		b.Children[path[matched]] = &LeafNode{Path: path[matched+1:], Value: value}
	}
	if matched > 0 {
		return &ExtensionNode{Path: path[:matched], Child: b}, nil
	}
	return b, nil
}

func (t *Trie) putIntoBranch(curr *BranchNode, path []byte, value []byte) (Node, error) {
	if len(path) == 0 {
		curr.Value = value
		return curr, nil
	}
	r, err := t.putIntoNode(curr.Children[path[0]], path[1:], value)
	if err != nil {
		return nil, err
	}
	curr.Children[path[0]] = r
	return curr, nil
}

func (t *Trie) putIntoExtension(curr *ExtensionNode, path []byte, value []byte) (Node, error) {
	matched := prefixLen(curr.Path, path)
	if matched == len(curr.Path) {
		r, err := t.putIntoNode(curr.Child, path[matched:], value)
		if err != nil {
			return nil, err
		}
		curr.Child = r
		return curr, nil
	}

	b := NewBranchNode()
	b.Children[curr.Path[matched]] = newShortNode(curr.Path[matched+1:], curr.Child)
	if matched == len(path) {
		b.Value = value
	} else {
		b.Children[path[matched]] = &LeafNode{Path: path[matched+1:], Value: value}
	}
	if matched > 0 {
		return &ExtensionNode{Path: path[:matched], Child: b}, nil
	}
	return b, nil
}

// newShortNode wraps child under the given path, collapsing a zero-length
// path to the child itself.
func newShortNode(path []byte, child Node) Node {
	if len(path) == 0 {
		return child
	}
	if l, ok := child.(*LeafNode); ok {
		return &LeafNode{Path: append(append([]byte{}, path...), l.Path...), Value: l.Value}
	}
	return &ExtensionNode{Path: path, Child: child}
}

// Delete removes key from the trie. It returns no error on a provably
// missing key.
func (t *Trie) Delete(key []byte) error {
	path := shared.KeyToNibbles(key)
	r, err := t.deleteFromNode(t.root, path)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	t.root = r
	return nil
}

func (t *Trie) deleteFromNode(curr Node, path []byte) (Node, error) {
	switch n := curr.(type) {
	case EmptyNode:
		return nil, ErrNotFound
	case *LeafNode:
		if bytes.Equal(n.Path, path) {
			return EmptyNode{}, nil
		}
		return nil, ErrNotFound
	case *BranchNode:
		return t.deleteFromBranch(n, path)
	case *ExtensionNode:
		return t.deleteFromExtension(n, path)
	case HashNode:
		r, err := t.resolve(n, path)
		if err != nil {
			return nil, err
		}
		return t.deleteFromNode(r, path)
	default:
		panic("invalid trie node type")
	}
}

func (t *Trie) deleteFromBranch(b *BranchNode, path []byte) (Node, error) {
	if len(path) == 0 {
		if b.Value == nil {
			return nil, ErrNotFound
		}
		b.Value = nil
	} else {
		r, err := t.deleteFromNode(b.Children[path[0]], path[1:])
		if err != nil {
			return nil, err
		}
		b.Children[path[0]] = r
	}

	var count, index int
	for i := range b.Children {
		if !isEmpty(b.Children[i]) {
			index = i
			count++
		}
	}
	if count > 1 || (count == 1 && b.Value != nil) {
		return b, nil
	}
	if count == 0 {
		if b.Value == nil {
			return EmptyNode{}, nil
		}
		return &LeafNode{Value: b.Value}, nil
	}

	// a single child remains; merge it with its branch index so the trie
	// keeps its canonical shape
	c := b.Children[index]
	if h, ok := c.(HashNode); ok {
		var err error
		c, err = t.resolve(h, path)
		if err != nil {
			return nil, err
		}
	}
	switch nxt := c.(type) {
	case *LeafNode:
		return &LeafNode{Path: append([]byte{byte(index)}, nxt.Path...), Value: nxt.Value}, nil
	case *ExtensionNode:
		return &ExtensionNode{Path: append([]byte{byte(index)}, nxt.Path...), Child: nxt.Child}, nil
	default:
		return &ExtensionNode{Path: []byte{byte(index)}, Child: c}, nil
	}
}

func (t *Trie) deleteFromExtension(n *ExtensionNode, path []byte) (Node, error) {
	if !bytes.HasPrefix(path, n.Path) {
		return nil, ErrNotFound
	}
	r, err := t.deleteFromNode(n.Child, path[len(n.Path):])
	if err != nil {
		return nil, err
	}
	switch nxt := r.(type) {
	case *ExtensionNode:
		return &ExtensionNode{Path: append(append([]byte{}, n.Path...), nxt.Path...), Child: nxt.Child}, nil
	case *LeafNode:
		return &LeafNode{Path: append(append([]byte{}, n.Path...), nxt.Path...), Value: nxt.Value}, nil
	case EmptyNode:
		return EmptyNode{}, nil
	default:
		n.Child = r
		return n, nil
	}
}

// Hash recomputes the trie's root digest from its materialized state.
func (t *Trie) Hash() (common.Hash, error) {
	switch n := t.root.(type) {
	case EmptyNode:
		return types.EmptyRootHash, nil
	case HashNode:
		return n.hash, nil
	default:
		enc, err := Encode(t.root)
		if err != nil {
			return common.Hash{}, err
		}
		return crypto.Keccak256Hash(enc), nil
	}
}

// Root returns the trie's root node.
func (t *Trie) Root() Node {
	return t.root
}

// resolve swaps a hash placeholder for its materialized node using the proof
// arena, checking that the node's recomputed digest matches the placeholder.
func (t *Trie) resolve(h HashNode, path []byte) (Node, error) {
	enc, ok := t.arena.Get(h.hash)
	if !ok {
		return nil, &MissingNodeError{Hash: h.hash, Path: path}
	}
	if got := crypto.Keccak256Hash(enc); got != h.hash {
		return nil, &ConsistencyError{Want: h.hash, Got: got}
	}
	return Decode(enc)
}
