package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vulcanize/go-trace-ir/shared"
)

// Encode returns the canonical RLP encoding of a materialized node. It is
// the byte string whose keccak digest a parent records for this node.
func Encode(n Node) ([]byte, error) {
	// 1KiB can be allocated on the stack, and covers most nodes without
	// having to grow the buffer and cause allocations.
	enc := make([]byte, 0, 1024)
	return AppendEncode(enc, n)
}

// AppendEncode is like Encode, but it uses a destination buffer directly.
func AppendEncode(enc []byte, n Node) ([]byte, error) {
	var nodeFields []interface{}
	var err error
	switch n := n.(type) {
	case *BranchNode:
		nodeFields, err = packBranchNode(n)
	case *ExtensionNode:
		nodeFields, err = packExtensionNode(n)
	case *LeafNode:
		nodeFields, err = packLeafNode(n)
	default:
		return nil, fmt.Errorf("%s node has no canonical encoding", n.Kind())
	}
	if err != nil {
		return nil, err
	}
	wbs := shared.NewWriteableByteSlice(&enc)
	if err := rlp.Encode(wbs, nodeFields); err != nil {
		return enc, fmt.Errorf("invalid trie node form (%v)", err)
	}
	return enc, nil
}

func packBranchNode(n *BranchNode) ([]interface{}, error) {
	nodeFields := make([]interface{}, 17)
	for i := 0; i < 16; i++ {
		ref, err := packChild(n.Children[i])
		if err != nil {
			return nil, fmt.Errorf("branch child %x: %v", i, err)
		}
		nodeFields[i] = ref
	}
	nodeFields[16] = n.Value
	if n.Value == nil {
		nodeFields[16] = []byte{}
	}
	return nodeFields, nil
}

func packExtensionNode(n *ExtensionNode) ([]interface{}, error) {
	if isEmpty(n.Child) {
		return nil, fmt.Errorf("extension node requires a child")
	}
	ref, err := packChild(n.Child)
	if err != nil {
		return nil, err
	}
	return []interface{}{shared.HexToCompact(n.Path), ref}, nil
}

func packLeafNode(n *LeafNode) ([]interface{}, error) {
	// the terminator nibble marks the compact path as a leaf's
	path := append(append([]byte{}, n.Path...), 16)
	return []interface{}{shared.HexToCompact(path), n.Value}, nil
}

// packChild returns the reference a parent embeds for a child: the empty
// string for Empty, the recorded digest for a placeholder, and otherwise the
// child's digest, or its raw encoding when that encoding is shorter than a
// digest.
func packChild(child Node) (interface{}, error) {
	switch c := child.(type) {
	case EmptyNode:
		return []byte{}, nil
	case nil:
		return []byte{}, nil
	case HashNode:
		return c.hash.Bytes(), nil
	default:
		enc, err := Encode(child)
		if err != nil {
			return nil, err
		}
		if len(enc) < 32 {
			return rlp.RawValue(enc), nil
		}
		return crypto.Keccak256(enc), nil
	}
}
