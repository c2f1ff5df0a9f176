package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vulcanize/go-trace-ir/shared"
)

// Decode parses the canonical RLP encoding of a trie node. Child references
// shorter than a digest are materialized inline; 32-byte references become
// hash placeholders to be resolved against the proof arena.
func Decode(src []byte) (Node, error) {
	var nodeFields []interface{}
	if err := rlp.DecodeBytes(src, &nodeFields); err != nil {
		return nil, err
	}
	return decodeFields(nodeFields)
}

func decodeFields(nodeFields []interface{}) (Node, error) {
	switch len(nodeFields) {
	case 2:
		return decodeTwoMemberNode(nodeFields)
	case 17:
		return unpackBranchNode(nodeFields)
	default:
		return nil, fmt.Errorf("trie node should have 2 or 17 fields, got %d", len(nodeFields))
	}
}

// decodeTwoMemberNode takes a two-member node, discerns leaf from extension
// by the compact path flag byte, and decodes the partial path.
func decodeTwoMemberNode(i []interface{}) (Node, error) {
	first, ok := i[0].([]byte)
	if !ok || len(first) == 0 {
		return nil, fmt.Errorf("two-member node requires a compact path byte slice")
	}
	switch first[0] / 16 {
	case '\x00', '\x01':
		return unpackExtensionNode(shared.CompactToHex(first), i[1])
	case '\x02', '\x03':
		return unpackLeafNode(shared.CompactToHex(first), i[1])
	default:
		return nil, fmt.Errorf("unknown hex prefix %x", first[0])
	}
}

func unpackExtensionNode(partialPath []byte, childField interface{}) (Node, error) {
	child, err := unpackChild(childField)
	if err != nil {
		return nil, fmt.Errorf("extension child: %v", err)
	}
	if isEmpty(child) {
		return nil, fmt.Errorf("extension node requires a child")
	}
	return &ExtensionNode{Path: partialPath, Child: child}, nil
}

func unpackLeafNode(partialPath []byte, valField interface{}) (Node, error) {
	val, ok := valField.([]byte)
	if !ok {
		return nil, fmt.Errorf("leaf node requires a value byte slice")
	}
	return &LeafNode{Path: partialPath, Value: val}, nil
}

func unpackBranchNode(nodeFields []interface{}) (Node, error) {
	b := NewBranchNode()
	for i := 0; i < 16; i++ {
		child, err := unpackChild(nodeFields[i])
		if err != nil {
			return nil, fmt.Errorf("branch child %x: %v", i, err)
		}
		b.Children[i] = child
	}
	valBytes, ok := nodeFields[16].([]byte)
	if !ok {
		return nil, fmt.Errorf("branch node 17th member should be a byte array (val)")
	}
	if len(valBytes) > 0 {
		b.Value = valBytes
	}
	return b, nil
}

// unpackChild decodes a single child reference: an empty string, a digest,
// or an inlined node given as nested fields.
func unpackChild(field interface{}) (Node, error) {
	if ref, ok := field.([]byte); ok {
		switch len(ref) {
		case 0:
			return EmptyNode{}, nil
		case common.HashLength:
			return NewHashNode(common.BytesToHash(ref)), nil
		default:
			return nil, fmt.Errorf("child reference of unexpected length %d", len(ref))
		}
	}
	// the child node is inlined; it decoded into its own field list
	inlined, ok := field.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unable to decode child into []byte or []interface{}")
	}
	return decodeFields(inlined)
}
