package ir

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"

	"github.com/vulcanize/go-trace-ir/payload"
)

// Decode reads a dag-cbor encoded generation unit. The pipeline never
// consumes IR; this supports downstream tooling and round-trip checks.
func Decode(r io.Reader) (*Generation, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(src)
}

// DecodeBytes is like Decode, but it uses an input buffer directly.
func DecodeBytes(src []byte) (*Generation, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagcbor.Decode(nb, bytes.NewReader(src)); err != nil {
		return nil, &payload.DecodeError{Field: "generation", Err: err}
	}
	node := nb.Build()
	if node.Kind() != datamodel.Kind_Map {
		return nil, &payload.DecodeError{Field: "generation", Err: fmt.Errorf("expected map, got %s", node.Kind())}
	}

	g := new(Generation)
	var err error
	if g.TxIndex, err = lookupInt(node, "txIndex"); err != nil {
		return nil, err
	}
	if g.GasUsed, err = lookupUint(node, "gasUsed"); err != nil {
		return nil, err
	}
	if g.TxHash, err = lookupHash(node, "txHash"); err != nil {
		return nil, err
	}
	if g.PreRoot, err = lookupHash(node, "preRoot"); err != nil {
		return nil, err
	}
	if g.PostRoot, err = lookupHash(node, "postRoot"); err != nil {
		return nil, err
	}

	stateNode, err := node.LookupByString("state")
	if err != nil {
		return nil, &payload.DecodeError{Field: "state", Err: err}
	}
	if g.State, err = payload.DecodeBlobMap("state", stateNode); err != nil {
		return nil, err
	}
	codeNode, err := node.LookupByString("code")
	if err != nil {
		return nil, &payload.DecodeError{Field: "code", Err: err}
	}
	if g.Code, err = payload.DecodeBlobMap("code", codeNode); err != nil {
		return nil, err
	}
	storageNode, err := node.LookupByString("storage")
	if err != nil {
		return nil, &payload.DecodeError{Field: "storage", Err: err}
	}
	if g.Storage, err = unpackStorage(storageNode); err != nil {
		return nil, err
	}
	opsNode, err := node.LookupByString("ops")
	if err != nil {
		return nil, &payload.DecodeError{Field: "ops", Err: err}
	}
	if g.Ops, err = payload.DecodeOps(opsNode); err != nil {
		return nil, err
	}
	return g, nil
}

func unpackStorage(node datamodel.Node) (map[common.Address]map[common.Hash][]byte, error) {
	if node.Kind() != datamodel.Kind_Map {
		return nil, &payload.DecodeError{Field: "storage", Err: fmt.Errorf("expected map, got %s", node.Kind())}
	}
	storage := make(map[common.Address]map[common.Hash][]byte, node.Length())
	it := node.MapIterator()
	for !it.Done() {
		k, v, err := it.Next()
		if err != nil {
			return nil, &payload.DecodeError{Field: "storage", Err: err}
		}
		ks, err := k.AsString()
		if err != nil {
			return nil, &payload.DecodeError{Field: "storage", Err: err}
		}
		ab, err := hexutil.Decode(ks)
		if err != nil || len(ab) != common.AddressLength {
			return nil, &payload.DecodeError{Field: "storage", Err: fmt.Errorf("key %q is not a hex address", ks)}
		}
		nodes, err := payload.DecodeBlobMap("storage", v)
		if err != nil {
			return nil, err
		}
		storage[common.BytesToAddress(ab)] = nodes
	}
	return storage, nil
}

func lookupHash(node datamodel.Node, key string) (common.Hash, error) {
	vn, err := node.LookupByString(key)
	if err != nil {
		return common.Hash{}, &payload.DecodeError{Field: key, Err: err}
	}
	b, err := vn.AsBytes()
	if err != nil {
		return common.Hash{}, &payload.DecodeError{Field: key, Err: err}
	}
	if len(b) != common.HashLength {
		return common.Hash{}, &payload.DecodeError{Field: key, Err: fmt.Errorf("should be %d bytes, got %d", common.HashLength, len(b))}
	}
	return common.BytesToHash(b), nil
}

func lookupInt(node datamodel.Node, key string) (int, error) {
	vn, err := node.LookupByString(key)
	if err != nil {
		return 0, &payload.DecodeError{Field: key, Err: err}
	}
	i, err := vn.AsInt()
	if err != nil || i < 0 {
		return 0, &payload.DecodeError{Field: key, Err: fmt.Errorf("should be a non-negative int (%v)", err)}
	}
	return int(i), nil
}

func lookupUint(node datamodel.Node, key string) (uint64, error) {
	i, err := lookupInt(node, key)
	return uint64(i), err
}
