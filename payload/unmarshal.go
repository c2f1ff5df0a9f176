package payload

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

// DecodeError signals a malformed or incomplete payload encoding.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("payload: invalid %s (%v)", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads a dag-cbor encoded trace payload.
func Decode(r io.Reader) (*TracePayload, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(src)
}

// DecodeBytes is like Decode, but it uses an input buffer directly.
func DecodeBytes(src []byte) (*TracePayload, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagcbor.Decode(nb, bytes.NewReader(src)); err != nil {
		return nil, &DecodeError{Field: "payload", Err: err}
	}
	node := nb.Build()
	if node.Kind() != datamodel.Kind_Map {
		return nil, &DecodeError{Field: "payload", Err: fmt.Errorf("expected map, got %s", node.Kind())}
	}

	p := new(TracePayload)
	var err error
	if p.PreStateRoot, err = lookupHash(node, "preStateRoot"); err != nil {
		return nil, err
	}
	if p.Nodes, err = lookupBlobMap(node, "nodes"); err != nil {
		return nil, err
	}
	if p.Code, err = lookupOptionalBlobMap(node, "code"); err != nil {
		return nil, err
	}
	if p.Header, err = unpackHeader(node); err != nil {
		return nil, err
	}

	txsNode, err := node.LookupByString("txs")
	if err != nil {
		return nil, &DecodeError{Field: "txs", Err: err}
	}
	if txsNode.Kind() != datamodel.Kind_List {
		return nil, &DecodeError{Field: "txs", Err: fmt.Errorf("expected list, got %s", txsNode.Kind())}
	}
	p.Txs = make([]TxTrace, 0, txsNode.Length())
	it := txsNode.ListIterator()
	for !it.Done() {
		i, txNode, err := it.Next()
		if err != nil {
			return nil, &DecodeError{Field: "txs", Err: err}
		}
		tx, err := unpackTx(txNode)
		if err != nil {
			return nil, &DecodeError{Field: fmt.Sprintf("txs[%d]", i), Err: err}
		}
		p.Txs = append(p.Txs, tx)
	}
	return p, nil
}

func unpackHeader(node datamodel.Node) (Header, error) {
	var h Header
	hdrNode, err := node.LookupByString("header")
	if err != nil {
		if isAbsent(err) {
			return h, nil
		}
		return h, &DecodeError{Field: "header", Err: err}
	}
	if h.Number, err = lookupOptionalUint(hdrNode, "number"); err != nil {
		return h, err
	}
	if h.GasUsed, err = lookupOptionalUint(hdrNode, "gasUsed"); err != nil {
		return h, err
	}
	if h.Timestamp, err = lookupOptionalUint(hdrNode, "timestamp"); err != nil {
		return h, err
	}
	if b, err := lookupOptionalBytes(hdrNode, "hash"); err != nil {
		return h, err
	} else if b != nil {
		h.Hash = common.BytesToHash(b)
	}
	if b, err := lookupOptionalBytes(hdrNode, "coinbase"); err != nil {
		return h, err
	} else if b != nil {
		h.Coinbase = common.BytesToAddress(b)
	}
	return h, nil
}

func unpackTx(node datamodel.Node) (TxTrace, error) {
	var tx TxTrace
	var err error
	if tx.PreRoot, err = lookupHash(node, "preRoot"); err != nil {
		return tx, err
	}
	if tx.PostRoot, err = lookupHash(node, "postRoot"); err != nil {
		return tx, err
	}
	if tx.GasUsed, err = lookupOptionalUint(node, "gasUsed"); err != nil {
		return tx, err
	}
	if b, err := lookupOptionalBytes(node, "hash"); err != nil {
		return tx, err
	} else if b != nil {
		tx.Hash = common.BytesToHash(b)
	}
	opsNode, err := node.LookupByString("ops")
	if err != nil {
		return tx, &DecodeError{Field: "ops", Err: err}
	}
	tx.Ops, err = DecodeOps(opsNode)
	return tx, err
}

// DecodeOps unpacks an operation log list node. It is shared with the IR
// codec, which carries the log through verbatim.
func DecodeOps(node datamodel.Node) ([]Op, error) {
	if node.Kind() != datamodel.Kind_List {
		return nil, &DecodeError{Field: "ops", Err: fmt.Errorf("expected list, got %s", node.Kind())}
	}
	ops := make([]Op, 0, node.Length())
	it := node.ListIterator()
	for !it.Done() {
		i, opNode, err := it.Next()
		if err != nil {
			return nil, &DecodeError{Field: "ops", Err: err}
		}
		op, err := unpackOp(opNode)
		if err != nil {
			return nil, &DecodeError{Field: fmt.Sprintf("ops[%d]", i), Err: err}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func unpackOp(node datamodel.Node) (Op, error) {
	var op Op
	kindNode, err := node.LookupByString("kind")
	if err != nil {
		return op, err
	}
	kind, err := kindNode.AsString()
	if err != nil {
		return op, err
	}
	switch OpKind(kind) {
	case OpRead, OpWrite, OpCreate, OpDestroy, OpDeploy:
		op.Kind = OpKind(kind)
	default:
		return op, fmt.Errorf("unknown op kind %q", kind)
	}

	addr, err := lookupBytes(node, "address")
	if err != nil {
		return op, err
	}
	if len(addr) != common.AddressLength {
		return op, fmt.Errorf("address should be %d bytes, got %d", common.AddressLength, len(addr))
	}
	op.Address = common.BytesToAddress(addr)

	if b, err := lookupOptionalBytes(node, "slot"); err != nil {
		return op, err
	} else if b != nil {
		slot := common.BytesToHash(b)
		op.Slot = &slot
	}
	if b, err := lookupOptionalBytes(node, "value"); err != nil {
		return op, err
	} else if b != nil {
		op.Value = new(uint256.Int).SetBytes(b)
	}
	if b, err := lookupOptionalBytes(node, "balance"); err != nil {
		return op, err
	} else if b != nil {
		op.Balance = new(uint256.Int).SetBytes(b)
	}
	if n, err := lookupOptionalUintPtr(node, "nonce"); err != nil {
		return op, err
	} else {
		op.Nonce = n
	}
	if b, err := lookupOptionalBytes(node, "codeHash"); err != nil {
		return op, err
	} else if b != nil {
		ch := common.BytesToHash(b)
		op.CodeHash = &ch
	}
	if b, err := lookupOptionalBytes(node, "code"); err != nil {
		return op, err
	} else {
		op.Code = b
	}
	if op.Kind == OpDeploy && op.Code == nil && op.CodeHash == nil {
		return op, fmt.Errorf("deploy op requires code or codeHash")
	}
	return op, nil
}

func lookupBlobMap(node datamodel.Node, key string) (map[common.Hash][]byte, error) {
	mapNode, err := node.LookupByString(key)
	if err != nil {
		return nil, &DecodeError{Field: key, Err: err}
	}
	return unpackBlobMap(key, mapNode)
}

func lookupOptionalBlobMap(node datamodel.Node, key string) (map[common.Hash][]byte, error) {
	mapNode, err := node.LookupByString(key)
	if err != nil {
		if isAbsent(err) {
			return make(map[common.Hash][]byte), nil
		}
		return nil, &DecodeError{Field: key, Err: err}
	}
	return unpackBlobMap(key, mapNode)
}

// DecodeBlobMap parses a hex-hash keyed byte-blob map node. Shared with the
// IR codec.
func DecodeBlobMap(field string, node datamodel.Node) (map[common.Hash][]byte, error) {
	return unpackBlobMap(field, node)
}

// unpackBlobMap parses a hex-hash keyed byte-blob map (proof nodes, code).
// Key/content agreement is deliberately not checked here.
func unpackBlobMap(field string, node datamodel.Node) (map[common.Hash][]byte, error) {
	if node.Kind() != datamodel.Kind_Map {
		return nil, &DecodeError{Field: field, Err: fmt.Errorf("expected map, got %s", node.Kind())}
	}
	blobs := make(map[common.Hash][]byte, node.Length())
	it := node.MapIterator()
	for !it.Done() {
		k, v, err := it.Next()
		if err != nil {
			return nil, &DecodeError{Field: field, Err: err}
		}
		ks, err := k.AsString()
		if err != nil {
			return nil, &DecodeError{Field: field, Err: err}
		}
		hb, err := hexutil.Decode(ks)
		if err != nil || len(hb) != common.HashLength {
			return nil, &DecodeError{Field: field, Err: fmt.Errorf("key %q is not a hex hash", ks)}
		}
		vb, err := v.AsBytes()
		if err != nil {
			return nil, &DecodeError{Field: field, Err: err}
		}
		blobs[common.BytesToHash(hb)] = vb
	}
	return blobs, nil
}

func lookupBytes(node datamodel.Node, key string) ([]byte, error) {
	vn, err := node.LookupByString(key)
	if err != nil {
		return nil, err
	}
	return vn.AsBytes()
}

func lookupOptionalBytes(node datamodel.Node, key string) ([]byte, error) {
	vn, err := node.LookupByString(key)
	if err != nil {
		if isAbsent(err) {
			return nil, nil
		}
		return nil, err
	}
	return vn.AsBytes()
}

func lookupHash(node datamodel.Node, key string) (common.Hash, error) {
	b, err := lookupBytes(node, key)
	if err != nil {
		return common.Hash{}, &DecodeError{Field: key, Err: err}
	}
	if len(b) != common.HashLength {
		return common.Hash{}, &DecodeError{Field: key, Err: fmt.Errorf("should be %d bytes, got %d", common.HashLength, len(b))}
	}
	return common.BytesToHash(b), nil
}

func lookupOptionalUint(node datamodel.Node, key string) (uint64, error) {
	v, err := lookupOptionalUintPtr(node, key)
	if err != nil || v == nil {
		return 0, err
	}
	return *v, nil
}

func lookupOptionalUintPtr(node datamodel.Node, key string) (*uint64, error) {
	vn, err := node.LookupByString(key)
	if err != nil {
		if isAbsent(err) {
			return nil, nil
		}
		return nil, err
	}
	i, err := vn.AsInt()
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, &DecodeError{Field: key, Err: fmt.Errorf("should be non-negative, got %d", i)}
	}
	u := uint64(i)
	return &u, nil
}

func isAbsent(err error) bool {
	_, ok := err.(datamodel.ErrNotExists)
	return ok
}
