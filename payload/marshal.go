package payload

import (
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

// Encode writes the dag-cbor encoding of a trace payload. Map entries are
// assembled in sorted key order, so encoding is deterministic: the same
// payload always produces the same bytes. Used to produce synthetic payloads
// and to exercise decode round-trips.
func Encode(p *TracePayload, w io.Writer) error {
	node, err := buildNode(p)
	if err != nil {
		return err
	}
	return dagcbor.Encode(node, w)
}

// EncodeBytes is like Encode, but it returns a buffer directly.
func EncodeBytes(p *TracePayload) ([]byte, error) {
	var buf []byte
	node, err := buildNode(p)
	if err != nil {
		return nil, err
	}
	w := writeableByteSlice{&buf}
	if err := dagcbor.Encode(node, w); err != nil {
		return nil, err
	}
	return buf, nil
}

type writeableByteSlice struct{ enc *[]byte }

func (w writeableByteSlice) Write(b []byte) (int, error) {
	*w.enc = append(*w.enc, b...)
	return len(b), nil
}

func buildNode(p *TracePayload) (datamodel.Node, error) {
	nb := basicnode.Prototype.Map.NewBuilder()
	ma, err := nb.BeginMap(5)
	if err != nil {
		return nil, err
	}
	// keys assembled in lexicographic order
	if err := ma.AssembleKey().AssignString("code"); err != nil {
		return nil, err
	}
	if err := AssembleBlobMap(ma.AssembleValue(), p.Code); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("header"); err != nil {
		return nil, err
	}
	if err := assembleHeader(ma.AssembleValue(), p.Header); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("nodes"); err != nil {
		return nil, err
	}
	if err := AssembleBlobMap(ma.AssembleValue(), p.Nodes); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("preStateRoot"); err != nil {
		return nil, err
	}
	if err := ma.AssembleValue().AssignBytes(p.PreStateRoot.Bytes()); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("txs"); err != nil {
		return nil, err
	}
	if err := assembleTxs(ma.AssembleValue(), p.Txs); err != nil {
		return nil, err
	}
	if err := ma.Finish(); err != nil {
		return nil, err
	}
	return nb.Build(), nil
}

// AssembleBlobMap packs a hash-keyed blob map with hex string keys in sorted
// order. Shared with the IR codec.
func AssembleBlobMap(na datamodel.NodeAssembler, blobs map[common.Hash][]byte) error {
	keys := make([]common.Hash, 0, len(blobs))
	for h := range blobs {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Hex() < keys[j].Hex()
	})
	ma, err := na.BeginMap(int64(len(blobs)))
	if err != nil {
		return err
	}
	for _, h := range keys {
		if err := ma.AssembleKey().AssignString(h.Hex()); err != nil {
			return err
		}
		if err := ma.AssembleValue().AssignBytes(blobs[h]); err != nil {
			return err
		}
	}
	return ma.Finish()
}

func assembleHeader(na datamodel.NodeAssembler, h Header) error {
	ma, err := na.BeginMap(5)
	if err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("coinbase"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignBytes(h.Coinbase.Bytes()); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("gasUsed"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignInt(int64(h.GasUsed)); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("hash"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignBytes(h.Hash.Bytes()); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("number"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignInt(int64(h.Number)); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("timestamp"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignInt(int64(h.Timestamp)); err != nil {
		return err
	}
	return ma.Finish()
}

func assembleTxs(na datamodel.NodeAssembler, txs []TxTrace) error {
	la, err := na.BeginList(int64(len(txs)))
	if err != nil {
		return err
	}
	for i := range txs {
		if err := assembleTx(la.AssembleValue(), &txs[i]); err != nil {
			return err
		}
	}
	return la.Finish()
}

func assembleTx(na datamodel.NodeAssembler, tx *TxTrace) error {
	ma, err := na.BeginMap(5)
	if err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("gasUsed"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignInt(int64(tx.GasUsed)); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("hash"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignBytes(tx.Hash.Bytes()); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("ops"); err != nil {
		return err
	}
	if err := AssembleOps(ma.AssembleValue(), tx.Ops); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("postRoot"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignBytes(tx.PostRoot.Bytes()); err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("preRoot"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignBytes(tx.PreRoot.Bytes()); err != nil {
		return err
	}
	return ma.Finish()
}

// AssembleOps packs an operation log. Shared with the IR codec, which
// carries the log through verbatim.
func AssembleOps(na datamodel.NodeAssembler, ops []Op) error {
	la, err := na.BeginList(int64(len(ops)))
	if err != nil {
		return err
	}
	for i := range ops {
		if err := assembleOp(la.AssembleValue(), &ops[i]); err != nil {
			return err
		}
	}
	return la.Finish()
}

func assembleOp(na datamodel.NodeAssembler, op *Op) error {
	n := int64(2)
	if op.Slot != nil {
		n++
	}
	if op.Value != nil {
		n++
	}
	if op.Balance != nil {
		n++
	}
	if op.Nonce != nil {
		n++
	}
	if op.CodeHash != nil {
		n++
	}
	if op.Code != nil {
		n++
	}
	ma, err := na.BeginMap(n)
	if err != nil {
		return err
	}
	if err := ma.AssembleKey().AssignString("address"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignBytes(op.Address.Bytes()); err != nil {
		return err
	}
	if op.Balance != nil {
		if err := ma.AssembleKey().AssignString("balance"); err != nil {
			return err
		}
		if err := ma.AssembleValue().AssignBytes(op.Balance.Bytes()); err != nil {
			return err
		}
	}
	if op.Code != nil {
		if err := ma.AssembleKey().AssignString("code"); err != nil {
			return err
		}
		if err := ma.AssembleValue().AssignBytes(op.Code); err != nil {
			return err
		}
	}
	if op.CodeHash != nil {
		if err := ma.AssembleKey().AssignString("codeHash"); err != nil {
			return err
		}
		if err := ma.AssembleValue().AssignBytes(op.CodeHash.Bytes()); err != nil {
			return err
		}
	}
	if err := ma.AssembleKey().AssignString("kind"); err != nil {
		return err
	}
	if err := ma.AssembleValue().AssignString(string(op.Kind)); err != nil {
		return err
	}
	if op.Nonce != nil {
		if err := ma.AssembleKey().AssignString("nonce"); err != nil {
			return err
		}
		if err := ma.AssembleValue().AssignInt(int64(*op.Nonce)); err != nil {
			return err
		}
	}
	if op.Slot != nil {
		if err := ma.AssembleKey().AssignString("slot"); err != nil {
			return err
		}
		if err := ma.AssembleValue().AssignBytes(op.Slot.Bytes()); err != nil {
			return err
		}
	}
	if op.Value != nil {
		if err := ma.AssembleKey().AssignString("value"); err != nil {
			return err
		}
		if err := ma.AssembleValue().AssignBytes(op.Value.Bytes()); err != nil {
			return err
		}
	}
	return ma.Finish()
}
