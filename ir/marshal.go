package ir

import (
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"

	"github.com/vulcanize/go-trace-ir/payload"
	"github.com/vulcanize/go-trace-ir/shared"
)

// Encode writes the dag-cbor encoding of a generation unit. Map keys and
// witness entries are assembled in sorted order, so repeated runs over
// identical input produce byte-identical output.
func Encode(g *Generation, w io.Writer) error {
	node, err := buildNode(g)
	if err != nil {
		return err
	}
	return dagcbor.Encode(node, w)
}

// EncodeBytes is like Encode, but it returns a buffer directly.
func EncodeBytes(g *Generation) ([]byte, error) {
	var buf []byte
	node, err := buildNode(g)
	if err != nil {
		return nil, err
	}
	if err := dagcbor.Encode(node, writeableByteSlice{&buf}); err != nil {
		return nil, err
	}
	return buf, nil
}

// Cid returns the content identifier of the unit's encoding: a keccak-256
// multihash under the dag-cbor codec. Stable across runs, it doubles as the
// unit's identity for reproducibility checks.
func (g *Generation) Cid() (cid.Cid, error) {
	enc, err := EncodeBytes(g)
	if err != nil {
		return cid.Cid{}, err
	}
	return shared.RawToCid(cid.DagCBOR, enc)
}

type writeableByteSlice struct{ enc *[]byte }

func (w writeableByteSlice) Write(b []byte) (int, error) {
	*w.enc = append(*w.enc, b...)
	return len(b), nil
}

func buildNode(g *Generation) (datamodel.Node, error) {
	nb := basicnode.Prototype.Map.NewBuilder()
	ma, err := nb.BeginMap(9)
	if err != nil {
		return nil, err
	}
	// keys assembled in lexicographic order
	if err := ma.AssembleKey().AssignString("code"); err != nil {
		return nil, err
	}
	if err := payload.AssembleBlobMap(ma.AssembleValue(), g.Code); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("gasUsed"); err != nil {
		return nil, err
	}
	if err := ma.AssembleValue().AssignInt(int64(g.GasUsed)); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("ops"); err != nil {
		return nil, err
	}
	if err := payload.AssembleOps(ma.AssembleValue(), g.Ops); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("postRoot"); err != nil {
		return nil, err
	}
	if err := ma.AssembleValue().AssignBytes(g.PostRoot.Bytes()); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("preRoot"); err != nil {
		return nil, err
	}
	if err := ma.AssembleValue().AssignBytes(g.PreRoot.Bytes()); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("state"); err != nil {
		return nil, err
	}
	if err := payload.AssembleBlobMap(ma.AssembleValue(), g.State); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("storage"); err != nil {
		return nil, err
	}
	if err := assembleStorage(ma.AssembleValue(), g.Storage); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("txHash"); err != nil {
		return nil, err
	}
	if err := ma.AssembleValue().AssignBytes(g.TxHash.Bytes()); err != nil {
		return nil, err
	}
	if err := ma.AssembleKey().AssignString("txIndex"); err != nil {
		return nil, err
	}
	if err := ma.AssembleValue().AssignInt(int64(g.TxIndex)); err != nil {
		return nil, err
	}
	if err := ma.Finish(); err != nil {
		return nil, err
	}
	return nb.Build(), nil
}

func assembleStorage(na datamodel.NodeAssembler, storage map[common.Address]map[common.Hash][]byte) error {
	addrs := make([]common.Address, 0, len(storage))
	for a := range storage {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Hex() < addrs[j].Hex()
	})
	ma, err := na.BeginMap(int64(len(storage)))
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if err := ma.AssembleKey().AssignString(a.Hex()); err != nil {
			return err
		}
		if err := payload.AssembleBlobMap(ma.AssembleValue(), storage[a]); err != nil {
			return err
		}
	}
	return ma.Finish()
}
