package trie_test

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/vulcanize/go-trace-ir/trie"
)

// fourLeafTrie builds a trie of four large leaves fanning out of the root
// branch, one per distinct first nibble, and returns it with its keys.
func fourLeafTrie(t *testing.T) (*trie.Trie, [][]byte) {
	t.Helper()
	tr := newEmpty()
	keys := make([][]byte, 4)
	for i := range keys {
		key := make([]byte, 32)
		key[0] = byte(i) << 4
		key[31] = 0xff
		keys[i] = key
		// 40-byte values keep every leaf above the inlining threshold
		require.NoError(t, tr.Put(key, bytes.Repeat([]byte{0xa0 + byte(i)}, 40)))
	}
	return tr, keys
}

func TestBuildFromNodeSet(t *testing.T) {
	full, keys := fourLeafTrie(t)
	root, err := full.Hash()
	require.NoError(t, err)
	nodes, err := full.Nodes()
	require.NoError(t, err)
	require.Equal(t, 5, len(nodes)) // root branch + 4 leaves

	set := trie.NewNodeSet(nodes)
	require.NoError(t, set.Verify())

	rebuilt, err := trie.Build(root, set)
	require.NoError(t, err)
	h, err := rebuilt.Hash()
	require.NoError(t, err)
	require.Equal(t, root, h)

	for i, key := range keys {
		v, err := rebuilt.Get(key)
		require.NoError(t, err)
		require.Equal(t, bytes.Repeat([]byte{0xa0 + byte(i)}, 40), v)
	}
}

func TestBuildEmptyRoot(t *testing.T) {
	tr, err := trie.Build(types.EmptyRootHash, trie.NewNodeSet(nil))
	require.NoError(t, err)
	h, err := tr.Hash()
	require.NoError(t, err)
	require.Equal(t, types.EmptyRootHash, h)

	tr, err = trie.Build(common.Hash{}, trie.NewNodeSet(nil))
	require.NoError(t, err)
	h, err = tr.Hash()
	require.NoError(t, err)
	require.Equal(t, types.EmptyRootHash, h)
}

func TestPartialWitnessBuild(t *testing.T) {
	full, keys := fourLeafTrie(t)
	root, err := full.Hash()
	require.NoError(t, err)

	witness, err := full.Witness([][]byte{keys[0]})
	require.NoError(t, err)
	require.Equal(t, 2, len(witness)) // root branch + the witnessed leaf

	partial, err := trie.Build(root, trie.NewNodeSet(witness))
	require.NoError(t, err)

	v, err := partial.Get(keys[0])
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xa0}, 40), v)

	// the other leaves stayed hash placeholders
	var missing *trie.MissingNodeError
	_, err = partial.Get(keys[1])
	require.ErrorAs(t, err, &missing)

	// an absent key diverging inside the witnessed region is provable
	absent := make([]byte, 32)
	absent[0] = 0xf0
	_, err = partial.Get(absent)
	require.ErrorIs(t, err, trie.ErrNotFound)
}

// a partially witnessed trie must recompute the same post-mutation root as
// the fully materialized one
func TestPartialUpdateMatchesFullRoot(t *testing.T) {
	full, keys := fourLeafTrie(t)
	root, err := full.Hash()
	require.NoError(t, err)
	witness, err := full.Witness([][]byte{keys[0]})
	require.NoError(t, err)
	partial, err := trie.Build(root, trie.NewNodeSet(witness))
	require.NoError(t, err)

	update := bytes.Repeat([]byte{0xee}, 40)
	require.NoError(t, full.Put(keys[0], update))
	require.NoError(t, partial.Put(keys[0], update))

	want, err := full.Hash()
	require.NoError(t, err)
	got, err := partial.Hash()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestVerifyRejectsTamperedNode(t *testing.T) {
	full, _ := fourLeafTrie(t)
	nodes, err := full.Nodes()
	require.NoError(t, err)

	for h := range nodes {
		tampered := append([]byte{}, nodes[h]...)
		tampered[len(tampered)-1] ^= 0x01
		nodes[h] = tampered
		break
	}

	var consistency *trie.ConsistencyError
	require.ErrorAs(t, trie.NewNodeSet(nodes).Verify(), &consistency)
}

func TestBuildRejectsTamperedNode(t *testing.T) {
	full, _ := fourLeafTrie(t)
	root, err := full.Hash()
	require.NoError(t, err)
	nodes, err := full.Nodes()
	require.NoError(t, err)

	enc, ok := nodes[root]
	require.True(t, ok)
	tampered := append([]byte{}, enc...)
	tampered[len(tampered)-1] ^= 0x01
	nodes[root] = tampered

	var consistency *trie.ConsistencyError
	_, err = trie.Build(root, trie.NewNodeSet(nodes))
	require.ErrorAs(t, err, &consistency)
}

func TestWitnessOfAbsentKey(t *testing.T) {
	full, _ := fourLeafTrie(t)
	root, err := full.Hash()
	require.NoError(t, err)

	// absence proof stops at the root branch's empty child
	absent := make([]byte, 32)
	absent[0] = 0xf0
	witness, err := full.Witness([][]byte{absent})
	require.NoError(t, err)
	require.Equal(t, 1, len(witness))
	_, ok := witness[root]
	require.True(t, ok)
}

func TestNodesRoundTrip(t *testing.T) {
	full, keys := fourLeafTrie(t)
	root, err := full.Hash()
	require.NoError(t, err)
	nodes, err := full.Nodes()
	require.NoError(t, err)

	rebuilt, err := trie.Build(root, trie.NewNodeSet(nodes))
	require.NoError(t, err)
	again, err := rebuilt.Nodes()
	require.NoError(t, err)
	require.Equal(t, nodes, again)

	witness, err := rebuilt.Witness(keys)
	require.NoError(t, err)
	require.Equal(t, nodes, witness)
}
