package trie_test

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/vulcanize/go-trace-ir/trie"
)

func newEmpty() *trie.Trie {
	return trie.NewTrie(trie.EmptyNode{}, trie.NewNodeSet(nil))
}

func TestEmptyTrieHash(t *testing.T) {
	h, err := newEmpty().Hash()
	require.NoError(t, err)
	require.Equal(t, types.EmptyRootHash, h)
}

// canonical vector from the ethereum trie test suite (trieanyorder)
func TestKnownRootHash(t *testing.T) {
	entries := map[string]string{
		"do":    "verb",
		"dog":   "puppy",
		"doge":  "coin",
		"horse": "stallion",
	}
	tr := newEmpty()
	for k, v := range entries {
		require.NoError(t, tr.Put([]byte(k), []byte(v)))
	}
	h, err := tr.Hash()
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x5991bb8c6514148a29db676a14ac506cd2cd5775ace63c30a4fe457715e9ac84"), h)
}

func TestGetPutDelete(t *testing.T) {
	tr := newEmpty()
	entries := map[string]string{
		"do":    "verb",
		"dog":   "puppy",
		"doge":  "coin",
		"horse": "stallion",
	}
	for k, v := range entries {
		require.NoError(t, tr.Put([]byte(k), []byte(v)))
	}
	for k, v := range entries {
		got, err := tr.Get([]byte(k))
		require.NoError(t, err)
		require.Equal(t, []byte(v), got)
	}

	_, err := tr.Get([]byte("cat"))
	require.ErrorIs(t, err, trie.ErrNotFound)
	_, err = tr.Get([]byte("dogecoin"))
	require.ErrorIs(t, err, trie.ErrNotFound)

	// overwrite
	require.NoError(t, tr.Put([]byte("dog"), []byte("hound")))
	got, err := tr.Get([]byte("dog"))
	require.NoError(t, err)
	require.Equal(t, []byte("hound"), got)

	// deleting an absent key is not an error
	require.NoError(t, tr.Delete([]byte("cat")))

	for k := range entries {
		require.NoError(t, tr.Delete([]byte(k)))
		_, err := tr.Get([]byte(k))
		require.ErrorIs(t, err, trie.ErrNotFound)
	}
	h, err := tr.Hash()
	require.NoError(t, err)
	require.Equal(t, types.EmptyRootHash, h)
}

func TestEmptyValuePutDeletes(t *testing.T) {
	tr := newEmpty()
	require.NoError(t, tr.Put([]byte("do"), []byte("verb")))
	require.NoError(t, tr.Put([]byte("dog"), []byte("puppy")))
	before, err := tr.Hash()
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("doge"), []byte("coin")))
	require.NoError(t, tr.Put([]byte("doge"), nil))

	after, err := tr.Hash()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

// insertion order must not affect the root
func TestOrderIndependence(t *testing.T) {
	keys := [][]byte{
		[]byte("horse"), []byte("doge"), []byte("dog"), []byte("do"),
	}
	values := [][]byte{
		[]byte("stallion"), []byte("coin"), []byte("puppy"), []byte("verb"),
	}

	forward := newEmpty()
	for i := range keys {
		require.NoError(t, forward.Put(keys[i], values[i]))
	}
	backward := newEmpty()
	for i := len(keys) - 1; i >= 0; i-- {
		require.NoError(t, backward.Put(keys[i], values[i]))
	}

	fh, err := forward.Hash()
	require.NoError(t, err)
	bh, err := backward.Hash()
	require.NoError(t, err)
	require.Equal(t, fh, bh)
}

func TestNodeCodecRoundTrip(t *testing.T) {
	tr := newEmpty()
	// small values keep the leaves below the 32-byte inlining threshold,
	// large ones force digest references; cover both shapes
	require.NoError(t, tr.Put([]byte("do"), []byte("a")))
	require.NoError(t, tr.Put([]byte("dog"), []byte("b")))
	require.NoError(t, tr.Put([]byte("horse"), bytes.Repeat([]byte{0xca}, 40)))

	enc, err := trie.Encode(tr.Root())
	require.NoError(t, err)
	decoded, err := trie.Decode(enc)
	require.NoError(t, err)
	reenc, err := trie.Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, enc, reenc)
}
