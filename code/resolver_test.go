package code_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcanize/go-trace-ir/account"
	"github.com/vulcanize/go-trace-ir/code"
	"github.com/vulcanize/go-trace-ir/shared"
)

var (
	mockCodeA     = []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	mockCodeB     = []byte{0x60, 0x00, 0x60, 0x00, 0xfd}
	mockCodeHashA = crypto.Keccak256Hash(mockCodeA)
	mockCodeHashB = crypto.Keccak256Hash(mockCodeB)
	mockBlobs     = map[common.Hash][]byte{
		mockCodeHashA: mockCodeA,
		mockCodeHashB: mockCodeB,
	}
)

func TestResolve(t *testing.T) {
	resolved, err := code.Resolve(mockBlobs, []common.Hash{mockCodeHashA, mockCodeHashA, mockCodeHashB})
	if err != nil {
		t.Fatalf("unable to resolve code refs: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("resolved %d blobs, expected 2", len(resolved))
	}
	if !bytes.Equal(resolved[mockCodeHashA], mockCodeA) {
		t.Errorf("resolved code (%x) does not match expected code (%x)", resolved[mockCodeHashA], mockCodeA)
	}
	if !bytes.Equal(resolved[mockCodeHashB], mockCodeB) {
		t.Errorf("resolved code (%x) does not match expected code (%x)", resolved[mockCodeHashB], mockCodeB)
	}
}

func TestResolveEmptyCodeHash(t *testing.T) {
	// the empty code hash needs no blob
	resolved, err := code.Resolve(map[common.Hash][]byte{}, []common.Hash{account.EmptyCodeHash, {}})
	if err != nil {
		t.Fatalf("unable to resolve empty code hash: %v", err)
	}
	blob, ok := resolved[account.EmptyCodeHash]
	if !ok {
		t.Fatalf("empty code hash should resolve")
	}
	if len(blob) != 0 {
		t.Errorf("empty code hash resolved to %d bytes of code", len(blob))
	}
}

func TestResolveMissingBlob(t *testing.T) {
	missing := shared.RandomHash()
	_, err := code.Resolve(mockBlobs, []common.Hash{mockCodeHashA, missing})
	var missingErr *code.MissingCodeError
	if !errors.As(err, &missingErr) {
		t.Fatalf("resolving an unknown hash should return a MissingCodeError, got %v", err)
	}
	if missingErr.Hash != missing {
		t.Errorf("MissingCodeError names hash %x, expected %x", missingErr.Hash, missing)
	}
}

func TestResolveTamperedBlob(t *testing.T) {
	tampered := map[common.Hash][]byte{
		mockCodeHashA: mockCodeB,
	}
	_, err := code.Resolve(tampered, []common.Hash{mockCodeHashA})
	var mismatch *code.HashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("resolving a tampered blob should return a HashMismatchError, got %v", err)
	}
	if mismatch.Want != mockCodeHashA || mismatch.Got != mockCodeHashB {
		t.Errorf("HashMismatchError reports %x/%x, expected %x/%x", mismatch.Want, mismatch.Got, mockCodeHashA, mockCodeHashB)
	}
}

func TestRefs(t *testing.T) {
	refs := code.Refs(mockBlobs)
	if len(refs) != 2 {
		t.Fatalf("got %d refs, expected 2", len(refs))
	}
	if _, err := code.Resolve(mockBlobs, refs); err != nil {
		t.Errorf("unable to resolve a blob map against its own refs: %v", err)
	}
}
