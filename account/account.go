// Package account holds the state trie's leaf value type: the RLP-encoded
// account record of nonce, balance, storage root and code hash.
package account

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// EmptyCodeHash is the keccak digest of empty bytecode.
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// Account is the Ethereum consensus representation of an account, as stored
// in state trie leaves.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// Empty returns a fresh account with no balance, storage, or code.
func Empty() *Account {
	return &Account{
		Balance:  new(big.Int),
		Root:     types.EmptyRootHash,
		CodeHash: EmptyCodeHash.Bytes(),
	}
}

// Decode parses an RLP-encoded account leaf value.
func Decode(src []byte) (*Account, error) {
	acct := new(Account)
	if err := rlp.DecodeBytes(src, acct); err != nil {
		return nil, fmt.Errorf("invalid account leaf value (%v)", err)
	}
	return acct, nil
}

// Encode returns the canonical RLP encoding stored in the state trie leaf.
func (a *Account) Encode() ([]byte, error) {
	if a.Balance == nil {
		return nil, fmt.Errorf("account balance cannot be null")
	}
	return rlp.EncodeToBytes(a)
}

// HasStorage reports whether the account's storage trie is non-empty.
func (a *Account) HasStorage() bool {
	return a.Root != types.EmptyRootHash && a.Root != (common.Hash{})
}

// HasCode reports whether the account carries contract code.
func (a *Account) HasCode() bool {
	return len(a.CodeHash) == common.HashLength &&
		!bytes.Equal(a.CodeHash, EmptyCodeHash.Bytes())
}
