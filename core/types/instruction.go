package types

import "offerchain/crypto"

// AccountMeta names an account an instruction touches and how.
type AccountMeta struct {
	Address    crypto.Address `json:"address"`
	IsSigner   bool           `json:"isSigner"`
	IsWritable bool           `json:"isWritable"`
}

// NewAccountMeta returns a writable AccountMeta.
func NewAccountMeta(addr crypto.Address, isSigner bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: isSigner, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only AccountMeta.
func NewReadonlyAccountMeta(addr crypto.Address, isSigner bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: isSigner}
}

// Instruction is a single program invocation.
type Instruction struct {
	Program  crypto.Address `json:"program"`
	Accounts []AccountMeta  `json:"accounts"`
	Data     []byte         `json:"data"`
}
