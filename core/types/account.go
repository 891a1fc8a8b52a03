package types

import "offerchain/crypto"

// Account is the envelope stored for every address. Wallets carry a zero owner
// and no data; program accounts are owned by the program that created them and
// hold its serialized record in Data.
type Account struct {
	Lamports uint64         `json:"lamports"`
	Nonce    uint64         `json:"nonce"`
	Owner    crypto.Address `json:"owner"`
	Data     []byte         `json:"data,omitempty"`
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Data != nil {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return &clone
}

// IsEmpty reports whether the account has never been written.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && a.Nonce == 0 && a.Owner.IsZero() && len(a.Data) == 0)
}
