package genesis

import (
	"fmt"

	"offerchain/core/state"
)

var appliedKey = []byte("genesis:applied")

// Apply credits every allocation exactly once. It returns false without
// touching state when genesis was already applied to this store.
func Apply(manager *state.Manager, allocs []Alloc) (bool, error) {
	if manager == nil {
		return false, fmt.Errorf("state manager must not be nil")
	}
	var marker uint64
	done, err := manager.KVGet(appliedKey, &marker)
	if err != nil {
		return false, fmt.Errorf("read genesis marker: %w", err)
	}
	if done {
		return false, nil
	}
	balances, err := Resolve(allocs)
	if err != nil {
		return false, err
	}
	overlay := manager.Begin()
	for _, b := range balances {
		acct, err := overlay.GetAccount(b.Address)
		if err != nil {
			overlay.Discard()
			return false, err
		}
		acct.Lamports = b.Lamports
		if err := overlay.PutAccount(b.Address, acct); err != nil {
			overlay.Discard()
			return false, err
		}
	}
	if err := overlay.KVPut(appliedKey, uint64(len(balances))); err != nil {
		overlay.Discard()
		return false, fmt.Errorf("write genesis marker: %w", err)
	}
	if err := overlay.Commit(); err != nil {
		overlay.Discard()
		return false, fmt.Errorf("commit genesis: %w", err)
	}
	return true, nil
}
