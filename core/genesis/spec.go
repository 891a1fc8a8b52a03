package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
	"sort"
	"strings"

	"offerchain/crypto"
)

// Alloc funds one wallet at genesis.
type Alloc struct {
	Address  string `json:"address" toml:"Address"`
	Lamports uint64 `json:"lamports" toml:"Lamports"`
}

// Spec is the JSON genesis file: a list of funded wallets.
type Spec struct {
	Alloc []Alloc `json:"alloc"`
}

// LoadSpec reads and validates a genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if _, err := Resolve(spec.Alloc); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Balance is a validated allocation.
type Balance struct {
	Address  crypto.Address
	Lamports uint64
}

// Resolve parses addresses, merges duplicates and returns the balances in
// address order.
func Resolve(allocs []Alloc) ([]Balance, error) {
	merged := make(map[crypto.Address]uint64, len(allocs))
	for i, alloc := range allocs {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, fmt.Errorf("alloc[%d]: %w", i, err)
		}
		if alloc.Lamports == 0 {
			return nil, fmt.Errorf("alloc[%d]: lamports must be positive", i)
		}
		sum, carry := bits.Add64(merged[addr], alloc.Lamports, 0)
		if carry != 0 {
			return nil, fmt.Errorf("alloc[%d]: balance overflows", i)
		}
		merged[addr] = sum
	}
	out := make([]Balance, 0, len(merged))
	for addr, lamports := range merged {
		out = append(out, Balance{Address: addr, Lamports: lamports})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}
