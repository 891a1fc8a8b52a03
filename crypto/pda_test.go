package crypto

import (
	"crypto/sha256"
	"hash"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) Address {
	t.Helper()
	addr, err := DecodeAddress(s)
	require.NoError(t, err)
	return addr
}

func TestCreateProgramAddress(t *testing.T) {
	exceededSeed := make([]byte, maxSeedLength+1)
	maxSeed := make([]byte, maxSeedLength)

	seedKey := mustDecode(t, "SeedPubey1111111111111111111111111111111111")
	programID := mustDecode(t, "BPFLoader1111111111111111111111111111111111")

	_, err := CreateProgramAddress(programID, exceededSeed)
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)
	_, err = CreateProgramAddress(programID, []byte("short seed"), exceededSeed)
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)

	_, err = CreateProgramAddress(programID, maxSeed)
	assert.NoError(t, err)

	cases := []struct {
		expected string
		input    [][]byte
	}{
		{
			expected: "3gF2KMe9KiC6FNVBmfg9i267aMPvK37FewCip4eGBFcT",
			input:    [][]byte{{}, {1}},
		},
		{
			expected: "7ytmC1nT1xY4RfxCV2ZgyA7UakC93do5ZdyhdF3EtPj7",
			input:    [][]byte{[]byte("☉")},
		},
		{
			expected: "HwRVBufQ4haG5XSgpspwKtNd3PC9GM9m1196uJW36vds",
			input:    [][]byte{[]byte("Talking"), []byte("Squirrels")},
		},
		{
			expected: "GUs5qLUfsEHkcMB9T38vjr18ypEhRuNWiePW2LoK4E3K",
			input:    [][]byte{seedKey[:]},
		},
	}

	for _, tc := range cases {
		key, err := CreateProgramAddress(programID, tc.input...)
		assert.NoError(t, err)
		assert.Equal(t, tc.expected, key.String())
		assert.False(t, IsOnCurve(key))
	}

	a, err := CreateProgramAddress(programID, []byte("Talking"))
	assert.NoError(t, err)
	b, err := CreateProgramAddress(programID, []byte("Talking"), []byte("Squirrels"))
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCreateProgramAddressTooManySeeds(t *testing.T) {
	seeds := make([][]byte, maxSeeds+1)
	_, err := CreateProgramAddress(Address{}, seeds...)
	assert.Equal(t, ErrTooManySeeds, err)
}

type fixedHash struct {
	sumResult []byte
}

func (f *fixedHash) Write(p []byte) (int, error) { return len(p), nil }
func (f *fixedHash) Sum([]byte) []byte           { return f.sumResult }
func (f *fixedHash) Reset()                      {}
func (f *fixedHash) Size() int                   { return sha256.Size }
func (f *fixedHash) BlockSize() int              { return sha256.BlockSize }

func TestCreateProgramAddressRejectsOnCurve(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	onCurve := key.PubKey().Address()
	require.True(t, IsOnCurve(onCurve))

	programHashCtor = func() hash.Hash {
		return &fixedHash{sumResult: onCurve[:]}
	}
	defer func() {
		programHashCtor = sha256.New
	}()

	_, err = CreateProgramAddress(Address{1}, []byte("Lil'"), []byte("Bits"))
	assert.Equal(t, ErrInvalidPublicKey, err)
}

func TestFindProgramAddress(t *testing.T) {
	for i := 0; i < 200; i++ {
		key, err := GeneratePrivateKey()
		require.NoError(t, err)

		addr, bump, err := FindProgramAddressAndBump(key.PubKey().Address(), []byte("Lil'"), []byte("Bits"))
		require.NoError(t, err)
		assert.False(t, IsOnCurve(addr))

		again, err := CreateProgramAddress(key.PubKey().Address(), []byte("Lil'"), []byte("Bits"), []byte{bump})
		require.NoError(t, err)
		assert.Equal(t, addr, again)
	}
}

func TestFindProgramAddressReference(t *testing.T) {
	references := []struct {
		programID string
		expected  string
	}{
		{
			programID: "4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM",
			expected:  "Bn9pAWUXWc5Kd849xTkQcHqiCbHUEizLFn4r5Cf8XYnd",
		},
		{
			programID: "8opHzTAnfzRpPEx21XtnrVTX28YQuCpAjcn1PczScKh",
			expected:  "oDvUHiiGdMo31xYzjefAzUekWH8EbCKrxgs2FkyTs1S",
		},
		{
			programID: "CiDwVBFgWV9E5MvXWoLgnEgn2hK7rJikbvfWavzAQz3",
			expected:  "B2vBn2bmF9GuaGkebrm8oUqDC34pE6m4bagjNcVE6msv",
		},
		{
			programID: "GcdayuLaLyrdmUu324nahyv33G5poQdLUEZ1nEytDeP",
			expected:  "2mN5Nfq9v1EwTV9FPTHPESZ3XiZce9wi5PQoULFuxvev",
		},
		{
			programID: "21Z7hRtGQYRi8NocdZzhRuBRt9UZbFXbm1dKYvevp4vB",
			expected:  "9PPbRbNP3rqwzk16r7NDBzk1YDfo9EpWDWSqCYLn5eaF",
		},
		{
			programID: "2M59vuWgsiuHAqQVB6KvuXuaBCJR8138gMAm4uCuR6Du",
			expected:  "E5dLtHAM353EPnHyuZ32sKREn26VW4Y8bzb2KQJTBHQh",
		},
	}

	for _, r := range references {
		actual, err := FindProgramAddress(mustDecode(t, r.programID), []byte("Lil'"), []byte("Bits"))
		assert.NoError(t, err)
		assert.Equal(t, r.expected, actual.String())
	}
}
