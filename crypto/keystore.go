package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

const keystoreVersion = 1

type keystoreFile struct {
	Address Address             `json:"address"`
	Crypto  keystore.CryptoJSON `json:"crypto"`
	Version int                 `json:"version"`
}

// SaveToKeystore encrypts the key seed with scrypt + AES-CTR (the Ethereum v3
// cipher suite) and writes it to path. If the parent directory does not exist
// it will be created with 0700 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	cj, err := keystore.EncryptDataV3(key.Bytes(), []byte(passphrase), keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}
	payload, err := json.MarshalIndent(keystoreFile{
		Address: key.PubKey().Address(),
		Crypto:  cj,
		Version: keystoreVersion,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file keystoreFile
	if err := json.Unmarshal(keyJSON, &file); err != nil {
		return nil, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	if file.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", file.Version)
	}

	seed, err := keystore.DecryptDataV3(file.Crypto, passphrase)
	if err != nil {
		return nil, err
	}
	key, err := PrivateKeyFromBytes(seed)
	if err != nil {
		return nil, err
	}
	if key.PubKey().Address() != file.Address {
		return nil, errors.New("crypto: keystore address does not match key")
	}
	return key, nil
}
