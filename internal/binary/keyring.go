package binary

import (
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// LoadKeyring reads an OpenPGP public keyring, armored or binary, from path.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		if _, seekErr := keyringFile.Seek(0, io.SeekStart); seekErr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", seekErr)
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// KeyFingerprints returns the hex fingerprints of the primary keys in a keyring.
func KeyFingerprints(keyring openpgp.EntityList) []string {
	fingerprints := make([]string, 0, len(keyring))
	for _, entity := range keyring {
		if entity.PrimaryKey == nil {
			continue
		}
		fingerprints = append(fingerprints, fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint))
	}
	return fingerprints
}
