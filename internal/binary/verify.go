package binary

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork

	"github.com/ZebulonRouseFrantzich/binshim/internal/logging"
)

// VerifierConfig configures archive verification.
type VerifierConfig struct {
	Policy VerifyPolicy
	// KeyringPath is an OpenPGP public keyring trusted for .sig files.
	KeyringPath string
	Sigstore    SigstoreConfig
	Logger      logging.Logger
}

// Verifier handles cryptographic verification of release archives
type Verifier struct {
	policy      VerifyPolicy
	keyringPath string
	sigstore    SigstoreConfig
	logger      logging.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(cfg VerifierConfig) *Verifier {
	policy, ok := ParseVerifyPolicy(string(cfg.Policy))
	if !ok {
		policy = VerifyRequired
	}

	return &Verifier{
		policy:      policy,
		keyringPath: cfg.KeyringPath,
		sigstore:    cfg.Sigstore,
		logger:      logging.OrNoop(cfg.Logger),
	}
}

// Policy returns the effective verification policy.
func (v *Verifier) Policy() VerifyPolicy {
	return v.policy
}

// VerifyFile verifies an archive with every sidecar the release published.
//
// Any sidecar that is present and configured must verify; a failure is
// never downgraded to a weaker method. With VerifyRequired at least one
// method must succeed. With VerifyAuto an unverified archive is allowed
// and logged.
func (v *Verifier) VerifyFile(archivePath string, sidecars Sidecars) ([]VerificationMethod, error) {
	if v.policy == VerifyOff {
		v.logger.Debug("verification disabled", "archive", archivePath)
		return nil, nil
	}

	var methods []VerificationMethod

	if sidecars.Checksum != "" {
		result, err := v.verifySHA256(archivePath, sidecars.Checksum)
		if err != nil || !result.Success {
			return nil, fmt.Errorf("SHA256 verification failed: %w", result.Error)
		}
		methods = append(methods, result.Method)
	}

	if sidecars.Signature != "" {
		if v.keyringPath == "" {
			v.logger.Warn("release publishes a signature but no keyring is configured", "signature", sidecars.Signature)
		} else {
			result, err := v.verifyGPG(archivePath, sidecars.Signature)
			if err != nil || !result.Success {
				return nil, fmt.Errorf("GPG verification failed: %w", result.Error)
			}
			methods = append(methods, result.Method)
		}
	}

	if sidecars.Bundle != "" {
		if !v.sigstore.Enabled() {
			v.logger.Warn("release publishes a sigstore bundle but no signer identity is configured", "bundle", sidecars.Bundle)
		} else {
			result, err := v.verifySigstore(archivePath, sidecars.Bundle)
			if err != nil || !result.Success {
				return nil, fmt.Errorf("sigstore verification failed: %w", result.Error)
			}
			methods = append(methods, result.Method)
		}
	}

	if len(methods) == 0 {
		if v.policy == VerifyRequired {
			return nil, fmt.Errorf("no verification method available for %s", filepath.Base(archivePath))
		}
		v.logger.Warn("archive not verified: release publishes no usable checksum or signature", "archive", filepath.Base(archivePath))
	}

	return methods, nil
}

// verifyGPG verifies a file using a detached OpenPGP signature
func (v *Verifier) verifyGPG(archivePath, signaturePath string) (*VerificationResult, error) {
	fail := func(err error) (*VerificationResult, error) {
		return &VerificationResult{Method: VerificationGPG, Success: false, Error: err}, err
	}

	keyring, err := LoadKeyring(v.keyringPath)
	if err != nil {
		return fail(fmt.Errorf("load keyring: %w", err))
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fail(fmt.Errorf("open archive: %w", err))
	}
	defer archiveFile.Close()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		return fail(fmt.Errorf("open signature: %w", err))
	}
	defer sigFile.Close()

	// Try armored first, then binary
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, archiveFile, sigFile, nil)
	if err != nil {
		if _, seekErr := archiveFile.Seek(0, io.SeekStart); seekErr != nil {
			return fail(fmt.Errorf("rewind archive: %w", seekErr))
		}
		if _, seekErr := sigFile.Seek(0, io.SeekStart); seekErr != nil {
			return fail(fmt.Errorf("rewind signature: %w", seekErr))
		}
		_, err = openpgp.CheckDetachedSignature(keyring, archiveFile, sigFile, nil)
	}
	if err != nil {
		return fail(fmt.Errorf("verify signature: %w", err))
	}

	v.logger.Debug("signature verified", "archive", filepath.Base(archivePath))
	return &VerificationResult{Method: VerificationGPG, Success: true}, nil
}

// verifySHA256 verifies a file using a SHA256 checksum file
func (v *Verifier) verifySHA256(archivePath, checksumPath string) (*VerificationResult, error) {
	fail := func(err error) (*VerificationResult, error) {
		return &VerificationResult{Method: VerificationSHA256, Success: false, Error: err}, err
	}

	actualChecksum, err := calculateSHA256(archivePath)
	if err != nil {
		return fail(fmt.Errorf("calculate checksum: %w", err))
	}

	expectedChecksum, err := findChecksum(checksumPath, filepath.Base(archivePath))
	if err != nil {
		return fail(fmt.Errorf("find checksum: %w", err))
	}

	if !strings.EqualFold(actualChecksum, expectedChecksum) {
		return fail(fmt.Errorf("checksum mismatch:\nactual:   %s\nexpected: %s", actualChecksum, expectedChecksum))
	}

	v.logger.Debug("checksum verified", "archive", filepath.Base(archivePath), "sha256", actualChecksum)
	return &VerificationResult{Method: VerificationSHA256, Success: true}, nil
}

// calculateSHA256 calculates the SHA256 checksum of a file
func calculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// findChecksum finds the checksum for filename in a checksum file.
// Accepts "abc123...  filename.tar.gz" lines (optionally "*filename" for
// binary mode) or a file holding only the bare digest.
func findChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	var bare []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		switch len(parts) {
		case 0:
			continue
		case 1:
			if isSHA256Hex(parts[0]) {
				bare = append(bare, parts[0])
			}
			continue
		}

		checksumFilename := strings.TrimPrefix(parts[1], "*")
		if checksumFilename == filename || filepath.Base(checksumFilename) == filename {
			return parts[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	if len(bare) == 1 {
		return bare[0], nil
	}

	return "", fmt.Errorf("checksum not found for %s", filename)
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
