package binary

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/verify"
)

// SigstoreConfig identifies the keyless signer trusted for .sigstore.json
// bundles.
type SigstoreConfig struct {
	// Identity is the certificate subject alternative name, typically the
	// release workflow URL.
	Identity string
	// Issuer is the OIDC issuer that authenticated Identity.
	Issuer string
	// TrustedRootPath is a trusted_root.json file. When empty the public
	// good instance root is fetched over TUF.
	TrustedRootPath string
}

// Enabled reports whether a signer identity is configured.
func (c SigstoreConfig) Enabled() bool {
	return c.Identity != "" && c.Issuer != ""
}

func (c SigstoreConfig) trustedRoot() (*root.TrustedRoot, error) {
	if c.TrustedRootPath != "" {
		return root.NewTrustedRootFromPath(c.TrustedRootPath)
	}
	return root.FetchTrustedRoot()
}

// verifySigstore verifies a file against a sigstore bundle
func (v *Verifier) verifySigstore(archivePath, bundlePath string) (*VerificationResult, error) {
	fail := func(err error) (*VerificationResult, error) {
		return &VerificationResult{Method: VerificationSigstore, Success: false, Error: err}, err
	}

	b, err := bundle.LoadJSONFromPath(bundlePath)
	if err != nil {
		return fail(fmt.Errorf("load bundle: %w", err))
	}

	trustedRoot, err := v.sigstore.trustedRoot()
	if err != nil {
		return fail(fmt.Errorf("load trusted root: %w", err))
	}

	sev, err := verify.NewVerifier(trustedRoot,
		verify.WithSignedCertificateTimestamps(1),
		verify.WithTransparencyLog(1),
		verify.WithObserverTimestamps(1),
	)
	if err != nil {
		return fail(fmt.Errorf("create verifier: %w", err))
	}

	certID, err := verify.NewShortCertificateIdentity(v.sigstore.Issuer, "", v.sigstore.Identity, "")
	if err != nil {
		return fail(fmt.Errorf("certificate identity: %w", err))
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fail(fmt.Errorf("open archive: %w", err))
	}
	defer archiveFile.Close()

	policy := verify.NewPolicy(verify.WithArtifact(archiveFile), verify.WithCertificateIdentity(certID))
	if _, err := sev.Verify(b, policy); err != nil {
		return fail(fmt.Errorf("verify bundle: %w", err))
	}

	v.logger.Debug("sigstore bundle verified", "archive", filepath.Base(archivePath), "identity", v.sigstore.Identity)
	return &VerificationResult{Method: VerificationSigstore, Success: true}, nil
}
