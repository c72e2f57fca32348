// Package binary resolves, downloads, verifies, installs and launches the
// prebuilt release executable that the shim wraps.
//
// # Platform resolution
//
// A PlatformTable maps the host's OS family and architecture, named the
// way Node reports them ("Linux", "Darwin", "Windows_NT"; "x64", "arm64"),
// to a release target triple and executable name. Matching is exact and
// case-sensitive. A host with no entry gets an *UnsupportedPlatformError
// listing the whole table:
//
//	p, err := binary.Resolve(info.OSFamily(), info.Architecture())
//	url := binary.BuildArtifactURL(repo, version, p)
//	// <repo>/releases/download/v<version>/<name>_v<version>_<target>.tar.gz
//
// # Verification
//
// Next to each archive a release may publish:
//   - <archive>.sha256: SHA256 checksum (integrity)
//   - <archive>.sig: OpenPGP detached signature, checked against a
//     configured keyring
//   - <archive>.sigstore.json: sigstore bundle, checked against a
//     configured signer identity
//
// Every published and configured sidecar must verify. The VerifyAuto
// policy allows an archive with no usable sidecar; VerifyRequired does not.
//
// # Usage
//
//	mgr, err := binary.NewManager(binary.Config{
//	    Home:       home,
//	    Name:       "tsdoc",
//	    Version:    "0.1.0",
//	    Repository: "https://github.com/owner/tsdoc",
//	})
//	p, err := mgr.Resolve(info)
//	err = mgr.Run(ctx, p, os.Args[1:])
//
// # Architecture
//
// The package is organized into several components:
//   - PlatformTable: host to release target mapping and URL construction
//   - Manager: High-level orchestration of download, verify, install, run
//   - Downloader: HTTP download with retry logic and caching
//   - Verifier: SHA256, OpenPGP and sigstore verification
//   - Extractor: Archive extraction (tar.gz)
package binary
