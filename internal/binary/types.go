package binary

import (
	"time"
)

// OSFamily is an operating system family as reported by the host
// ("Linux", "Darwin", "Windows_NT").
type OSFamily string

// Architecture is a CPU architecture as reported by the host ("x64", "arm64").
type Architecture string

// Operating system families present in the platform table.
const (
	OSLinux   OSFamily = "Linux"
	OSDarwin  OSFamily = "Darwin"
	OSWindows OSFamily = "Windows_NT"
)

// Architectures present in the platform table.
const (
	ArchX64   Architecture = "x64"
	ArchARM64 Architecture = "arm64"
)

// platformKey identifies a table entry. Keys are unique within a table.
type platformKey struct {
	os   OSFamily
	arch Architecture
}

// SupportedPlatform describes one prebuilt release artifact.
type SupportedPlatform struct {
	OSFamily       OSFamily     `json:"type" yaml:"type"`
	Architecture   Architecture `json:"architecture" yaml:"architecture"`
	ReleaseTarget  string       `json:"rust_target" yaml:"rust_target"`
	ExecutableName string       `json:"binary_name" yaml:"binary_name"`
	// Emulated is set when the artifact targets a different CPU than the
	// host reports and runs under translation.
	Emulated bool `json:"emulated,omitempty" yaml:"emulated,omitempty"`
}

func (p SupportedPlatform) key() platformKey {
	return platformKey{os: p.OSFamily, arch: p.Architecture}
}

// String returns "osFamily/architecture".
func (p SupportedPlatform) String() string {
	return string(p.OSFamily) + "/" + string(p.Architecture)
}

// VerifyPolicy controls how strictly downloaded archives are verified.
type VerifyPolicy string

const (
	// VerifyAuto verifies with whatever sidecar files the release publishes.
	VerifyAuto VerifyPolicy = "auto"
	// VerifyRequired fails the install unless at least one method succeeds.
	VerifyRequired VerifyPolicy = "required"
	// VerifyOff skips verification entirely.
	VerifyOff VerifyPolicy = "off"
)

// ParseVerifyPolicy converts a config value into a VerifyPolicy.
func ParseVerifyPolicy(s string) (VerifyPolicy, bool) {
	switch p := VerifyPolicy(s); p {
	case VerifyAuto, VerifyRequired, VerifyOff:
		return p, true
	case "":
		return VerifyAuto, true
	default:
		return "", false
	}
}

// VerificationMethod indicates how an archive was verified
type VerificationMethod int

const (
	// VerificationNone indicates no verification was performed
	VerificationNone VerificationMethod = iota
	// VerificationGPG indicates OpenPGP detached signature verification
	VerificationGPG
	// VerificationSHA256 indicates SHA256 checksum verification
	VerificationSHA256
	// VerificationSigstore indicates sigstore bundle verification
	VerificationSigstore
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "GPG"
	case VerificationSHA256:
		return "SHA256"
	case VerificationSigstore:
		return "Sigstore"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// DownloadInfo contains the URLs needed to fetch and verify one archive
type DownloadInfo struct {
	Name         string
	Version      string
	Platform     SupportedPlatform
	URL          string // archive URL
	ChecksumURL  string // <archive>.sha256
	SignatureURL string // <archive>.sig
	BundleURL    string // <archive>.sigstore.json
}

// Sidecars holds local paths of downloaded verification files.
// An empty path means the release does not publish that file.
type Sidecars struct {
	Checksum  string
	Signature string
	Bundle    string
}

// DownloadResult contains information about a completed download
type DownloadResult struct {
	Path         string
	Verified     []VerificationMethod
	DownloadTime time.Duration
}

// VerificationResult contains the outcome of a verification attempt
type VerificationResult struct {
	Method  VerificationMethod
	Success bool
	Error   error
}
