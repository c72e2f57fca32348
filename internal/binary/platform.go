package binary

import (
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo"
)

// Sidecar suffixes appended to the archive URL.
const (
	checksumSuffix  = ".sha256"
	signatureSuffix = ".sig"
	bundleSuffix    = ".sigstore.json"
)

// defaultPlatforms returns the release table for a tool, in declaration order.
//
// Apple Silicon hosts receive the x86_64 macOS build; the release pipeline
// does not publish an aarch64-apple-darwin artifact.
func defaultPlatforms(name string) []SupportedPlatform {
	return []SupportedPlatform{
		{OSFamily: OSLinux, Architecture: ArchX64, ReleaseTarget: "x86_64-unknown-linux-musl", ExecutableName: name},
		{OSFamily: OSWindows, Architecture: ArchX64, ReleaseTarget: "x86_64-pc-windows-gnu", ExecutableName: name + ".exe"},
		{OSFamily: OSDarwin, Architecture: ArchX64, ReleaseTarget: "x86_64-apple-darwin", ExecutableName: name},
		{OSFamily: OSDarwin, Architecture: ArchARM64, ReleaseTarget: "x86_64-apple-darwin", ExecutableName: name, Emulated: true},
	}
}

// defaultTable is built once from the compiled-in tool name and never mutated.
var defaultTable = MustPlatformTable(buildinfo.Name, defaultPlatforms(buildinfo.Name)...)

// PlatformTable is an immutable set of supported platforms keyed by
// (OSFamily, Architecture).
type PlatformTable struct {
	name    string
	entries []SupportedPlatform
	index   map[platformKey]int
}

// NewPlatformTable builds a table for the named tool. It fails if the
// table is empty, an entry is incomplete, or two entries share a key.
func NewPlatformTable(name string, entries ...SupportedPlatform) (*PlatformTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("platform table for %s is empty", name)
	}

	t := &PlatformTable{
		name:    name,
		entries: make([]SupportedPlatform, len(entries)),
		index:   make(map[platformKey]int, len(entries)),
	}
	copy(t.entries, entries)

	for i, p := range t.entries {
		if p.OSFamily == "" || p.Architecture == "" || p.ReleaseTarget == "" || p.ExecutableName == "" {
			return nil, fmt.Errorf("platform table entry %d (%s) is incomplete", i, p)
		}
		if prev, ok := t.index[p.key()]; ok {
			return nil, fmt.Errorf("platform table entries %d and %d both match %s", prev, i, p)
		}
		t.index[p.key()] = i
	}

	return t, nil
}

// MustPlatformTable is like NewPlatformTable but panics on an invalid table.
func MustPlatformTable(name string, entries ...SupportedPlatform) *PlatformTable {
	t, err := NewPlatformTable(name, entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the entry whose OS family and architecture exactly match
// the detected host values. Matching is case-sensitive. When nothing
// matches it returns an *UnsupportedPlatformError listing every entry.
func (t *PlatformTable) Resolve(detectedOSFamily, detectedArchitecture string) (SupportedPlatform, error) {
	key := platformKey{os: OSFamily(detectedOSFamily), arch: Architecture(detectedArchitecture)}
	if i, ok := t.index[key]; ok {
		return t.entries[i], nil
	}

	return SupportedPlatform{}, &UnsupportedPlatformError{
		Name:         t.name,
		OSFamily:     detectedOSFamily,
		Architecture: detectedArchitecture,
		Supported:    t.Entries(),
	}
}

// Entries returns a copy of the table in declaration order.
func (t *PlatformTable) Entries() []SupportedPlatform {
	out := make([]SupportedPlatform, len(t.entries))
	copy(out, t.entries)
	return out
}

// Resolve resolves the host against the compiled-in platform table.
func Resolve(detectedOSFamily, detectedArchitecture string) (SupportedPlatform, error) {
	return defaultTable.Resolve(detectedOSFamily, detectedArchitecture)
}

// SupportedPlatforms returns the compiled-in platform table.
func SupportedPlatforms() []SupportedPlatform {
	return defaultTable.Entries()
}

// ArtifactName returns the archive name prefix for a platform: the
// executable name without a Windows ".exe" suffix.
func ArtifactName(p SupportedPlatform) string {
	return strings.TrimSuffix(p.ExecutableName, ".exe")
}

// BuildArtifactURL returns the release archive URL for a platform:
//
//	<repo>/releases/download/v<version>/<name>_v<version>_<target>.tar.gz
//
// This naming is the release pipeline's publishing contract.
func BuildArtifactURL(repositoryBaseURL, version string, p SupportedPlatform) string {
	base := strings.TrimRight(repositoryBaseURL, "/")
	version = buildinfo.NormalizeVersion(version)

	return fmt.Sprintf("%s/releases/download/v%s/%s_v%s_%s.tar.gz",
		base, version, ArtifactName(p), version, p.ReleaseTarget)
}

// constructDownloadInfo builds the archive and sidecar URLs for a platform
func constructDownloadInfo(repositoryBaseURL, version string, p SupportedPlatform) *DownloadInfo {
	archiveURL := BuildArtifactURL(repositoryBaseURL, version, p)

	return &DownloadInfo{
		Name:         ArtifactName(p),
		Version:      buildinfo.NormalizeVersion(version),
		Platform:     p,
		URL:          archiveURL,
		ChecksumURL:  archiveURL + checksumSuffix,
		SignatureURL: archiveURL + signatureSuffix,
		BundleURL:    archiveURL + bundleSuffix,
	}
}
