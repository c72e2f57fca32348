// Package platform detects the host operating system and CPU architecture
// and reports them in the naming used by release platform tables.
//
// Detection uses runtime.GOOS and runtime.GOARCH for the process platform
// and gopsutil for Linux distribution and kernel details. Unknown values are
// carried through unchanged so that resolution, not detection, decides
// whether a host is supported. The same information is exposed to the Lua
// config file as a read-only `platform` table.
package platform

import (
	"context"
	"strings"
)

// Linux distribution family constants.
// These represent canonical family names for grouping related distributions.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Host OS family names, as reported by os.type() style introspection.
const (
	OSFamilyLinux   = "Linux"
	OSFamilyDarwin  = "Darwin"
	OSFamilyWindows = "Windows_NT"
)

// Host architecture names, as reported by os.arch() style introspection.
const (
	ArchX64   = "x64"
	ArchARM64 = "arm64"
	ArchIA32  = "ia32"
	ArchARM   = "arm"
)

// Info contains platform detection information.
type Info struct {
	OS         string // "linux", "darwin", "windows"
	Arch       string // "amd64", "arm64" (normalized when known, raw otherwise)
	ArchRaw    string // original GOARCH
	KernelArch string // kernel machine name (e.g. "x86_64"), may be empty
	Platform   string // distro ID (Linux only, e.g., "ubuntu", "arch")
	Family     string // canonical family (e.g., "debian", "rhel", "arch")
	Version    string // distro version (Linux only, e.g., "22.04")
}

// OSFamily returns the operating system family in host naming
// ("Linux", "Darwin", "Windows_NT", "FreeBSD", "SunOS", ...). Systems
// without a known host name are title-cased.
func (i *Info) OSFamily() string {
	switch i.OS {
	case "linux":
		return OSFamilyLinux
	case "darwin":
		return OSFamilyDarwin
	case "windows":
		return OSFamilyWindows
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "netbsd":
		return "NetBSD"
	case "aix":
		return "AIX"
	case "solaris", "illumos":
		return "SunOS"
	case "":
		return ""
	default:
		return strings.ToUpper(i.OS[:1]) + i.OS[1:]
	}
}

// Architecture returns the CPU architecture in host naming ("x64", "arm64").
// Unknown architectures are returned as reported by the runtime.
func (i *Info) Architecture() string {
	switch i.Arch {
	case "amd64":
		return ArchX64
	case "arm64":
		return ArchARM64
	case "386":
		return ArchIA32
	case "arm":
		return ArchARM
	default:
		return i.Arch
	}
}

// Distro contains Linux distribution information.
// This is nil on non-Linux platforms.
type Distro struct {
	ID      string // distro ID (e.g., "ubuntu")
	Family  string // canonical family (e.g., "debian")
	Version string // version (e.g., "22.04")
}

// GetDistro returns distro information if this is a Linux platform.
// Returns nil for non-Linux platforms or if distro detection failed.
func (i *Info) GetDistro() *Distro {
	if i.OS != "linux" || i.Platform == "" {
		return nil
	}
	return &Distro{
		ID:      i.Platform,
		Family:  i.Family,
		Version: i.Version,
	}
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// IsAppleSilicon returns true if running on Apple Silicon (macOS + arm64).
func (i *Info) IsAppleSilicon() bool {
	return i.OS == "darwin" && i.Arch == "arm64"
}

// IsAlpine returns true if the Linux distribution is Alpine.
func (i *Info) IsAlpine() bool {
	return i.OS == "linux" && i.Family == FamilyAlpine
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
