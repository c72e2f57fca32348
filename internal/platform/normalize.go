package platform

import (
	"strings"
)

// distroFamilies maps gopsutil family strings and distribution IDs to a
// canonical family.
var distroFamilies = map[string]string{
	"debian":        FamilyDebian,
	"ubuntu":        FamilyDebian,
	"linuxmint":     FamilyDebian,
	"rhel":          FamilyRHEL,
	"centos":        FamilyRHEL,
	"rocky":         FamilyRHEL,
	"almalinux":     FamilyRHEL,
	"fedora":        FamilyFedora,
	"suse":          FamilySUSE,
	"opensuse":      FamilySUSE,
	"opensuse-leap": FamilySUSE,
	"sles":          FamilySUSE,
	"arch":          FamilyArch,
	"manjaro":       FamilyArch,
	"alpine":        FamilyAlpine,
	"gentoo":        FamilyGentoo,
}

// goArch maps uname machine names onto GOARCH.
var goArch = map[string]string{
	"x86_64":  "amd64",
	"aarch64": "arm64",
	"i386":    "386",
	"i686":    "386",
}

// normalizeArch converts uname-style names to GOARCH naming. GOARCH values
// and unknown names pass through.
func normalizeArch(arch string) string {
	if mapped, ok := goArch[arch]; ok {
		return mapped
	}
	return arch
}

// normalizePlatform lowercases and trims a gopsutil string.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily returns the canonical family for a gopsutil family string,
// falling back to the distribution ID when the family is empty or unknown.
func mapFamily(family, id string) string {
	for _, candidate := range []string{family, id} {
		if canonical, ok := distroFamilies[normalizePlatform(candidate)]; ok {
			return canonical
		}
	}
	return FamilyUnknown
}
