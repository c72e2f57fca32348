// Package buildinfo holds the release metadata compiled into the shim.
//
// The values are set at build time:
//
//	go build -ldflags "\
//	  -X github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo.Name=tsdoc \
//	  -X github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo.Version=1.2.3 \
//	  -X github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo.Repository=https://github.com/acme/tsdoc"
package buildinfo

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Set at build time via -ldflags.
var (
	// Name is the managed tool name; it is also the executable name
	// inside each release archive.
	Name = "tsdoc"
	// Version is the release version to install, without the leading "v".
	Version = "0.1.0"
	// Repository is the base URL of the repository publishing releases.
	Repository = "https://github.com/ZebulonRouseFrantzich/tsdoc"
	// Commit is the shim's own source revision.
	Commit = "unknown"
)

// Info is a snapshot of the compiled-in metadata.
type Info struct {
	Name       string `json:"name" yaml:"name"`
	Version    string `json:"version" yaml:"version"`
	Repository string `json:"repository" yaml:"repository"`
	Commit     string `json:"commit" yaml:"commit"`
}

// Get returns the compiled-in metadata with the version normalized.
func Get() Info {
	return Info{
		Name:       Name,
		Version:    NormalizeVersion(Version),
		Repository: strings.TrimRight(Repository, "/"),
		Commit:     Commit,
	}
}

// Validate checks that the metadata can produce a download URL.
func (i Info) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if strings.ContainsAny(i.Name, `/\`) {
		return fmt.Errorf("tool name %q must not contain path separators", i.Name)
	}
	if _, err := semver.StrictNewVersion(i.Version); err != nil {
		return fmt.Errorf("parsing version %q: %w", i.Version, err)
	}
	u, err := url.Parse(i.Repository)
	if err != nil {
		return fmt.Errorf("parsing repository URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("repository URL must use http or https, got %q", i.Repository)
	}
	if u.Host == "" {
		return fmt.Errorf("repository URL has no host: %q", i.Repository)
	}
	return nil
}

// UserAgent returns the User-Agent header sent with release downloads.
func (i Info) UserAgent() string {
	return fmt.Sprintf("binshim/%s (%s)", i.Version, i.Name)
}

// NormalizeVersion strips surrounding whitespace and a leading "v".
func NormalizeVersion(version string) string {
	return strings.TrimPrefix(strings.TrimSpace(version), "v")
}
