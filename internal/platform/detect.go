package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct {
	goos   string
	goarch string
}

// NewDetector creates a new platform detector for the running process.
func NewDetector() Detector {
	return &RealDetector{goos: runtime.GOOS, goarch: runtime.GOARCH}
}

// NewDetectorFor creates a detector that reports the given GOOS/GOARCH pair
// instead of the running one. Host introspection is skipped unless goos
// matches the running system.
func NewDetectorFor(goos, goarch string) Detector {
	return &RealDetector{goos: goos, goarch: goarch}
}

// Detect performs platform detection and returns platform information.
// It uses runtime.GOOS and runtime.GOARCH for OS and architecture,
// and gopsutil for kernel architecture and Linux distribution details.
//
// Detection never fails on an unrecognized OS or architecture: the raw
// value is reported and the caller decides whether it is supported.
// gopsutil failures fall back to OS/arch only. A cancelled context is
// a hard failure.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      d.goos,
		Arch:    normalizeArch(d.goarch),
		ArchRaw: d.goarch,
	}

	if d.goos != runtime.GOOS {
		// Host introspection only describes the running system.
		return info, nil
	}

	if kernelArch, err := host.KernelArch(); err == nil {
		info.KernelArch = normalizePlatform(kernelArch)
	}

	if d.goos == "linux" {
		platform, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}

		platform = normalizePlatform(platform)
		if platform != "" {
			info.Platform = platform
			info.Family = mapFamily(family, platform)
			info.Version = normalizePlatform(version)
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
	}

	return info, nil
}
