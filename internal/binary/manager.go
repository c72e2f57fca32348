package binary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo"
	"github.com/ZebulonRouseFrantzich/binshim/internal/lock"
	"github.com/ZebulonRouseFrantzich/binshim/internal/logging"
	"github.com/ZebulonRouseFrantzich/binshim/internal/platform"
)

// Manager orchestrates download, verification, installation and launch of
// the wrapped executable
type Manager struct {
	name       string
	version    string
	repository string

	homeDir  string
	binDir   string
	cacheDir string
	lockDir  string

	table      *PlatformTable
	downloader *Downloader
	verifier   *Verifier
	extractor  *Extractor
	logger     logging.Logger

	lockPoll time.Duration
	launch   func(path string, argv, env []string) error
}

// Config holds configuration for the manager
type Config struct {
	// Home is the root directory for cached downloads, binaries and locks
	Home string
	// Name, Version and Repository identify the release
	Name       string
	Version    string
	Repository string
	// Table overrides the platform table built from Name
	Table *PlatformTable

	Verify     VerifierConfig
	Downloader []DownloaderOption
	Logger     logging.Logger

	// Launcher starts the installed executable. Nil replaces the current
	// process (Unix) or runs a child process (Windows).
	Launcher func(path string, argv, env []string) error
}

// Paths lists the directories a manager owns.
type Paths struct {
	Home  string `json:"home" yaml:"home"`
	Bin   string `json:"bin" yaml:"bin"`
	Cache string `json:"cache" yaml:"cache"`
	Locks string `json:"locks" yaml:"locks"`
}

// NewManager creates a new manager
func NewManager(config Config) (*Manager, error) {
	if config.Home == "" {
		return nil, fmt.Errorf("Home is required")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("Name is required")
	}
	if config.Version == "" {
		return nil, fmt.Errorf("Version is required")
	}
	if config.Repository == "" {
		return nil, fmt.Errorf("Repository is required")
	}

	table := config.Table
	if table == nil {
		var err error
		table, err = NewPlatformTable(config.Name, defaultPlatforms(config.Name)...)
		if err != nil {
			return nil, err
		}
	}

	logger := logging.OrNoop(config.Logger)
	if config.Verify.Logger == nil {
		config.Verify.Logger = logger
	}

	launcher := config.Launcher
	if launcher == nil {
		launcher = launch
	}

	cacheDir := filepath.Join(config.Home, "cache", "downloads")
	downloaderOpts := append([]DownloaderOption{WithDownloadLogger(logger)}, config.Downloader...)

	return &Manager{
		name:       config.Name,
		version:    buildinfo.NormalizeVersion(config.Version),
		repository: config.Repository,
		homeDir:    config.Home,
		binDir:     filepath.Join(config.Home, "bin"),
		cacheDir:   cacheDir,
		lockDir:    filepath.Join(config.Home, "locks"),
		table:      table,
		downloader: NewDownloader(cacheDir, downloaderOpts...),
		verifier:   NewVerifier(config.Verify),
		extractor:  NewExtractor(),
		logger:     logger,
		lockPoll:   lock.DefaultPollInterval,
		launch:     launcher,
	}, nil
}

// Paths returns the directories used by the manager
func (m *Manager) Paths() Paths {
	return Paths{Home: m.homeDir, Bin: m.binDir, Cache: m.cacheDir, Locks: m.lockDir}
}

// Platforms returns the manager's platform table in declaration order
func (m *Manager) Platforms() []SupportedPlatform {
	return m.table.Entries()
}

// Resolve maps detected host information to a platform table entry.
func (m *Manager) Resolve(info *platform.Info) (SupportedPlatform, error) {
	if info == nil {
		return SupportedPlatform{}, fmt.Errorf("platform info is nil")
	}

	p, err := m.table.Resolve(info.OSFamily(), info.Architecture())
	if err != nil {
		return SupportedPlatform{}, err
	}

	if p.Emulated {
		m.logger.Debug("no native build for this host; using an emulated build",
			"platform", p.String(), "target", p.ReleaseTarget)
	}

	return p, nil
}

// DownloadInfo returns the archive and sidecar URLs for a platform
func (m *Manager) DownloadInfo(p SupportedPlatform) *DownloadInfo {
	return constructDownloadInfo(m.repository, m.version, p)
}

// BinaryPath returns the filesystem path of the installed executable
func (m *Manager) BinaryPath(p SupportedPlatform) string {
	return filepath.Join(m.binDir, m.version, p.ExecutableName)
}

// IsInstalled checks if the executable is already installed
func (m *Manager) IsInstalled(p SupportedPlatform) (bool, error) {
	info, err := os.Stat(m.BinaryPath(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat binary: %w", err)
	}

	if !info.Mode().IsRegular() {
		return false, nil
	}

	// Windows has no executable bit
	if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
		return false, nil
	}

	return true, nil
}

// Download downloads and verifies the release archive (but doesn't install it)
func (m *Manager) Download(ctx context.Context, p SupportedPlatform) (*DownloadResult, error) {
	startTime := time.Now()
	info := m.DownloadInfo(p)

	archivePath, err := m.downloader.DownloadArchive(ctx, info)
	if err != nil {
		return nil, err
	}

	sidecars, err := m.downloadSidecars(ctx, info)
	if err != nil {
		return nil, err
	}

	methods, err := m.verifier.VerifyFile(archivePath, sidecars)
	if err != nil {
		// Drop the cached files so the next attempt fetches them again
		for _, path := range []string{archivePath, sidecars.Checksum, sidecars.Signature, sidecars.Bundle} {
			if path != "" {
				os.Remove(path)
			}
		}
		return nil, fmt.Errorf("verify archive: %w", err)
	}

	return &DownloadResult{
		Path:         archivePath,
		Verified:     methods,
		DownloadTime: time.Since(startTime),
	}, nil
}

// downloadSidecars fetches the verification files concurrently
func (m *Manager) downloadSidecars(ctx context.Context, info *DownloadInfo) (Sidecars, error) {
	var sidecars Sidecars
	if m.verifier.Policy() == VerifyOff {
		return sidecars, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(fileURL string, dest *string) {
		g.Go(func() error {
			path, err := m.downloader.DownloadSidecar(gctx, info, fileURL)
			if err != nil {
				return err
			}
			*dest = path
			return nil
		})
	}

	fetch(info.ChecksumURL, &sidecars.Checksum)
	fetch(info.SignatureURL, &sidecars.Signature)
	fetch(info.BundleURL, &sidecars.Bundle)

	if err := g.Wait(); err != nil {
		return Sidecars{}, fmt.Errorf("download verification files: %w", err)
	}

	return sidecars, nil
}

// Install downloads, verifies, extracts, and installs the executable.
// Concurrent installs of the same version serialize on a lock file.
func (m *Manager) Install(ctx context.Context, p SupportedPlatform) error {
	installed, err := m.IsInstalled(p)
	if err != nil {
		return fmt.Errorf("check if installed: %w", err)
	}
	if installed {
		return nil
	}

	l, err := lock.Wait(ctx, m.lockDir, m.name+"-"+m.version, m.lockPoll)
	if err != nil {
		return fmt.Errorf("acquire install lock: %w", err)
	}
	m.logger.Debug("acquired install lock", "path", l.Path(), "owner", l.Owner())
	defer func() {
		if err := l.Release(); err != nil {
			m.logger.Warn("failed to release install lock", "path", l.Path(), "error", err)
		}
	}()

	// Another process may have finished while we waited
	installed, err = m.IsInstalled(p)
	if err != nil {
		return fmt.Errorf("check if installed: %w", err)
	}
	if installed {
		return nil
	}

	if p.Emulated {
		m.logger.Warn("no native build for this host; installing an emulated build",
			"platform", p.String(), "target", p.ReleaseTarget)
	}

	result, err := m.Download(ctx, p)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	destPath := m.BinaryPath(p)
	if err := m.extractor.ExtractBinary(result.Path, destPath, p.ExecutableName); err != nil {
		return fmt.Errorf("extract binary: %w", err)
	}

	m.logger.Info("installed", "name", m.name, "version", m.version, "path", destPath,
		"verified", fmt.Sprint(result.Verified), "elapsed", result.DownloadTime.Round(time.Millisecond))
	return nil
}

// Run installs the executable if needed and launches it with args.
// On Unix the current process is replaced and Run only returns on error.
func (m *Manager) Run(ctx context.Context, p SupportedPlatform, args []string) error {
	if err := m.Install(ctx, p); err != nil {
		return err
	}

	path := m.BinaryPath(p)
	argv := append([]string{path}, args...)

	m.logger.Debug("launching", "path", path, "args", len(args))
	return m.launch(path, argv, os.Environ())
}

// Clean removes cached downloads and installed binaries
func (m *Manager) Clean() error {
	for _, dir := range []string{filepath.Join(m.homeDir, "cache"), m.binDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	return nil
}
