package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/ZebulonRouseFrantzich/binshim/internal/binary"
	"github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo"
	"github.com/ZebulonRouseFrantzich/binshim/internal/config"
	"github.com/ZebulonRouseFrantzich/binshim/internal/logging"
	"github.com/ZebulonRouseFrantzich/binshim/internal/platform"
)

// app carries the process-wide dependencies shared by every command.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	detector platform.Detector
	// launcher replaces the platform launcher when set (tests)
	launcher func(path string, argv, env []string) error
}

func newApp() *app {
	return &app{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		detector: platform.NewDetector(),
	}
}

// session is everything a command needs after configuration is loaded.
type session struct {
	build    buildinfo.Info
	settings *config.Settings
	host     *platform.Info
	manager  *binary.Manager
	logger   logging.Logger
}

// open loads configuration, detects the host and builds a manager.
// quiet limits log output to errors and disables the progress bar.
func (a *app) open(ctx context.Context, quiet bool) (*session, error) {
	build := buildinfo.Get()
	if err := build.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build metadata: %w", err)
	}

	settings, err := config.Load(ctx, a.detector)
	if err != nil {
		return nil, err
	}

	level := settings.LogLevel
	if quiet {
		level = "error"
	}
	logger, err := logging.New(a.stderr, level)
	if err != nil {
		return nil, err
	}

	host, err := a.detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}

	proxyURL, err := settings.ProxyURL()
	if err != nil {
		return nil, err
	}

	opts := []binary.DownloaderOption{
		binary.WithTimeout(settings.Timeout),
		binary.WithRetries(settings.Retries),
		binary.WithUserAgent(build.UserAgent()),
		binary.WithProxy(proxyURL),
	}
	if !quiet && isTerminal(a.stderr) {
		opts = append(opts, binary.WithProgress(a.stderr))
	}

	manager, err := binary.NewManager(binary.Config{
		Home:       settings.Home,
		Name:       build.Name,
		Version:    build.Version,
		Repository: build.Repository,
		Verify: binary.VerifierConfig{
			Policy:      settings.VerifyPolicy(),
			KeyringPath: settings.GPGKeyring,
			Sigstore: binary.SigstoreConfig{
				Identity:        settings.SigstoreIdentity,
				Issuer:          settings.SigstoreIssuer,
				TrustedRootPath: settings.SigstoreTrustedRoot,
			},
		},
		Downloader: opts,
		Logger:     logger,
		Launcher:   a.launcher,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded", "home", settings.Home, "file", settings.File,
		"verify", settings.Verify, "host", host.OSFamily()+"/"+host.Architecture())

	return &session{
		build:    build,
		settings: settings,
		host:     host,
		manager:  manager,
		logger:   logger,
	}, nil
}

// run resolves the host platform and hands args to the managed executable.
func (a *app) run(ctx context.Context, args []string) error {
	s, err := a.open(ctx, false)
	if err != nil {
		return err
	}

	p, err := s.manager.Resolve(s.host)
	if err != nil {
		return err
	}

	return s.manager.Run(ctx, p, args)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
