package binary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/binshim/internal/platform"
)

const testArchiveName = "tool_v1.2.3_x86_64-unknown-linux-musl.tar.gz"

// releaseServer serves release files by base name and 404s everything else
type releaseServer struct {
	*httptest.Server
	archiveRequests atomic.Int32
}

func newReleaseServer(t *testing.T, files map[string][]byte) *releaseServer {
	t.Helper()

	rs := &releaseServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		if name == testArchiveName {
			rs.archiveRequests.Add(1)
		}

		data, ok := files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	t.Cleanup(rs.Close)

	return rs
}

// publishedRelease returns the files of a release with a matching checksum
func publishedRelease(t *testing.T, content string) map[string][]byte {
	t.Helper()

	archive := tarGzBytes(t, map[string]string{"tool": content})
	return map[string][]byte{
		testArchiveName:             archive,
		testArchiveName + ".sha256": []byte(sha256Hex(archive) + "  " + testArchiveName + "\n"),
	}
}

func newTestManager(t *testing.T, repository string, policy VerifyPolicy) *Manager {
	t.Helper()

	manager, err := NewManager(Config{
		Home:       t.TempDir(),
		Name:       "tool",
		Version:    "v1.2.3",
		Repository: repository,
		Verify:     VerifierConfig{Policy: policy},
		Downloader: []DownloaderOption{WithRetries(0)},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	manager.lockPoll = 10 * time.Millisecond
	return manager
}

func linuxPlatform(t *testing.T, m *Manager) SupportedPlatform {
	t.Helper()

	p, err := m.Resolve(&platform.Info{OS: "linux", Arch: "amd64"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return p
}

func TestNewManager(t *testing.T) {
	valid := Config{Home: "/tmp/binshim", Name: "tool", Version: "1.2.3", Repository: "https://example.com/repo"}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid_config", mutate: func(c *Config) {}},
		{name: "missing_home", mutate: func(c *Config) { c.Home = "" }, wantErr: true},
		{name: "missing_name", mutate: func(c *Config) { c.Name = "" }, wantErr: true},
		{name: "missing_version", mutate: func(c *Config) { c.Version = "" }, wantErr: true},
		{name: "missing_repository", mutate: func(c *Config) { c.Repository = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)

			manager, err := NewManager(config)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			paths := manager.Paths()
			if paths.Bin != filepath.Join("/tmp/binshim", "bin") {
				t.Errorf("Bin = %s", paths.Bin)
			}
			if paths.Cache != filepath.Join("/tmp/binshim", "cache", "downloads") {
				t.Errorf("Cache = %s", paths.Cache)
			}
			if paths.Locks != filepath.Join("/tmp/binshim", "locks") {
				t.Errorf("Locks = %s", paths.Locks)
			}
		})
	}
}

func TestManagerResolve(t *testing.T) {
	manager := newTestManager(t, "https://example.com/repo", VerifyAuto)

	tests := []struct {
		name        string
		info        *platform.Info
		wantTarget  string
		unsupported bool
	}{
		{name: "linux_amd64", info: &platform.Info{OS: "linux", Arch: "amd64"}, wantTarget: "x86_64-unknown-linux-musl"},
		{name: "windows_amd64", info: &platform.Info{OS: "windows", Arch: "amd64"}, wantTarget: "x86_64-pc-windows-gnu"},
		{name: "apple_silicon", info: &platform.Info{OS: "darwin", Arch: "arm64"}, wantTarget: "x86_64-apple-darwin"},
		{name: "linux_arm64", info: &platform.Info{OS: "linux", Arch: "arm64"}, unsupported: true},
		{name: "freebsd", info: &platform.Info{OS: "freebsd", Arch: "amd64"}, unsupported: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := manager.Resolve(tt.info)

			if tt.unsupported {
				var unsupported *UnsupportedPlatformError
				if !errors.As(err, &unsupported) {
					t.Fatalf("error = %v, want *UnsupportedPlatformError", err)
				}
				if unsupported.OSFamily != tt.info.OSFamily() || unsupported.Architecture != tt.info.Architecture() {
					t.Errorf("error carries %s/%s", unsupported.OSFamily, unsupported.Architecture)
				}
				return
			}

			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if p.ReleaseTarget != tt.wantTarget {
				t.Errorf("ReleaseTarget = %q, want %q", p.ReleaseTarget, tt.wantTarget)
			}
		})
	}

	if _, err := manager.Resolve(nil); err == nil {
		t.Error("expected error for nil platform info")
	}
}

func TestManagerBinaryPath(t *testing.T) {
	manager := newTestManager(t, "https://example.com/repo", VerifyAuto)

	windows, err := manager.Resolve(&platform.Info{OS: "windows", Arch: "amd64"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := filepath.Join(manager.Paths().Bin, "1.2.3", "tool.exe")
	if got := manager.BinaryPath(windows); got != want {
		t.Errorf("BinaryPath() = %s, want %s", got, want)
	}
}

func TestManagerDownloadInfo(t *testing.T) {
	manager := newTestManager(t, "https://example.com/repo/", VerifyAuto)

	info := manager.DownloadInfo(linuxPlatform(t, manager))

	want := "https://example.com/repo/releases/download/v1.2.3/" + testArchiveName
	if info.URL != want {
		t.Errorf("URL = %s, want %s", info.URL, want)
	}
}

func TestManagerInstall_Complete(t *testing.T) {
	server := newReleaseServer(t, publishedRelease(t, "#!/bin/sh\necho tool\n"))
	manager := newTestManager(t, server.URL, VerifyRequired)
	p := linuxPlatform(t, manager)

	if err := manager.Install(context.Background(), p); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	installed, err := manager.IsInstalled(p)
	if err != nil {
		t.Fatalf("IsInstalled() error = %v", err)
	}
	if !installed {
		t.Fatal("binary not installed")
	}

	content, err := os.ReadFile(manager.BinaryPath(p))
	if err != nil {
		t.Fatalf("failed to read binary: %v", err)
	}
	if string(content) != "#!/bin/sh\necho tool\n" {
		t.Errorf("binary content = %q", content)
	}

	// Already installed: no further requests
	if err := manager.Install(context.Background(), p); err != nil {
		t.Fatalf("second Install() error = %v", err)
	}
	if got := server.archiveRequests.Load(); got != 1 {
		t.Errorf("archive requested %d times, want 1", got)
	}

	// Install lock was released
	entries, _ := os.ReadDir(manager.Paths().Locks)
	if len(entries) != 0 {
		t.Errorf("locks dir has %d entries after install, want 0", len(entries))
	}
}

func TestManagerInstall_VerificationFailure(t *testing.T) {
	files := publishedRelease(t, "tool")
	files[testArchiveName+".sha256"] = []byte(strings.Repeat("0", 64) + "  " + testArchiveName + "\n")

	server := newReleaseServer(t, files)
	manager := newTestManager(t, server.URL, VerifyAuto)
	p := linuxPlatform(t, manager)

	err := manager.Install(context.Background(), p)
	if err == nil {
		t.Fatal("expected verification error")
	}
	if !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("unexpected error: %v", err)
	}

	if installed, _ := manager.IsInstalled(p); installed {
		t.Error("binary installed despite failed verification")
	}

	cached := filepath.Join(manager.Paths().Cache, "tool", "1.2.3", testArchiveName)
	if _, err := os.Stat(cached); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("rejected archive still cached: %v", err)
	}
}

func TestManagerInstall_RequiredWithoutSidecars(t *testing.T) {
	files := publishedRelease(t, "tool")
	delete(files, testArchiveName+".sha256")

	server := newReleaseServer(t, files)
	manager := newTestManager(t, server.URL, VerifyRequired)
	p := linuxPlatform(t, manager)

	err := manager.Install(context.Background(), p)
	if err == nil {
		t.Fatal("expected error when no verification is possible")
	}
	if !strings.Contains(err.Error(), "no verification method available") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestManagerInstall_AutoWithoutSidecars(t *testing.T) {
	files := publishedRelease(t, "tool")
	delete(files, testArchiveName+".sha256")

	server := newReleaseServer(t, files)
	manager := newTestManager(t, server.URL, VerifyAuto)
	p := linuxPlatform(t, manager)

	if err := manager.Install(context.Background(), p); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
}

func TestManagerInstall_ArchiveNotPublished(t *testing.T) {
	server := newReleaseServer(t, map[string][]byte{})
	manager := newTestManager(t, server.URL, VerifyAuto)
	p := linuxPlatform(t, manager)

	err := manager.Install(context.Background(), p)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerInstall_ConcurrentInstallsSerialize(t *testing.T) {
	server := newReleaseServer(t, publishedRelease(t, "tool"))
	manager := newTestManager(t, server.URL, VerifyAuto)
	p := linuxPlatform(t, manager)

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- manager.Install(context.Background(), p)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Install() error = %v", err)
		}
	}

	if got := server.archiveRequests.Load(); got != 1 {
		t.Errorf("archive requested %d times, want 1", got)
	}
}

func TestManagerIsInstalled(t *testing.T) {
	manager := newTestManager(t, "https://example.com/repo", VerifyAuto)
	p := linuxPlatform(t, manager)

	installed, err := manager.IsInstalled(p)
	if err != nil {
		t.Fatalf("IsInstalled() error = %v", err)
	}
	if installed {
		t.Error("expected not installed in empty home")
	}

	binaryPath := manager.BinaryPath(p)
	if err := os.MkdirAll(filepath.Dir(binaryPath), 0755); err != nil {
		t.Fatalf("failed to create bin dir: %v", err)
	}
	if err := os.WriteFile(binaryPath, []byte("tool"), 0755); err != nil {
		t.Fatalf("failed to write binary: %v", err)
	}

	installed, err = manager.IsInstalled(p)
	if err != nil {
		t.Fatalf("IsInstalled() error = %v", err)
	}
	if !installed {
		t.Error("expected installed")
	}
}

func TestManagerIsInstalled_NotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no executable bit on Windows")
	}

	manager := newTestManager(t, "https://example.com/repo", VerifyAuto)
	p := linuxPlatform(t, manager)

	binaryPath := manager.BinaryPath(p)
	if err := os.MkdirAll(filepath.Dir(binaryPath), 0755); err != nil {
		t.Fatalf("failed to create bin dir: %v", err)
	}
	if err := os.WriteFile(binaryPath, []byte("tool"), 0644); err != nil {
		t.Fatalf("failed to write binary: %v", err)
	}

	installed, err := manager.IsInstalled(p)
	if err != nil {
		t.Fatalf("IsInstalled() error = %v", err)
	}
	if installed {
		t.Error("non-executable file reported as installed")
	}
}

func TestManagerRun(t *testing.T) {
	server := newReleaseServer(t, publishedRelease(t, "tool"))
	manager := newTestManager(t, server.URL, VerifyAuto)
	p := linuxPlatform(t, manager)

	var gotPath string
	var gotArgv, gotEnv []string
	manager.launch = func(path string, argv, env []string) error {
		gotPath, gotArgv, gotEnv = path, argv, env
		return &ExitError{Code: 7}
	}

	args := []string{"build", "--help", "--", "-x"}
	err := manager.Run(context.Background(), p, args)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 7 {
		t.Fatalf("Run() error = %v, want exit status 7", err)
	}

	if gotPath != manager.BinaryPath(p) {
		t.Errorf("launched %s, want %s", gotPath, manager.BinaryPath(p))
	}
	if len(gotArgv) != len(args)+1 || gotArgv[0] != gotPath {
		t.Fatalf("argv = %q", gotArgv)
	}
	for i, arg := range args {
		if gotArgv[i+1] != arg {
			t.Errorf("argv[%d] = %q, want %q", i+1, gotArgv[i+1], arg)
		}
	}
	if len(gotEnv) == 0 {
		t.Error("environment was not forwarded")
	}
}

func TestManagerRun_InstallFailureSkipsLaunch(t *testing.T) {
	server := newReleaseServer(t, map[string][]byte{})
	manager := newTestManager(t, server.URL, VerifyAuto)
	p := linuxPlatform(t, manager)

	launched := false
	manager.launch = func(path string, argv, env []string) error {
		launched = true
		return nil
	}

	if err := manager.Run(context.Background(), p, nil); err == nil {
		t.Error("expected error")
	}
	if launched {
		t.Error("launched after failed install")
	}
}

func TestManagerClean(t *testing.T) {
	server := newReleaseServer(t, publishedRelease(t, "tool"))
	manager := newTestManager(t, server.URL, VerifyAuto)
	p := linuxPlatform(t, manager)

	if err := manager.Install(context.Background(), p); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if err := manager.Clean(); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	for _, dir := range []string{manager.Paths().Bin, manager.Paths().Cache} {
		if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s still exists after Clean()", dir)
		}
	}

	// Clean on an empty home is a no-op
	if err := manager.Clean(); err != nil {
		t.Errorf("second Clean() error = %v", err)
	}
}
