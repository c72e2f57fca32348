package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ZebulonRouseFrantzich/binshim/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the default number of download retries
	DefaultRetries = 3
	// MaxRetries bounds the retries a Downloader will attempt
	MaxRetries = 10
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "binshim/1.0"
	// maxRedirects bounds release redirects (GitHub redirects to object storage)
	maxRedirects = 10
	// maxBackoffShift caps exponential backoff at backoff<<5 (32s by default)
	maxBackoffShift = 5
)

// Downloader handles HTTP downloads with retry logic
type Downloader struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	retries   int
	backoff   time.Duration
	progress  io.Writer
	logger    logging.Logger
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithRetries sets the number of retries after the first attempt,
// clamped to MaxRetries.
func WithRetries(n int) DownloaderOption {
	return func(d *Downloader) {
		if n >= 0 {
			d.retries = min(n, MaxRetries)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		if timeout > 0 {
			d.client.Timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) DownloaderOption {
	return func(d *Downloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithProxy routes requests through proxyURL. A nil URL keeps the
// HTTP_PROXY/HTTPS_PROXY/NO_PROXY environment behavior.
func WithProxy(proxyURL *url.URL) DownloaderOption {
	return func(d *Downloader) {
		if proxyURL == nil {
			return
		}
		if transport, ok := d.client.Transport.(*http.Transport); ok {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
}

// WithProgress renders a progress bar for archive downloads to w.
func WithProgress(w io.Writer) DownloaderOption {
	return func(d *Downloader) {
		d.progress = w
	}
}

// WithDownloadLogger sets the logger.
func WithDownloadLogger(l logging.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.logger = logging.OrNoop(l)
	}
}

// NewDownloader creates a new downloader
func NewDownloader(cacheDir string, opts ...DownloaderOption) *Downloader {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment

	d := &Downloader{
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		cacheDir:  cacheDir,
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		backoff:   time.Second,
		logger:    logging.Noop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DownloadToFile downloads a URL to a specific file path.
// A missing file (404) returns ErrNotFound without retrying.
func (d *Downloader) DownloadToFile(ctx context.Context, fileURL, destPath string) error {
	return d.download(ctx, fileURL, destPath, false)
}

func (d *Downloader) download(ctx context.Context, fileURL, destPath string, showProgress bool) error {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			wait := backoffDelay(d.backoff, attempt)
			d.logger.Debug("retrying download", "url", fileURL, "attempt", attempt, "backoff", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := d.downloadOnce(ctx, fileURL, destPath, showProgress)
		if err == nil {
			return nil
		}

		lastErr = err
		d.logger.Debug("download attempt failed", "url", fileURL, "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
	}

	return fmt.Errorf("download failed after %d retries: %w", d.retries, lastErr)
}

// downloadOnce performs a single download attempt
func (d *Downloader) downloadOnce(ctx context.Context, fileURL, destPath string, showProgress bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", fileURL, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	var dst io.Writer = tmpFile
	if showProgress && d.progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(d.progress),
			progressbar.OptionSetDescription("downloading "+filepath.Base(destPath)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		dst = io.MultiWriter(tmpFile, bar)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// cachePath returns cache/{name}/{version}/{filename} for a release URL.
func (d *Downloader) cachePath(info *DownloadInfo, fileURL string) string {
	return filepath.Join(d.cacheDir, info.Name, info.Version, filepath.Base(fileURL))
}

// DownloadArchive downloads the release archive to the cache directory.
// A cached copy is reused.
func (d *Downloader) DownloadArchive(ctx context.Context, info *DownloadInfo) (string, error) {
	if info == nil {
		return "", fmt.Errorf("download info is nil")
	}

	cachePath := d.cachePath(info, info.URL)
	if fileExists(cachePath) {
		d.logger.Debug("using cached archive", "path", cachePath)
		return cachePath, nil
	}

	d.logger.Info("downloading release archive", "url", info.URL)
	if err := d.download(ctx, info.URL, cachePath, true); err != nil {
		return "", fmt.Errorf("download archive: %w", err)
	}

	return cachePath, nil
}

// DownloadSidecar downloads a verification file published next to the
// archive. It returns "" and no error when the release does not publish it.
func (d *Downloader) DownloadSidecar(ctx context.Context, info *DownloadInfo, fileURL string) (string, error) {
	if info == nil || fileURL == "" {
		return "", nil
	}

	cachePath := d.cachePath(info, fileURL)
	if fileExists(cachePath) {
		return cachePath, nil
	}

	if err := d.DownloadToFile(ctx, fileURL, cachePath); err != nil {
		if errors.Is(err, ErrNotFound) {
			d.logger.Debug("release does not publish file", "url", fileURL)
			return "", nil
		}
		return "", fmt.Errorf("download %s: %w", filepath.Base(fileURL), err)
	}

	return cachePath, nil
}

// backoffDelay returns the wait before retry attempt (1-based):
// base, 2*base, 4*base, ... capped at base<<maxBackoffShift.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base << uint(shift)
}

// fileExists checks if a file exists and is not empty
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
