package fetcher

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/resilience"
)

// SourceOptions configures Open.
type SourceOptions struct {
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
	// TempDir receives downloaded archives. Default: os.TempDir().
	TempDir string
}

// Open returns a reader for src, which may be a local path, an http(s) URL,
// or either of those ending in .zip. A zip yields its single data file
// (.csv or .txt). The caller closes the reader.
func Open(ctx context.Context, src string, opts SourceOptions) (io.ReadCloser, error) {
	if src == "" {
		return nil, eris.New("fetcher: empty source")
	}
	if src == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	path := src
	var cleanup func()
	if isURL(src) {
		downloaded, err := download(ctx, src, opts)
		if err != nil {
			return nil, err
		}
		path = downloaded
		cleanup = func() { _ = os.Remove(downloaded) }
	}

	if strings.EqualFold(filepath.Ext(src), ".zip") {
		rc, err := openZIPMember(path, cleanup)
		if err != nil && cleanup != nil {
			cleanup()
		}
		return rc, err
	}

	f, err := os.Open(path)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, eris.Wrapf(err, "fetcher: open %s", src)
	}
	return &cleanupReader{ReadCloser: f, cleanup: cleanup}, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// download fetches rawURL into a temp file and returns its path. Transient
// failures are retried with linear backoff.
func download(ctx context.Context, rawURL string, opts SourceOptions) (string, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "voter-geo/1.0"
	}
	retry := resilience.RetryConfig{
		MaxRetries: opts.MaxRetries,
		BaseDelay:  opts.RetryDelay,
		Backoff:    resilience.BackoffLinear,
		OnRetry:    resilience.RetryLogger("fetcher.download", zap.String("url", rawURL)),
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", opts.UserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return "", resilience.NewTransientError(eris.Wrap(err, "fetcher: download"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return "", resilience.StatusError("fetcher", resp.StatusCode)
		}

		f, err := os.CreateTemp(opts.TempDir, "voter-geo-download-*"+filepath.Ext(rawURL))
		if err != nil {
			return "", eris.Wrap(err, "fetcher: create temp file")
		}
		n, err := io.Copy(f, resp.Body)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(f.Name())
			return "", resilience.NewTransientError(eris.Wrap(err, "fetcher: write download"), 0)
		}
		zap.L().Info("fetcher: downloaded", zap.String("url", rawURL), zap.Int64("bytes", n))
		return f.Name(), nil
	})
}

// openZIPMember opens the one data file inside a zip archive.
func openZIPMember(path string, cleanup func()) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	var members []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".csv", ".txt", ".tsv":
			members = append(members, f)
		}
	}
	if len(members) != 1 {
		_ = zr.Close()
		return nil, eris.Errorf("zip: expected exactly 1 data file, got %d", len(members))
	}

	rc, err := members[0].Open()
	if err != nil {
		_ = zr.Close()
		return nil, eris.Wrap(err, "zip: open entry")
	}
	return &cleanupReader{ReadCloser: rc, cleanup: func() {
		_ = zr.Close()
		if cleanup != nil {
			cleanup()
		}
	}}, nil
}

type cleanupReader struct {
	io.ReadCloser
	cleanup func()
}

func (c *cleanupReader) Close() error {
	err := c.ReadCloser.Close()
	if c.cleanup != nil {
		c.cleanup()
	}
	return err
}
