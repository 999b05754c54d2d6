package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter/v2"
	"github.com/samcharles93/logtrains/internal/logger"
)

const defaultEndpoint = "https://huggingface.co"

// HubFetcher downloads files from a Hugging Face compatible registry into a
// local cache laid out as <CacheDir>/<org>/<repo>/<file>. A cached file with
// non-zero size is reused unless Force is set.
type HubFetcher struct {
	Endpoint string
	CacheDir string
	Token    string
	Force    bool
	Offline  bool
	Client   *http.Client
	Log      logger.Logger
	// Progress receives byte counts while a file downloads.
	Progress func(file string, current, total int64)
}

// DefaultCacheDir is ~/.cache/logtrains/models (or the platform equivalent).
func DefaultCacheDir() string {
	if dir := os.Getenv("LOGTRAINS_CACHE"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "logtrains", "models")
}

// CachePath returns where registryID/fileName is stored locally.
func (h *HubFetcher) CachePath(registryID, fileName string) (string, error) {
	parts := strings.Split(strings.Trim(registryID, "/"), "/")
	for _, p := range append(parts, fileName) {
		if p == "" || p == "." || p == ".." {
			return "", fmt.Errorf("invalid registry path %q/%q", registryID, fileName)
		}
	}
	dir := h.CacheDir
	if dir == "" {
		dir = DefaultCacheDir()
	}
	return filepath.Join(append([]string{dir}, append(parts, filepath.FromSlash(fileName))...)...), nil
}

// URL returns the download location for registryID/fileName.
func (h *HubFetcher) URL(registryID, fileName string) string {
	endpoint := h.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s",
		strings.TrimRight(endpoint, "/"),
		strings.Trim(registryID, "/"),
		(&url.URL{Path: fileName}).EscapedPath())
}

func (h *HubFetcher) Fetch(ctx context.Context, registryID, fileName string) (string, error) {
	log := h.Log
	if log == nil {
		log = logger.Discard()
	}
	dst, err := h.CachePath(registryID, fileName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	if !h.Force {
		if info, err := os.Stat(dst); err == nil && info.Size() > 0 {
			log.Debug("using cached asset", "path", dst)
			return dst, nil
		}
	}
	if h.Offline {
		return "", fmt.Errorf("%w: %s/%s is not cached and offline mode is set", ErrNotFound, registryID, fileName)
	}

	header := make(http.Header)
	if h.Token != "" {
		header.Set("Authorization", "Bearer "+h.Token)
	}
	client := &getter.Client{
		Getters: []getter.Getter{
			&getter.HttpGetter{Client: h.Client, Header: header},
		},
		Decompressors: map[string]getter.Decompressor{},
	}

	part := dst + ".part"
	if h.Force {
		_ = os.Remove(part)
	}
	src := h.URL(registryID, fileName)
	log.Info("downloading asset", "url", src)

	req := &getter.Request{
		Src:     src,
		Dst:     part,
		GetMode: getter.ModeFile,
	}
	if h.Progress != nil {
		req.ProgressListener = progressFunc(func(current, total int64) {
			h.Progress(fileName, current, total)
		})
	}
	if _, err := client.Get(ctx, req); err != nil {
		if info, statErr := os.Stat(part); statErr == nil && info.Size() == 0 {
			_ = os.Remove(part)
		}
		return "", classifyFetchError(ctx, err)
	}
	if err := os.Rename(part, dst); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return dst, nil
}

func classifyFetchError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, ctxErr)
	}
	var code int
	if _, scanErr := fmt.Sscanf(err.Error(), "bad response code: %d", &code); scanErr == nil {
		switch code {
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: http %d", ErrNotFound, code)
		}
		return fmt.Errorf("%w: http %d", ErrNetwork, code)
	}
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

type progressFunc func(current, total int64)

func (f progressFunc) TrackProgress(_ string, currentSize, totalSize int64, stream io.ReadCloser) io.ReadCloser {
	return &progressReader{ReadCloser: stream, current: currentSize, total: totalSize, report: f}
}

type progressReader struct {
	io.ReadCloser
	current int64
	total   int64
	report  progressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		r.current += int64(n)
		r.report(r.current, r.total)
	}
	return n, err
}
