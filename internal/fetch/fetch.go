// Package fetch resolves a document reference to a local file.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/storage"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrUnsupported = errors.New("unsupported reference")
)

// S3Downloader is the storage capability needed for s3:// references.
type S3Downloader interface {
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// Fetcher resolves paths, file://, http(s):// and s3:// references.
type Fetcher struct {
	HTTP *http.Client
	S3   S3Downloader
	// Dir receives downloaded files. Empty means the OS temp dir.
	Dir string
}

// Local is a resolved reference. Cleanup removes downloaded copies and is a
// no-op for files that already lived on disk.
type Local struct {
	Path    string
	Name    string
	Cleanup func()
}

// Resolve returns a local file for ref.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (Local, error) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.fromS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return f.fromHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return localFile(strings.TrimPrefix(ref, "file://"))
	case strings.Contains(ref, "://"):
		return Local{}, fmt.Errorf("%w: %s", ErrUnsupported, ref)
	default:
		return localFile(ref)
	}
}

func localFile(p string) (Local, error) {
	if p == "" {
		return Local{}, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	st, err := os.Stat(p)
	if err != nil {
		return Local{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if st.IsDir() {
		return Local{}, fmt.Errorf("%w: %s is a directory", ErrNotFound, p)
	}
	return Local{Path: p, Name: filepath.Base(p), Cleanup: func() {}}, nil
}

// tempFor creates a download target keeping the reference's extension,
// which type detection uses to tell container formats apart.
func (f *Fetcher) tempFor(name string) (*os.File, error) {
	dir := f.Dir
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.CreateTemp(dir, "fetch-*"+strings.ToLower(filepath.Ext(name)))
}

func (f *Fetcher) fromHTTP(ctx context.Context, ref string) (Local, error) {
	client := f.HTTP
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return Local{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Local{}, fmt.Errorf("download %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Local{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if resp.StatusCode != http.StatusOK {
		return Local{}, fmt.Errorf("download %s: http %d", ref, resp.StatusCode)
	}

	name := "download"
	if u, err := url.Parse(ref); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		name = path.Base(u.Path)
	}
	tmp, err := f.tempFor(name)
	if err != nil {
		return Local{}, err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return Local{}, fmt.Errorf("download %s: %w", ref, err)
	}
	log.Info().Str("url", ref).Str("file", filepath.Base(tmp.Name())).Msg("downloaded document to temp")
	p := tmp.Name()
	return Local{Path: p, Name: name, Cleanup: func() { os.Remove(p) }}, nil
}

func (f *Fetcher) fromS3(ctx context.Context, ref string) (Local, error) {
	bucket, key, err := storage.ParseURL(ref)
	if err != nil {
		return Local{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if f.S3 == nil {
		return Local{}, fmt.Errorf("%w: s3 storage not configured", ErrUnsupported)
	}
	name := path.Base(key)
	tmp, err := f.tempFor(name)
	if err != nil {
		return Local{}, err
	}
	defer tmp.Close()
	if _, err := f.S3.Download(ctx, bucket, key, tmp); err != nil {
		os.Remove(tmp.Name())
		return Local{}, err
	}
	p := tmp.Name()
	return Local{Path: p, Name: name, Cleanup: func() { os.Remove(p) }}, nil
}
