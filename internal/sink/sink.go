// Package sink delivers staged build outputs to their destination: a local
// path, an S3 object or the print viewer.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/local/docsplit/internal/engine"
	"github.com/local/docsplit/internal/storage"
)

// Parse picks a destination for dest: s3://bucket/key or a filesystem path.
// Local paths without a .pdf extension get one.
func Parse(dest string, uploader Uploader) (engine.Destination, error) {
	dest = strings.TrimSpace(dest)
	switch {
	case dest == "":
		return nil, fmt.Errorf("%w: empty destination", engine.ErrDestinationUnwritable)
	case strings.HasPrefix(dest, "s3://"):
		bucket, key, err := storage.ParseURL(dest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrDestinationUnwritable, err)
		}
		if uploader == nil {
			return nil, fmt.Errorf("%w: s3 storage not configured", engine.ErrDestinationUnwritable)
		}
		return &S3{Uploader: uploader, Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(dest, "file://"):
		return &Local{Path: withPDFExt(strings.TrimPrefix(dest, "file://"))}, nil
	case strings.Contains(dest, "://"):
		return nil, fmt.Errorf("%w: unsupported destination %s", engine.ErrDestinationUnwritable, dest)
	default:
		return &Local{Path: withPDFExt(dest)}, nil
	}
}

// withPDFExt appends .pdf to local paths saved without it.
func withPDFExt(path string) string {
	if path == "" || strings.HasSuffix(path, "/") || strings.EqualFold(filepath.Ext(path), ".pdf") {
		return path
	}
	return path + ".pdf"
}

// Local writes the output to a path on disk. The file appears atomically:
// it is copied next to the target and renamed into place.
type Local struct {
	Path string
}

func (l *Local) Validate(ctx context.Context) error {
	if l.Path == "" {
		return fmt.Errorf("%w: empty path", engine.ErrDestinationUnwritable)
	}
	if st, err := os.Stat(l.Path); err == nil && st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", engine.ErrDestinationUnwritable, l.Path)
	}
	return checkWritable(filepath.Dir(l.Path))
}

func (l *Local) Commit(ctx context.Context, staged string) (string, error) {
	if err := place(staged, l.Path); err != nil {
		return "", err
	}
	return l.Path, nil
}

// checkWritable checks dir exists and accepts new files.
func checkWritable(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrDestinationUnwritable, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", engine.ErrDestinationUnwritable, dir)
	}
	f, err := os.CreateTemp(dir, ".docsplit-check-*")
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrDestinationUnwritable, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

// place copies src next to dst and renames it over dst.
func place(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".docsplit-*.pdf")
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrDestinationUnwritable, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
