// Package storage uploads a batch's artifact directory to object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/JonnyWalker81/healthlytics/internal/logger"
)

// DefaultConcurrency bounds parallel object uploads.
const DefaultConcurrency = 4

// Uploader copies a local directory tree into a bucket under a prefix,
// preserving relative paths. It returns the number of files uploaded.
type Uploader interface {
	UploadDir(ctx context.Context, localDir, bucket, prefix string) (int, error)
}

// ObjectPutter stores one object. Implementations overwrite existing keys.
type ObjectPutter interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// DirUploader walks a directory and puts every regular file through an
// ObjectPutter with bounded concurrency.
type DirUploader struct {
	putter      ObjectPutter
	concurrency int
}

// NewDirUploader creates an uploader. concurrency <= 0 uses DefaultConcurrency.
func NewDirUploader(putter ObjectPutter, concurrency int) *DirUploader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &DirUploader{putter: putter, concurrency: concurrency}
}

// ObjectKey joins prefix and a slash-separated relative path.
func ObjectKey(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

// ContentType picks the object content type from the file extension.
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// UploadDir implements Uploader. The first failed upload cancels the rest.
func (u *DirUploader) UploadDir(ctx context.Context, localDir, bucket, prefix string) (int, error) {
	var files []string
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", localDir, err)
	}

	log := logger.Ctx(ctx)
	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for _, p := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(localDir, p)
			if err != nil {
				return err
			}
			key := ObjectKey(prefix, filepath.ToSlash(rel))
			if err := u.putFile(gctx, bucket, key, p); err != nil {
				return err
			}
			log.Debug("uploaded artifact", logger.String("bucket", bucket), logger.String("key", key))
			uploaded.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(uploaded.Load()), err
}

func (u *DirUploader) putFile(ctx context.Context, bucket, key, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if err := u.putter.Put(ctx, bucket, key, f, info.Size(), ContentType(p)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
