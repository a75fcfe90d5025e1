package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
)

// Upload is one file received from a multipart form.
type Upload struct {
	FileName string
	Body     io.Reader
}

// SavedFile describes a file written to the media directory.
type SavedFile struct {
	Path        string
	ContentType string
	SizeBytes   int64
}

// FileStore persists uploaded images and removes them again.
type FileStore interface {
	Save(ctx context.Context, upload Upload) (*SavedFile, error)
	Remove(ctx context.Context, publicPath string) error
}

// LocalStore writes images to a directory served under a public path prefix.
type LocalStore struct {
	dir        string
	publicPath string
	maxBytes   int64
	logg       *logger.Logger
}

// NewLocalStore creates the media directory if needed.
func NewLocalStore(cfg config.MediaConfig, logg *logger.Logger) (*LocalStore, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, fmt.Errorf("media dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	public := strings.Trim(strings.TrimSpace(cfg.PublicPath), "/")
	if public == "" {
		public = "images"
	}
	return &LocalStore{
		dir:        dir,
		publicPath: public,
		maxBytes:   cfg.MaxUploadBytes(),
		logg:       logg,
	}, nil
}

// Dir returns the directory files are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// PublicPath returns the URL prefix recorded in image paths.
func (s *LocalStore) PublicPath() string {
	return s.publicPath
}

// Save sniffs the upload, writes it as <uuid>_<name> and returns the public
// path, e.g. images/3f0c..._shoe.png.
func (s *LocalStore) Save(ctx context.Context, upload Upload) (*SavedFile, error) {
	if upload.Body == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file body is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(upload.Body, sniffLen)
	head, err := reader.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	contentType, err := sniffImageType(head)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	name := sanitizeFileName(upload.FileName)
	if name == "" {
		name = "upload"
	}
	fileName := fmt.Sprintf("%s_%s", uuid.NewString(), name)
	target := filepath.Join(s.dir, fileName)

	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create media file")
	}

	// Copy one byte past the limit so oversize uploads are detected without
	// trusting the declared size.
	written, copyErr := io.Copy(file, io.LimitReader(reader, s.maxBytes+1))
	closeErr := file.Close()
	if copyErr == nil && written > s.maxBytes {
		copyErr = pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(target)
		if pkgerrors.As(copyErr) != nil {
			return nil, copyErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, copyErr, "write media file")
	}

	saved := &SavedFile{
		Path:        path.Join(s.publicPath, fileName),
		ContentType: contentType,
		SizeBytes:   written,
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"path":         saved.Path,
			"content_type": saved.ContentType,
			"size_bytes":   saved.SizeBytes,
		})
		s.logg.Debug(ctx, "media file saved")
	}
	return saved, nil
}

// Remove deletes the file behind a public path. Missing files are ignored.
func (s *LocalStore) Remove(ctx context.Context, publicPath string) error {
	name, err := s.fileNameFor(publicPath)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithField(ctx, "path", publicPath), "media file removed")
	}
	return nil
}

func (s *LocalStore) fileNameFor(publicPath string) (string, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(publicPath), "/")
	prefix := s.publicPath + "/"
	if !strings.HasPrefix(clean, prefix) {
		return "", fmt.Errorf("path %q is outside %s", publicPath, s.publicPath)
	}
	name := strings.TrimPrefix(clean, prefix)
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return "", fmt.Errorf("invalid media path %q", publicPath)
	}
	return name, nil
}

// RemoveAll is a best-effort cleanup used when a transaction that referenced
// freshly saved files rolls back.
func RemoveAll(ctx context.Context, store FileStore, files []*SavedFile, logg *logger.Logger) {
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := store.Remove(ctx, f.Path); err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "path", f.Path), "failed to remove orphaned upload")
		}
	}
}
