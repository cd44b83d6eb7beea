// Package blob stores check-in photos on the local filesystem.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

// Folder is the directory, under the root, that holds photos.
const Folder = "checkin_photos"

const defaultMaxDimension = 1280

// rawExtension names payloads whose type cannot be sniffed.
const rawExtension = ".bin"

var images = []string{"image/png", "image/jpeg", "image/gif"}

// LocalStore normalises images to PNG and writes them, or any other photo
// payload, under dir.
type LocalStore struct {
	dir          string
	baseURL      string
	maxDimension int
	logger       logger.Logger
}

// NewLocalStore creates a store rooted at dir. Stored files are addressed as
// baseURL + "/checkin_photos/<name>".
func NewLocalStore(dir, baseURL string, opts ...Option) (*LocalStore, error) {
	const op = "blob.NewLocalStore"

	s := &LocalStore{
		dir:          dir,
		baseURL:      strings.TrimRight(baseURL, "/"),
		maxDimension: defaultMaxDimension,
		logger:       logger.Get().Named("blob"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Join(dir, Folder), 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
	}
	return s, nil
}

// Store writes a photo and returns its public URL. PNG, JPEG and GIF
// images are fitted into the configured bounds and re-encoded as PNG; any
// other payload is kept byte for byte under the extension its content
// sniffs as.
func (s *LocalStore) Store(ctx context.Context, data []byte) (string, error) {
	const op = "blob.Store"

	if len(data) == 0 {
		return "", fmt.Errorf("%s: %w: empty payload", op, model.ErrInvalidPhoto)
	}

	start := time.Now()
	mt := mimetype.Detect(data)
	encode, ext, err := s.encoder(mt, data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, Folder, name)
	if err := write(path, encode); err != nil {
		metrics.RecordErrorByComponent("blob", "write")
		return "", fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
	}

	if fi, err := os.Stat(path); err == nil {
		metrics.RecordBlobStored(int(fi.Size()))
	}
	s.logger.Debug(ctx, "photo stored",
		logger.String("name", name),
		logger.String("source_type", mt.String()),
		logger.Duration("took", time.Since(start)))
	return s.url(name), nil
}

// encoder picks how data is written and the file extension to use.
func (s *LocalStore) encoder(mt *mimetype.MIME, data []byte) (func(io.Writer) error, string, error) {
	if !mimetype.EqualsAny(mt.String(), images...) {
		ext := mt.Extension()
		if ext == "" {
			ext = rawExtension
		}
		return func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}, ext, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrInvalidPhoto, err)
	}
	img = s.fit(img)
	return func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	}, ".png", nil
}

// Delete removes a photo previously returned by Store. Unknown URLs and
// missing files are ignored.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	const op = "blob.Delete"

	name, ok := strings.CutPrefix(url, s.url(""))
	if !ok || name == "" || filepath.Base(name) != name {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, Folder, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
	}
	s.logger.Debug(ctx, "photo deleted", logger.String("name", name))
	return nil
}

func (s *LocalStore) url(name string) string {
	return s.baseURL + "/" + Folder + "/" + name
}

func (s *LocalStore) fit(img image.Image) image.Image {
	b := img.Bounds()
	if s.maxDimension <= 0 || (b.Dx() <= s.maxDimension && b.Dy() <= s.maxDimension) {
		return img
	}
	return imaging.Fit(img, s.maxDimension, s.maxDimension, imaging.Lanczos)
}

// write encodes to a temporary file and renames it, so readers never see a
// partial photo.
func write(path string, encode func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
