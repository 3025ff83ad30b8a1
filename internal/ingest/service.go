package ingest

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "golang.org/x/image/webp"

	"deskmemo/internal/phash"
	"deskmemo/internal/storage"
)

// MaxUploadSize bounds a single screenshot upload.
const MaxUploadSize = 32 << 20

const jpegQuality = 85

var (
	ErrUnsupportedImage = errors.New("unsupported image")
	ErrTooLarge         = errors.New("upload too large")
)

// Result is a stored upload and the gate's decision about it.
type Result struct {
	Image    *storage.CapturedImage
	Decision Decision
}

// Service decodes, fingerprints and stores uploads, then passes them to the Gate.
type Service struct {
	files *storage.FileStore
	gate  *Gate
	now   func() time.Time
}

func NewService(files *storage.FileStore, gate *Gate) *Service {
	return &Service{files: files, gate: gate, now: time.Now}
}

// Ingest stores one screenshot. PNG, JPEG and WEBP input is accepted and
// re-encoded as JPEG. capturedAt is the capture time; zero means now.
func (s *Service) Ingest(ctx context.Context, r io.Reader, capturedAt time.Time) (*Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxUploadSize)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	fp, err := phash.Compute(img)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint image: %w", err)
	}

	if format != "jpeg" {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		data = buf.Bytes()
	}

	if capturedAt.IsZero() {
		capturedAt = s.now()
	}
	filename := newFilename(capturedAt)

	path, err := s.files.Save(capturedAt, filename, data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rec := &storage.CapturedImage{
		Filename:    filename,
		Path:        path,
		Timestamp:   capturedAt,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		FileSize:    int64(len(data)),
		Fingerprint: fp.String(),
	}

	decision, err := s.gate.Admit(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &Result{Image: rec, Decision: decision}, nil
}

// newFilename returns a time-ordered unique name such as 01jq....jpg.
func newFilename(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return strings.ToLower(id.String()) + ".jpg"
}
