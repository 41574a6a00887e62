package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"runtime"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/heic"
	"golang.org/x/sync/errgroup"
)

// DefaultInferenceCeiling is the largest base64-encoded part a backend accepts.
const DefaultInferenceCeiling = 5 << 20

// DefaultMaxPixels caps the dimensions of an image that is decoded for re-encoding.
const DefaultMaxPixels = 50_000_000

// NormalizerOptions tunes the size reduction loop. Zero fields take defaults.
type NormalizerOptions struct {
	// Ceiling is the maximum base64-encoded size of an image part, in bytes.
	Ceiling int

	StartQuality int
	QualityStep  int
	MinQuality   int

	// After the quality floor the image is shrunk by DownscaleFactor per step
	// and re-encoded at DownscaleQuality, at most MaxDownscales times.
	DownscaleFactor  float64
	DownscaleQuality int
	MaxDownscales    int

	// Workers bounds how many parts are normalized in parallel.
	Workers int

	// MaxPixels is the largest width*height decoded. Larger images are rejected
	// before any pixel buffer is allocated.
	MaxPixels int
}

func (o NormalizerOptions) withDefaults() NormalizerOptions {
	if o.Ceiling <= 0 {
		o.Ceiling = DefaultInferenceCeiling
	}
	if o.StartQuality <= 0 {
		o.StartQuality = 85
	}
	if o.QualityStep <= 0 {
		o.QualityStep = 10
	}
	if o.MinQuality <= 0 {
		o.MinQuality = 20
	}
	if o.MinQuality > o.StartQuality {
		o.MinQuality = o.StartQuality
	}
	if o.DownscaleFactor <= 0 || o.DownscaleFactor >= 1 {
		o.DownscaleFactor = 0.8
	}
	if o.DownscaleQuality <= 0 {
		o.DownscaleQuality = 70
	}
	if o.MaxDownscales <= 0 {
		o.MaxDownscales = 12
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// SizeNormalizer keeps image parts under the backend's size ceiling.
// It holds no mutable state and is safe for concurrent use.
type SizeNormalizer struct {
	opts NormalizerOptions
}

// NewSizeNormalizer creates a SizeNormalizer
func NewSizeNormalizer(opts NormalizerOptions) *SizeNormalizer {
	return &SizeNormalizer{opts: opts.withDefaults()}
}

// NormalizeAll normalizes parts in parallel. The result has the same order as
// parts. It returns as soon as ctx is done, even while a part is still encoding.
func (n *SizeNormalizer) NormalizeAll(ctx context.Context, parts []InputPart) ([]NormalizedPart, error) {
	out := make([]NormalizedPart, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.Workers)
	for i, part := range parts {
		g.Go(func() error {
			np, err := n.Normalize(gctx, part)
			if err != nil {
				var inErr *UnsupportedInputError
				if errors.As(err, &inErr) {
					inErr.Index = i
				}
				return err
			}
			out[i] = np
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Normalize brings a single part under the size ceiling.
//
// PDFs pass through untouched regardless of size. Images that already fit
// pass through untouched. Oversized images are re-encoded as JPEG with
// decreasing quality, then downscaled. If the image cannot be decoded or
// re-encoded the original bytes are returned. Images above MaxPixels are
// rejected. ctx is checked between encode passes.
func (n *SizeNormalizer) Normalize(ctx context.Context, part InputPart) (NormalizedPart, error) {
	if err := ctx.Err(); err != nil {
		return NormalizedPart{}, err
	}


	mimeType := normalizeMimeType(part.MimeType, part.Data)

	switch {
	case mimeType == MimePDF:
		return NormalizedPart{Data: part.Data, MimeType: MimePDF}, nil
	case isHEICMimeType(mimeType) || isHEICFormat(part.Data):
		return n.transcodeHEIC(ctx, part.Data)
	case mimeType == MimeJPEG || mimeType == MimePNG:
		return n.shrink(ctx, part.Data, mimeType)
	default:
		return NormalizedPart{}, &UnsupportedInputError{MimeType: mimeType}
	}
}

// fits reports whether size raw bytes stay under the ceiling once base64 encoded.
func (n *SizeNormalizer) fits(size int) bool {
	return base64.StdEncoding.EncodedLen(size) <= n.opts.Ceiling
}

func (n *SizeNormalizer) shrink(ctx context.Context, data []byte, mimeType string) (NormalizedPart, error) {
	original := NormalizedPart{Data: data, MimeType: mimeType}
	if n.fits(len(data)) {
		return original, nil
	}

	cfg, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		slog.Warn("Could not read oversized image header, passing it through", "mime_type", mimeType, "size", len(data), "error", err)
		return original, nil
	}
	if err := n.checkPixels(cfg); err != nil {
		return NormalizedPart{}, &UnsupportedInputError{MimeType: mimeType, Err: err}
	}

	img, err := decodeImage(data)
	if err != nil {
		slog.Warn("Could not decode oversized image, passing it through", "mime_type", mimeType, "size", len(data), "error", err)
		return original, nil
	}

	out, err := n.compress(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NormalizedPart{}, ctxErr
		}
		slog.Warn("Could not compress oversized image, passing it through", "mime_type", mimeType, "size", len(data), "error", err)
		return original, nil
	}

	slog.Info("Compressed image", "mime_type", mimeType, "from", len(data), "to", len(out))
	return NormalizedPart{Data: out, MimeType: MimeJPEG}, nil
}

func (n *SizeNormalizer) transcodeHEIC(ctx context.Context, data []byte) (NormalizedPart, error) {
	cfg, err := heic.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return NormalizedPart{}, &UnsupportedInputError{MimeType: mimeHEIC, Err: fmt.Errorf("reading HEIC/HEIF header: %w", err)}
	}
	if err := n.checkPixels(cfg); err != nil {
		return NormalizedPart{}, &UnsupportedInputError{MimeType: mimeHEIC, Err: err}
	}

	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return NormalizedPart{}, &UnsupportedInputError{MimeType: mimeHEIC, Err: fmt.Errorf("decoding HEIC/HEIF image: %w", err)}
	}
	out, err := n.compress(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NormalizedPart{}, ctxErr
		}
		return NormalizedPart{}, &UnsupportedInputError{MimeType: mimeHEIC, Err: fmt.Errorf("transcoding HEIC/HEIF image: %w", err)}
	}
	return NormalizedPart{Data: out, MimeType: MimeJPEG}, nil
}

// checkPixels rejects images whose decoded buffer would exceed MaxPixels.
func (n *SizeNormalizer) checkPixels(cfg image.Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(n.opts.MaxPixels) {
		return fmt.Errorf("image is %dx%d, above the %d pixel limit", cfg.Width, cfg.Height, n.opts.MaxPixels)
	}
	return nil
}

// compress encodes img as JPEG, lowering quality down to the floor and then
// downscaling, until the result fits. It never returns an oversized result.
// ctx is checked before every encode.
func (n *SizeNormalizer) compress(ctx context.Context, img image.Image) ([]byte, error) {
	for q := n.opts.StartQuality; ; q -= n.opts.QualityStep {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q < n.opts.MinQuality {
			q = n.opts.MinQuality
		}
		out, err := encodeJPEG(img, q)
		if err != nil {
			return nil, err
		}
		if n.fits(len(out)) {
			return out, nil
		}
		if q == n.opts.MinQuality {
			break
		}
	}

	for i := 0; i < n.opts.MaxDownscales; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		width := int(float64(img.Bounds().Dx()) * n.opts.DownscaleFactor)
		if width < 1 {
			break
		}
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
		out, err := encodeJPEG(img, n.opts.DownscaleQuality)
		if err != nil {
			return nil, err
		}
		if n.fits(len(out)) {
			return out, nil
		}
	}

	return nil, fmt.Errorf("image exceeds %d bytes after %d downscales", n.opts.Ceiling, n.opts.MaxDownscales)
}

// decodeImage decodes JPEG or PNG data, applying EXIF orientation and
// flattening transparency onto white.
func decodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		b := img.Bounds()
		bg := imaging.New(b.Dx(), b.Dy(), color.White)
		img = imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
	}
	return img, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding JPEG (quality %d): %w", quality, err)
	}
	return buf.Bytes(), nil
}

// normalizeMimeType lowercases the declared type, strips parameters, maps
// aliases and sniffs the content when nothing useful was declared.
func normalizeMimeType(declared string, data []byte) string {
	m := stripMimeParams(declared)
	switch m {
	case "", "application/octet-stream":
		m = stripMimeParams(mimetype.Detect(data).String())
	case "image/jpg", "image/pjpeg":
		m = MimeJPEG
	case "image/x-png":
		m = MimePNG
	}
	return m
}

func stripMimeParams(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return mimeType == mimeHEIC || mimeType == mimeHEIF ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
