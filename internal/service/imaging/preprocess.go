// Package imaging downsizes and re-encodes picked images before they are attached to a turn.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/zhouzirui/implantai/backend/internal/model/chat"
)

const (
	// DefaultMaxDimension bounds the longer side of an encoded image.
	DefaultMaxDimension = 1024
	// DefaultQuality is the JPEG quality used for every re-encoded image.
	DefaultQuality = 80
	// OutputMIMEType is the single format every preprocessed image is normalized to.
	OutputMIMEType = "image/jpeg"
	// MaxSourcePixels caps the declared size of an input before it is decoded.
	MaxSourcePixels = 64 << 20
)

// ErrTooLarge is wrapped in a DecodeError when the declared pixel count
// exceeds MaxSourcePixels.
var ErrTooLarge = errors.New("image dimensions exceed limit")

// ErrInvalidOptions is returned for non-positive dimensions or out of range quality.
var ErrInvalidOptions = errors.New("invalid preprocess options")

// DecodeError reports input that could not be decoded as a raster image.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Options control downsizing and encoding.
type Options struct {
	MaxDimension int
	Quality      int
}

// DefaultOptions mirrors the limits applied to images picked in the UI.
func DefaultOptions() Options {
	return Options{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality}
}

func (o Options) validate() error {
	if o.MaxDimension <= 0 {
		return fmt.Errorf("%w: max dimension %d", ErrInvalidOptions, o.MaxDimension)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidOptions, o.Quality)
	}
	return nil
}

// Result is a preprocessed image together with its encoded dimensions.
type Result struct {
	// Name is the source file name when produced by PreprocessAll.
	Name         string
	Image        chat.Image
	Width        int
	Height       int
	SourceFormat string
}

// Preprocess decodes r, scales it down so the longer side fits MaxDimension and
// re-encodes it as JPEG. Images already within bounds keep their size. The
// declared dimensions are checked against MaxSourcePixels before decoding, and
// JPEG EXIF orientation is applied so the output is upright.
func Preprocess(r io.Reader, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, &DecodeError{Err: err}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return Result{}, &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)}
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, &DecodeError{Err: err}
	}

	bounds := src.Bounds()
	width, height := FitWithin(bounds.Dx(), bounds.Dy(), opts.MaxDimension)

	// JPEG has no alpha channel, so transparent pixels are composited on white.
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	if format == "jpeg" {
		dst = Orient(dst, readOrientation(data))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return Result{}, fmt.Errorf("encode jpeg: %w", err)
	}

	out := dst.Bounds()
	return Result{
		Image:        chat.Image{MIMEType: OutputMIMEType, Data: buf.Bytes()},
		Width:        out.Dx(),
		Height:       out.Dy(),
		SourceFormat: format,
	}, nil
}

// FitWithin returns the proportional size whose longer side is at most maxDim.
// Sizes already within bounds are returned unchanged.
func FitWithin(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}
	if width >= height {
		scaled := int(float64(height)*float64(maxDim)/float64(width) + 0.5)
		return maxDim, max(scaled, 1)
	}
	scaled := int(float64(width)*float64(maxDim)/float64(height) + 0.5)
	return max(scaled, 1), maxDim
}
