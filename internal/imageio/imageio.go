// Package imageio normalizes the image forms accepted by the service into
// one canonical opaque RGB image.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidInput marks images that are missing, empty or undecodable.
var ErrInvalidInput = errors.New("invalid image input")

// MaxPixels bounds decoded image area to keep a hostile header from
// allocating gigabytes.
const MaxPixels = 100_000_000

// Input is one of Decoded, Bytes or Path.
type Input interface {
	isInput()
}

// Decoded is an image that is already in memory.
type Decoded struct {
	Image image.Image
}

// Bytes holds an encoded image file.
type Bytes []byte

// Path names an image file on disk.
type Path string

func (Decoded) isInput() {}
func (Bytes) isInput()   {}
func (Path) isInput()    {}

// Image is the canonical form handed to engines: every pixel has alpha 0xff.
type Image struct {
	RGB    *image.RGBA
	Format string
}

// Bounds returns the pixel bounds of the image.
func (im *Image) Bounds() image.Rectangle { return im.RGB.Bounds() }

// JPEG encodes the image at quality q (1-100, 0 means jpeg.DefaultQuality).
func (im *Image) JPEG(q int) ([]byte, error) {
	if q <= 0 {
		q = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, im.RGB, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Normalize decodes in if needed and converts it to opaque RGB, compositing
// any transparency over white.
func Normalize(in Input) (*Image, error) {
	switch v := in.(type) {
	case nil:
		return nil, fmt.Errorf("%w: no image", ErrInvalidInput)
	case Decoded:
		if v.Image == nil {
			return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
		}
		return flatten(v.Image, "decoded")
	case *Decoded:
		if v == nil || v.Image == nil {
			return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
		}
		return flatten(v.Image, "decoded")
	case Bytes:
		return decode(v)
	case Path:
		p := strings.TrimSpace(string(v))
		if p == "" {
			return nil, fmt.Errorf("%w: empty path", ErrInvalidInput)
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return decode(b)
	default:
		return nil, fmt.Errorf("%w: unsupported input type %T", ErrInvalidInput, in)
	}
}

func decode(b []byte) (*Image, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrInvalidInput)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: unsupported dimensions %dx%d", ErrInvalidInput, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return flatten(img, format)
}

func flatten(src image.Image, format string) (*Image, error) {
	r := src.Bounds()
	if r.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Over)
	return &Image{RGB: dst, Format: format}, nil
}
