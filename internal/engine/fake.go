package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"captiond/internal/imageio"
)

// fake describes images by their dominant colour. It needs no weights and
// always returns the same caption for the same pixels.
type fake struct {
	dir       string
	inference atomic.Bool
	closed    atomic.Bool
}

// NewFake returns the deterministic engine used for tests and dry runs.
func NewFake(_ context.Context, spec Spec) (Engine, error) {
	spec.Log.Info().Str("engine", KindFake).Str("dir", spec.ModelDir).Msg("fake engine loaded")
	return &fake{dir: spec.ModelDir}, nil
}

func (f *fake) SetInferenceMode() error {
	f.inference.Store(true)
	return nil
}

func (f *fake) Generate(ctx context.Context, img *imageio.Image, p Params) (string, error) {
	if f.closed.Load() {
		return "", errors.New("engine closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if img == nil {
		return "", errors.New("nil image")
	}
	b := img.Bounds()
	words := strings.Fields(fmt.Sprintf("a %s %s %s image %dx%d", shade(img), colourName(img), orientation(b.Dx(), b.Dy()), b.Dx(), b.Dy()))
	if p.MaxLength > 0 && len(words) > p.MaxLength {
		words = words[:p.MaxLength]
	}
	return strings.Join(words, " "), nil
}

func (f *fake) Close() error {
	f.closed.Store(true)
	return nil
}

func mean(img *imageio.Image) (r, g, b uint64) {
	pix := img.RGB.Pix
	n := uint64(len(pix) / 4)
	if n == 0 {
		return 0, 0, 0
	}
	for i := 0; i+3 < len(pix); i += 4 {
		r += uint64(pix[i])
		g += uint64(pix[i+1])
		b += uint64(pix[i+2])
	}
	return r / n, g / n, b / n
}

func colourName(img *imageio.Image) string {
	r, g, b := mean(img)
	switch {
	case r > g+40 && r > b+40:
		return "red"
	case g > r+40 && g > b+40:
		return "green"
	case b > r+40 && b > g+40:
		return "blue"
	default:
		return "grey"
	}
}

func shade(img *imageio.Image) string {
	r, g, b := mean(img)
	switch l := (r + g + b) / 3; {
	case l < 85:
		return "dark"
	case l > 170:
		return "bright"
	default:
		return "muted"
	}
}

func orientation(w, h int) string {
	switch {
	case w > h:
		return "landscape"
	case h > w:
		return "portrait"
	default:
		return "square"
	}
}
