package captioner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"captiond/internal/engine"
	"captiond/internal/imageio"
)

// Caption loads the model if needed and returns the caption for in.
func (m *Cache) Caption(ctx context.Context, in imageio.Input) (string, error) {
	c, err := m.EnsureLoaded(ctx)
	if err != nil {
		return "", err
	}
	img, err := imageio.Normalize(in)
	if err != nil {
		captionsTotal.WithLabelValues("invalid").Inc()
		return "", err
	}
	return m.generate(ctx, c, img)
}

// CaptionBatch captions every input and returns the captions in input
// order. All inputs are validated before any inference runs; one bad input
// or one failed generation fails the whole batch. An empty batch returns an
// empty result without touching the model.
func (m *Cache) CaptionBatch(ctx context.Context, inputs []imageio.Input) ([]string, error) {
	if len(inputs) == 0 {
		return []string{}, nil
	}
	if len(inputs) > m.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", imageio.ErrInvalidInput, len(inputs), m.cfg.MaxBatch)
	}
	c, err := m.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	imgs := make([]*imageio.Image, len(inputs))
	for i, in := range inputs {
		img, err := imageio.Normalize(in)
		if err != nil {
			captionsTotal.WithLabelValues("invalid").Inc()
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		imgs[i] = img
	}

	out := make([]string, len(imgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxInflight)
	for i, img := range imgs {
		g.Go(func() error {
			text, err := m.generate(gctx, c, img)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Cache) generate(ctx context.Context, c *Captioner, img *imageio.Image) (string, error) {
	release, err := m.beginGeneration(ctx, string(c.Device))
	if err != nil {
		captionsTotal.WithLabelValues(resultLabel(err)).Inc()
		return "", err
	}
	defer release()

	start := time.Now()
	text, err := c.engine.Generate(ctx, img, engine.Params{
		MaxLength:     m.cfg.MaxLength,
		BeamWidth:     m.cfg.BeamWidth,
		Deterministic: true,
	})
	captionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		captionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("generate: %w", err)
	}
	captionsTotal.WithLabelValues("ok").Inc()
	return strings.TrimSpace(text), nil
}

func resultLabel(err error) string {
	if IsTooBusy(err) {
		return "busy"
	}
	return "error"
}
