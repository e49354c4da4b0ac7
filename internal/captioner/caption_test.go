package captioner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"captiond/internal/imageio"
)

func TestCaptionTrimsAndIsDeterministic(t *testing.T) {
	root, _ := modelRoot(t)
	c, _ := newTestCache(t, root, &fakeFamily{}, nil)
	img := pngOf(t, 7, 3)
	a, err := c.Caption(context.Background(), img)
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if a != "caption w=7 max=20" {
		t.Fatalf("caption=%q", a)
	}
	b, err := c.Caption(context.Background(), img)
	if err != nil || a != b {
		t.Fatalf("second caption=%q err=%v", b, err)
	}
}

func TestCaptionInvalidInput(t *testing.T) {
	root, _ := modelRoot(t)
	fam := &fakeFamily{}
	c, _ := newTestCache(t, root, fam, nil)
	for name, in := range map[string]imageio.Input{
		"nil":     nil,
		"garbage": imageio.Bytes("definitely not a png"),
		"missing": imageio.Path(root + "/nope.jpg"),
	} {
		if _, err := c.Caption(context.Background(), in); !errors.Is(err, imageio.ErrInvalidInput) {
			t.Fatalf("%s: want ErrInvalidInput, got %v", name, err)
		}
	}
	if fam.built[0].calls.Load() != 0 {
		t.Fatalf("engine called for invalid input")
	}
}

func TestCaptionEngineError(t *testing.T) {
	root, _ := modelRoot(t)
	c, _ := newTestCache(t, root, &fakeFamily{genErr: errors.New("cuda oom")}, nil)
	before := testutil.ToFloat64(captionsTotal.WithLabelValues("error"))
	if _, err := c.Caption(context.Background(), pngOf(t, 2, 2)); err == nil {
		t.Fatalf("expected engine error")
	}
	if d := testutil.ToFloat64(captionsTotal.WithLabelValues("error")) - before; d != 1 {
		t.Fatalf("error captions delta=%v", d)
	}
}

func TestCaptionBatchPreservesOrder(t *testing.T) {
	root, _ := modelRoot(t)
	fam := &fakeFamily{}
	c, _ := newTestCache(t, root, fam, func(cfg *Config) { cfg.MaxInflight = 3 })
	var inputs []imageio.Input
	var want []string
	for w := 1; w <= 9; w++ {
		inputs = append(inputs, pngOf(t, w, 2))
		want = append(want, fmt.Sprintf("caption w=%d max=20", w))
	}
	got, err := c.CaptionBatch(context.Background(), inputs)
	if err != nil {
		t.Fatalf("CaptionBatch: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("captions (-want +got):\n%s", diff)
	}
	// Batch results match single-image captions.
	single, _ := c.Caption(context.Background(), inputs[4])
	if single != got[4] {
		t.Fatalf("single=%q batch=%q", single, got[4])
	}
}

func TestCaptionBatchEmpty(t *testing.T) {
	root, _ := modelRoot(t)
	fam := &fakeFamily{}
	c, _ := newTestCache(t, root, fam, nil)
	got, err := c.CaptionBatch(context.Background(), nil)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if fam.constructions() != 0 {
		t.Fatalf("empty batch should not load the model")
	}
}

func TestCaptionBatchInvalidFailsWhole(t *testing.T) {
	root, _ := modelRoot(t)
	fam := &fakeFamily{}
	c, _ := newTestCache(t, root, fam, nil)
	inputs := []imageio.Input{pngOf(t, 2, 2), imageio.Bytes(nil), pngOf(t, 3, 3)}
	if _, err := c.CaptionBatch(context.Background(), inputs); !errors.Is(err, imageio.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
	if n := fam.built[0].calls.Load(); n != 0 {
		t.Fatalf("engine called %d times before validation finished", n)
	}
}

func TestCaptionBatchTooLarge(t *testing.T) {
	root, _ := modelRoot(t)
	c, _ := newTestCache(t, root, &fakeFamily{}, func(cfg *Config) { cfg.MaxBatch = 2 })
	inputs := []imageio.Input{pngOf(t, 1, 1), pngOf(t, 1, 1), pngOf(t, 1, 1)}
	if _, err := c.CaptionBatch(context.Background(), inputs); !errors.Is(err, imageio.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestCaptionBatchEngineErrorFailsWhole(t *testing.T) {
	root, _ := modelRoot(t)
	c, _ := newTestCache(t, root, &fakeFamily{genErr: errors.New("boom")}, nil)
	if _, err := c.CaptionBatch(context.Background(), []imageio.Input{pngOf(t, 1, 1), pngOf(t, 2, 2)}); err == nil {
		t.Fatalf("expected batch failure")
	}
}

func TestCaptionTooBusy(t *testing.T) {
	root, _ := modelRoot(t)
	block := make(chan struct{})
	fam := &fakeFamily{block: block}
	c, _ := newTestCache(t, root, fam, func(cfg *Config) {
		cfg.MaxInflight = 1
		cfg.MaxQueueDepth = 1
		cfg.MaxWait = 50 * time.Millisecond
	})
	if _, err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	busyBefore := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue_full"))

	img := pngOf(t, 2, 2)
	first := make(chan error, 1)
	go func() {
		_, err := c.Caption(context.Background(), img)
		first <- err
	}()
	// Wait for the first request to hold the only slot.
	deadline := time.Now().Add(2 * time.Second)
	for fam.built[0].calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first request never reached the engine")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := c.Status(); st.Inflight != 1 || st.QueueLen != 1 {
		t.Fatalf("status while busy=%+v", st)
	}

	_, err := c.Caption(context.Background(), img)
	if !IsTooBusy(err) {
		t.Fatalf("want too busy, got %v", err)
	}
	if d := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue_full")) - busyBefore; d != 1 {
		t.Fatalf("backpressure delta=%v", d)
	}

	close(block)
	if err := <-first; err != nil {
		t.Fatalf("first request: %v", err)
	}
	if st := c.Status(); st.Inflight != 0 || st.QueueLen != 0 {
		t.Fatalf("slots not released: %+v", st)
	}
}

func TestCaptionCanceledWhileQueued(t *testing.T) {
	root, _ := modelRoot(t)
	block := make(chan struct{})
	fam := &fakeFamily{block: block}
	c, _ := newTestCache(t, root, fam, func(cfg *Config) {
		cfg.MaxInflight = 1
		cfg.MaxWait = time.Minute
	})
	if _, err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	img := pngOf(t, 2, 2)
	first := make(chan error, 1)
	go func() {
		_, err := c.Caption(context.Background(), img)
		first <- err
	}()
	for fam.built[0].calls.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.Caption(ctx, img); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	close(block)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
}

func TestBeginGenerationAfterCloseReleasesSlot(t *testing.T) {
	root, _ := modelRoot(t)
	c, _ := newTestCache(t, root, &fakeFamily{}, func(cfg *Config) {
		cfg.MaxInflight = 1
		cfg.MaxQueueDepth = 2
		cfg.MaxWait = 2 * time.Second
	})
	// Hold the only in-flight slot so the next caller queues.
	c.genCh <- struct{}{}
	got := make(chan error, 1)
	go func() {
		release, err := c.beginGeneration(context.Background(), "cpu")
		release()
		got <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(c.queueCh) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("caller never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	<-c.genCh

	select {
	case err := <-got:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("want ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued caller never returned")
	}
	if len(c.genCh) != 0 || len(c.queueCh) != 0 {
		t.Fatalf("slots leaked: inflight=%d queued=%d", len(c.genCh), len(c.queueCh))
	}
}
