package captioner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"captiond/internal/config"
	"captiond/internal/resolver"
)

func TestEnsureLoadedConcurrentCallersShareOneLoad(t *testing.T) {
	root, folder := modelRoot(t)
	fam := &fakeFamily{delay: 50 * time.Millisecond}
	c, pub := newTestCache(t, root, fam, nil)

	const callers = 32
	var wg sync.WaitGroup
	got := make([]*Captioner, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = c.EnsureLoaded(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range got {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if got[i] != got[0] {
			t.Fatalf("caller %d observed a different captioner", i)
		}
	}
	if n := fam.constructions(); n != 1 {
		t.Fatalf("constructions=%d want 1", n)
	}
	if got[0].Source.Dir != folder || got[0].Device != config.DeviceCPU || got[0].Family != "blip" {
		t.Fatalf("captioner=%+v", got[0])
	}
	if diff := cmp.Diff([]string{EventLoadStart, EventLoadReady}, pub.Names()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if !c.Ready() {
		t.Fatalf("cache should be ready")
	}
}

func TestEnsureLoadedIdempotent(t *testing.T) {
	root, _ := modelRoot(t)
	fam := &fakeFamily{}
	c, _ := newTestCache(t, root, fam, nil)
	first, err := c.EnsureLoaded(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.EnsureLoaded(context.Background())
		if err != nil || again != first {
			t.Fatalf("call %d: %v same=%v", i, err, again == first)
		}
	}
	if fam.constructions() != 1 {
		t.Fatalf("constructions=%d", fam.constructions())
	}
	if s := c.Snapshot(); s.State != StateReady || s.Loads != 1 {
		t.Fatalf("snapshot=%+v", s)
	}
	// Engine spec carries the manifest name and concrete device.
	spec := fam.specs[0]
	if spec.Manifest != "config.json" || spec.Device != config.DeviceCPU {
		t.Fatalf("spec=%+v", spec)
	}
	if !fam.built[0].inference.Load() {
		t.Fatalf("engine not switched to inference mode")
	}
}

func TestLoadFailureReturnsToEmptyAndRetries(t *testing.T) {
	root, folder := modelRoot(t)
	fam := &fakeFamily{failFirst: 1}
	c, pub := newTestCache(t, root, fam, nil)
	okBefore := testutil.ToFloat64(modelLoadsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(modelLoadsTotal.WithLabelValues("error"))

	_, err := c.EnsureLoaded(context.Background())
	var le *LoadError
	if !errors.As(err, &le) || le.Path != folder || !IsModelLoad(err) {
		t.Fatalf("want LoadError for %s, got %v", folder, err)
	}
	if !strings.Contains(err.Error(), folder) || !strings.Contains(err.Error(), "weights corrupt") {
		t.Fatalf("error should name path and cause: %v", err)
	}
	s := c.Snapshot()
	if s.State != StateEmpty || s.Err == "" || s.LoadFailures != 1 || s.Model != nil {
		t.Fatalf("after failure snapshot=%+v", s)
	}
	if c.Ready() {
		t.Fatalf("not ready after failure")
	}

	cap1, err := c.EnsureLoaded(context.Background())
	if err != nil || cap1 == nil {
		t.Fatalf("retry: %v", err)
	}
	if s := c.Snapshot(); s.State != StateReady || s.Err != "" || s.Loads != 1 {
		t.Fatalf("after retry snapshot=%+v", s)
	}
	want := []string{EventLoadStart, EventLoadError, EventLoadStart, EventLoadReady}
	if diff := cmp.Diff(want, pub.Names()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if d := testutil.ToFloat64(modelLoadsTotal.WithLabelValues("ok")) - okBefore; d != 1 {
		t.Fatalf("ok loads delta=%v", d)
	}
	if d := testutil.ToFloat64(modelLoadsTotal.WithLabelValues("error")) - errBefore; d != 1 {
		t.Fatalf("error loads delta=%v", d)
	}
}

func TestResolverErrorsPropagateUnchanged(t *testing.T) {
	c, _ := newTestCache(t, t.TempDir(), &fakeFamily{}, nil)
	if _, err := c.EnsureLoaded(context.Background()); !resolver.IsModelNotFound(err) || IsModelLoad(err) {
		t.Fatalf("want ModelNotFound, got %v", err)
	}

	amb := t.TempDir()
	writeModelFolder(t, amb, "a")
	writeModelFolder(t, amb, "b")
	fam := &fakeFamily{}
	c2, _ := newTestCache(t, amb, fam, nil)
	_, err := c2.EnsureLoaded(context.Background())
	var ae *resolver.AmbiguousError
	if !errors.As(err, &ae) || len(ae.Candidates) != 2 {
		t.Fatalf("want AmbiguousError with 2 candidates, got %v", err)
	}
	if fam.constructions() != 0 {
		t.Fatalf("engine constructed despite ambiguity")
	}
}

func TestUnconfiguredDirectory(t *testing.T) {
	c, _ := newTestCache(t, "", &fakeFamily{}, nil)
	_, err := c.EnsureLoaded(context.Background())
	if !resolver.IsModelNotFound(err) || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("want not configured, got %v", err)
	}
}

func TestFetchRunsUntilOneSucceeds(t *testing.T) {
	root, _ := modelRoot(t)
	f := &countingFetcher{failFirst: 1}
	c, _ := newTestCache(t, root, &fakeFamily{failFirst: 1}, func(cfg *Config) {
		cfg.RemoteURI = "gs://bucket/models/blip"
		cfg.Fetcher = f
	})
	// Attempt 1: fetch fails.
	if _, err := c.EnsureLoaded(context.Background()); err == nil || !strings.Contains(err.Error(), "bucket unreachable") {
		t.Fatalf("want fetch error, got %v", err)
	}
	// Attempt 2: fetch succeeds, engine construction fails.
	if _, err := c.EnsureLoaded(context.Background()); !IsModelLoad(err) {
		t.Fatalf("want load error, got %v", err)
	}
	// Attempt 3: no refetch, load succeeds.
	if _, err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	_, _ = c.EnsureLoaded(context.Background())
	if f.calls != 2 {
		t.Fatalf("fetch calls=%d want 2", f.calls)
	}
}

func TestNoFetchWithoutRemoteURI(t *testing.T) {
	root, _ := modelRoot(t)
	f := &countingFetcher{}
	c, _ := newTestCache(t, root, &fakeFamily{}, func(cfg *Config) { cfg.Fetcher = f })
	if _, err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.calls != 0 {
		t.Fatalf("fetch calls=%d", f.calls)
	}
}

func TestEnsureLoadedWaiterHonoursContext(t *testing.T) {
	root, _ := modelRoot(t)
	fam := &fakeFamily{delay: 200 * time.Millisecond}
	c, _ := newTestCache(t, root, fam, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.EnsureLoaded(context.Background())
		done <- err
	}()
	// Give the first caller time to take the gate.
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.EnsureLoaded(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiter: want deadline exceeded, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("loader: %v", err)
	}
}

func TestCloseReleasesEngine(t *testing.T) {
	root, _ := modelRoot(t)
	fam := &fakeFamily{}
	c, pub := newTestCache(t, root, fam, nil)
	if _, err := c.Caption(context.Background(), pngOf(t, 4, 4)); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fam.built[0].closed.Load() {
		t.Fatalf("engine not closed")
	}
	if c.Ready() {
		t.Fatalf("ready after close")
	}
	if _, err := c.Caption(context.Background(), pngOf(t, 4, 4)); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	names := pub.Names()
	if names[len(names)-1] != EventClosed {
		t.Fatalf("events=%v", names)
	}
}

func TestStatusReport(t *testing.T) {
	root, folder := modelRoot(t)
	c, _ := newTestCache(t, root, &fakeFamily{}, func(cfg *Config) {
		cfg.MaxQueueDepth = 8
		cfg.MaxInflight = 2
	})
	st := c.Status()
	if st.State != string(StateEmpty) || st.Model != nil || st.MaxQueueDepth != 8 || st.MaxInflight != 2 {
		t.Fatalf("before load status=%+v", st)
	}
	if _, err := c.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	st = c.Status()
	if st.State != string(StateReady) || st.Model == nil || st.Model.Path != folder || st.Model.Device != "cpu" || st.Loads != 1 {
		t.Fatalf("after load status=%+v", st)
	}
}
