package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"captiond/internal/captioner"
	"captiond/internal/config"
	"captiond/internal/httpapi"
)

// createModelDir lays out a local model directory holding one model folder
// with a manifest and returns the directory path.
func createModelDir(t *testing.T, folder string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, config.DefaultManifestFile), []byte(`{"model_type":"blip"}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return root
}

// fakeConfig returns a service configuration that serves localDir with the
// deterministic engine on the CPU.
func fakeConfig(localDir string) config.Config {
	cfg := config.Default()
	cfg.LocalModelDir = localDir
	cfg.Device = config.DeviceCPU
	cfg.Engine.Kind = "fake"
	return cfg
}

// newServer wires a real captioner behind the HTTP API and returns the test
// server together with the cache.
func newServer(t *testing.T, cfg config.Config) (*httptest.Server, *captioner.Cache) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	cache := captioner.New(captioner.FromConfig(cfg, zerolog.Nop()))
	srv := httptest.NewServer(httpapi.NewMux(cache))
	t.Cleanup(func() {
		srv.Close()
		_ = cache.Close(context.Background())
	})
	return srv, cache
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type upload struct {
	name string
	data []byte
}

// postFiles uploads files under field and returns the status and body.
func postFiles(t *testing.T, url, field string, files ...upload) (int, []byte) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := mw.CreateFormFile(field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, b
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}
