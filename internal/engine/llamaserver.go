package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"captiond/internal/imageio"
)

const (
	defaultAcceleratorNGL = 999
	stopGrace             = 2 * time.Second
	stderrTailBytes       = 4096
	// captionSeed pins sampling so repeated requests give identical output.
	captionSeed = 42
	// mediaMarker is where llama-server splices the image embedding.
	mediaMarker   = "<__media__>"
	captionPrompt = mediaMarker + "\nA short caption for this image:"
)

// llamaServer runs one llama-server subprocess bound to loopback and talks
// to it over HTTP.
type llamaServer struct {
	log     zerolog.Logger
	client  *http.Client
	baseURL string

	cmd    *exec.Cmd
	exited chan struct{}
	tail   *tailBuffer

	mu        sync.Mutex
	inference bool
	closed    bool
	beamOnce  sync.Once
}

// NewLlamaServer spawns llama-server for the model in spec.ModelDir and
// waits until it reports healthy.
func NewLlamaServer(ctx context.Context, spec Spec) (Engine, error) {
	arts, err := FindArtifacts(spec.ModelDir, spec.Manifest)
	if err != nil {
		return nil, err
	}
	cfg := spec.Config
	bin := strings.TrimSpace(cfg.Bin)
	if bin == "" {
		bin = "llama-server"
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := pickFreePort(host)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-m", arts.Model,
		"--mmproj", arts.Projector,
		"--host", host,
		"--port", strconv.Itoa(port),
		"--offline",
	}
	args = append(args, deviceArgs(spec)...)
	if cfg.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.CtxSize))
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	args = append(args, cfg.ExtraArgs...)

	tail := newTailBuffer(stderrTailBytes)
	cmd := exec.Command(bin, args...)
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	e := &llamaServer{
		log:     spec.Log.With().Str("engine", KindLlamaServer).Int("pid", cmd.Process.Pid).Logger(),
		client:  &http.Client{Timeout: 0},
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		cmd:     cmd,
		exited:  make(chan struct{}),
		tail:    tail,
	}
	waitErrCh := make(chan error, 1)
	go func() {
		waitErrCh <- cmd.Wait()
		close(e.exited)
	}()
	e.log.Info().Str("model", arts.Model).Str("projector", arts.Projector).Str("device", string(spec.Device)).Str("url", e.baseURL).Msg("llama-server starting")

	timeout := time.Duration(cfg.StartupTimeout)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if err := e.waitReady(ctx, timeout, waitErrCh); err != nil {
		_ = e.Close()
		return nil, err
	}
	e.log.Info().Msg("llama-server ready")
	return e, nil
}

// gpuLayers maps the device onto llama.cpp's -ngl: nothing offloaded on
// cpu, everything (or the configured count) on an accelerator.
func gpuLayers(spec Spec) int {
	if !IsAccelerator(spec.Device) {
		return 0
	}
	if spec.Config.NGL > 0 {
		return spec.Config.NGL
	}
	return defaultAcceleratorNGL
}

// deviceArgs places the model: layer offload always, and for "cuda:<n>"
// the whole model pinned to GPU n instead of split across every GPU.
func deviceArgs(spec Spec) []string {
	args := []string{"-ngl", strconv.Itoa(gpuLayers(spec))}
	if n, ok := GPUIndex(spec.Device); ok {
		args = append(args, "--split-mode", "none", "--main-gpu", strconv.Itoa(n))
	}
	return args
}

func (e *llamaServer) waitReady(ctx context.Context, timeout time.Duration, waitErrCh <-chan error) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case werr := <-waitErrCh:
			if werr == nil {
				return fmt.Errorf("llama-server exited before ready: %s", e.baseURL)
			}
			return fmt.Errorf("llama-server exited early: %v; stderr tail: %s", werr, e.tail.String())
		case <-deadline.C:
			return fmt.Errorf("llama-server not ready after %s: %s", timeout, e.baseURL)
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if e.healthy(ctx, time.Second) {
				return nil
			}
		}
	}
}

// healthy reports whether /health answers 2xx. llama-server answers 503
// while the model is still loading.
func (e *llamaServer) healthy(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// SetInferenceMode confirms the server is up and pins greedy sampling.
func (e *llamaServer) SetInferenceMode() error {
	if !e.healthy(context.Background(), 2*time.Second) {
		return errors.New("llama-server is not healthy")
	}
	e.mu.Lock()
	e.inference = true
	e.mu.Unlock()
	return nil
}

type multimodalPrompt struct {
	PromptString   string   `json:"prompt_string"`
	MultimodalData []string `json:"multimodal_data"`
}

type completionRequest struct {
	Prompt      multimodalPrompt `json:"prompt"`
	NPredict    int              `json:"n_predict"`
	Temperature float64          `json:"temperature"`
	Seed        int              `json:"seed"`
	CachePrompt bool             `json:"cache_prompt"`
	Stream      bool             `json:"stream"`
}

type completionResponse struct {
	Content string `json:"content"`
}

func (e *llamaServer) Generate(ctx context.Context, img *imageio.Image, p Params) (string, error) {
	if img == nil {
		return "", errors.New("nil image")
	}
	e.mu.Lock()
	closed, inference := e.closed, e.inference
	e.mu.Unlock()
	if closed {
		return "", errors.New("engine closed")
	}
	if p.BeamWidth > 1 {
		e.beamOnce.Do(func() {
			e.log.Warn().Int("beam_width", p.BeamWidth).Msg("llama-server has no beam search; using greedy decoding")
		})
	}
	jpg, err := img.JPEG(95)
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	payload := completionRequest{
		Prompt: multimodalPrompt{
			PromptString:   captionPrompt,
			MultimodalData: []string{base64.StdEncoding.EncodeToString(jpg)},
		},
		NPredict: p.MaxLength,
		Stream:   false,
	}
	if p.Deterministic || inference {
		payload.Temperature = 0
		payload.Seed = captionSeed
	} else {
		payload.Temperature = 0.8
		payload.Seed = -1
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llama server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	return out.Content, nil
}

// Close sends SIGTERM and kills the process if it has not exited within
// the grace period.
func (e *llamaServer) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}
	_ = e.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-e.exited:
	case <-time.After(stopGrace):
		_ = e.cmd.Process.Kill()
		<-e.exited
	}
	e.log.Info().Msg("llama-server stopped")
	return nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last n bytes written to it. It is written by the
// exec copier goroutine and read on failure.
type tailBuffer struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

func newTailBuffer(n int) *tailBuffer { return &tailBuffer{n: n} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
