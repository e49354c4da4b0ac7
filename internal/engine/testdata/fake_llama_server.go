package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	var model, mmproj, host, port string
	var ngl, ctxSize, threads, mainGPU int
	var splitMode string
	var offline bool
	// Accept the subset of llama-server flags the engine passes.
	flag.StringVar(&model, "m", "", "model path")
	flag.StringVar(&mmproj, "mmproj", "", "projector path")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.IntVar(&ngl, "ngl", 0, "gpu layers")
	flag.StringVar(&splitMode, "split-mode", "layer", "split mode")
	flag.IntVar(&mainGPU, "main-gpu", 0, "main gpu")
	flag.IntVar(&ctxSize, "c", 0, "context size")
	flag.IntVar(&threads, "t", 0, "threads")
	flag.BoolVar(&offline, "offline", false, "offline")
	flag.Parse()

	if p := os.Getenv("FAKE_LLAMA_ARGS_FILE"); p != "" {
		_ = os.WriteFile(p, []byte(strings.Join(os.Args[1:], " ")), 0o644)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt struct {
				PromptString   string   `json:"prompt_string"`
				MultimodalData []string `json:"multimodal_data"`
			} `json:"prompt"`
			NPredict    int     `json:"n_predict"`
			Temperature float64 `json:"temperature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Prompt.MultimodalData) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": fmt.Sprintf(" a cat on a mat n=%d t=%g ", req.NPredict, req.Temperature),
		})
	})

	srv := &http.Server{Addr: net.JoinHostPort(host, port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
