// Package httpapi exposes the caption service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"captiond/internal/imageio"
	"captiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Caption(ctx context.Context, in imageio.Input) (string, error)
	CaptionBatch(ctx context.Context, inputs []imageio.Input) ([]string, error)
	Status() types.StatusResponse
	Ready() bool
}

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.RootResponse{Status: "ok", Message: "captiond is up"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lvl := requestLogLevel(r)
		files, err := readUploads(w, r, "file")
		if err != nil {
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, lvl, status, start, 0, err)
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		caption, err := svc.Caption(ctx, files[0].data)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, lvl, status, start, 1, err)
			return
		}
		writeJSON(w, types.CaptionResponse{Caption: caption})
		logEnd(r, lvl, http.StatusOK, start, 1, nil)
	})

	r.Post("/predict_batch", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lvl := requestLogLevel(r)
		files, err := readUploads(w, r, "files")
		if err != nil {
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, lvl, status, start, 0, err)
			return
		}
		inputs := make([]imageio.Input, len(files))
		for i, f := range files {
			inputs[i] = f.data
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		captions, err := svc.CaptionBatch(ctx, inputs)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, lvl, status, start, len(files), err)
			return
		}
		resp := types.BatchResponse{Results: make([]types.BatchResult, len(files))}
		for i, f := range files {
			resp.Results[i] = types.BatchResult{Filename: f.name, Caption: captions[i]}
		}
		writeJSON(w, resp)
		logEnd(r, lvl, http.StatusOK, start, len(files), nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// requestContext joins the request with the server base context so shutdown
// cancels work too, and applies the configured request timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	joined, cancelJoin := joinContexts(serverBaseCtx, r.Context())
	if requestTimeout <= 0 {
		return joined, cancelJoin
	}
	ctx, cancel := context.WithTimeout(joined, requestTimeout)
	return ctx, func() { cancel(); cancelJoin() }
}

// uploadError rejects a malformed or oversized upload.
type uploadError struct {
	status int
	msg    string
}

func (e uploadError) Error() string   { return e.msg }
func (e uploadError) StatusCode() int { return e.status }

func badUpload(format string, args ...any) error {
	return uploadError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

type upload struct {
	name string
	data imageio.Bytes
}

// readUploads parses a multipart body and returns every file posted under
// field, in upload order.
func readUploads(w http.ResponseWriter, r *http.Request, field string) ([]upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, uploadError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("request body exceeds %d bytes", mbe.Limit)}
		}
		return nil, badUpload("expected multipart/form-data body: %v", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, badUpload("missing file field %q", field)
	}
	out := make([]upload, 0, len(headers))
	for _, fh := range headers {
		b, err := readPart(fh)
		if err != nil {
			return nil, badUpload("read %s: %v", fh.Filename, err)
		}
		uploadBytes.Observe(float64(len(b)))
		out = append(out, upload{name: fh.Filename, data: imageio.Bytes(b)})
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
