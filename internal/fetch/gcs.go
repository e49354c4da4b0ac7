package fetch

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	AllowAnonymous bool
	Endpoint       string
	Log            zerolog.Logger
}

// findCredentials is swapped in tests to simulate machines with or without
// application default credentials.
var findCredentials = google.FindDefaultCredentials

type gcsStore struct {
	svc *storage.Service
}

// NewGCSStore builds a GCS-backed ObjectStore. Ambient application default
// credentials are preferred; without them the store falls back to anonymous
// access only when cfg.AllowAnonymous is set, otherwise it fails with
// ErrCredentialsMissing.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (ObjectStore, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	creds, err := findCredentials(ctx, storage.DevstorageReadOnlyScope)
	switch {
	case err == nil:
		cfg.Log.Info().Str("project", creds.ProjectID).Msg("using ambient storage credentials")
		opts = append(opts, option.WithCredentials(creds))
	case cfg.AllowAnonymous:
		cfg.Log.Warn().Err(err).Msg("no ambient storage credentials; using anonymous access")
		opts = append(opts, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("%w: no application default credentials found (%v); configure credentials or enable anonymous access", ErrCredentialsMissing, err)
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &gcsStore{svc: svc}, nil
}

func (s *gcsStore) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var out []Object
	call := s.svc.Objects.List(bucket).Prefix(prefix).Fields("items(name,size),nextPageToken")
	err := call.Pages(ctx, func(page *storage.Objects) error {
		for _, o := range page.Items {
			out = append(out, Object{Key: o.Name, Size: int64(o.Size)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gcsStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	resp, err := s.svc.Objects.Get(bucket, key).Context(ctx).Download()
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}
