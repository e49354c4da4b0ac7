// Package resolver locates the single pretrained model folder inside a
// configured local directory. It never reaches the network.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"captiond/internal/common/fsutil"
)

// Source is a local directory verified to contain the manifest file.
type Source struct {
	// Dir is the absolute path of the model folder.
	Dir string
	// Manifest is the absolute path of the manifest file inside Dir.
	Manifest string
}

// Resolver finds model folders by the presence of a manifest file.
type Resolver struct {
	manifest string
	log      zerolog.Logger
}

// New returns a Resolver looking for manifest (e.g. "config.json").
func New(manifest string, log zerolog.Logger) *Resolver {
	return &Resolver{manifest: manifest, log: log}
}

// Manifest returns the manifest file name the resolver looks for.
func (r *Resolver) Manifest() string { return r.manifest }

// Resolve applies, in order: the directory itself when it holds the
// manifest, else exactly one immediate subdirectory holding it. Zero
// candidates is ErrModelNotFound; several is ErrAmbiguousModel.
func (r *Resolver) Resolve(localDir string) (Source, error) {
	if strings.TrimSpace(localDir) == "" {
		return Source{}, &NotFoundError{Reason: "directory not configured"}
	}
	if strings.TrimSpace(r.manifest) == "" {
		return Source{}, &NotFoundError{Dir: localDir, Reason: "manifest file name not configured"}
	}
	expanded, err := fsutil.ExpandHome(localDir)
	if err != nil {
		return Source{}, &NotFoundError{Dir: localDir, Reason: err.Error()}
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return Source{}, &NotFoundError{Dir: localDir, Reason: fmt.Sprintf("abs path: %v", err)}
	}

	if src, ok := r.check(abs); ok {
		r.log.Info().Str("dir", abs).Str("manifest", r.manifest).Msg("model folder found directly")
		return src, nil
	}

	if !fsutil.IsDir(abs) {
		return Source{}, &NotFoundError{Dir: abs, Reason: "directory does not exist"}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return Source{}, &NotFoundError{Dir: abs, Reason: fmt.Sprintf("read dir: %v", err)}
	}
	var candidates []Source
	for _, e := range entries {
		child := filepath.Join(abs, e.Name())
		// Follow symlinked folders as well as plain ones.
		if !fsutil.IsDir(child) {
			continue
		}
		if src, ok := r.check(child); ok {
			candidates = append(candidates, src)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Dir < candidates[j].Dir })

	switch len(candidates) {
	case 0:
		return Source{}, &NotFoundError{Dir: abs, Reason: fmt.Sprintf("no folder containing %s", r.manifest)}
	case 1:
		r.log.Info().Str("parent", abs).Str("dir", candidates[0].Dir).Msg("single model folder found in parent directory")
		return candidates[0], nil
	default:
		dirs := make([]string, len(candidates))
		for i, c := range candidates {
			dirs[i] = c.Dir
		}
		r.log.Error().Str("parent", abs).Strs("candidates", dirs).Msg("multiple model folders found")
		return Source{}, &AmbiguousError{Dir: abs, Candidates: dirs}
	}
}

func (r *Resolver) check(dir string) (Source, bool) {
	manifest := filepath.Join(dir, r.manifest)
	if !fsutil.IsDir(dir) || !fsutil.IsFile(manifest) {
		return Source{}, false
	}
	return Source{Dir: dir, Manifest: manifest}, true
}

// Verify reports whether src still points at a local folder holding the
// manifest. Loaders call it before handing the path to an engine.
func (r *Resolver) Verify(src Source) error {
	if !filepath.IsAbs(src.Dir) {
		return &NotFoundError{Dir: src.Dir, Reason: "not an absolute local path"}
	}
	if _, ok := r.check(src.Dir); !ok {
		return &NotFoundError{Dir: src.Dir, Reason: fmt.Sprintf("%s missing", r.manifest)}
	}
	return nil
}
