package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"captiond/internal/common/fsutil"
)

// Artifacts are the weight files of a llama.cpp vision model.
type Artifacts struct {
	Model     string
	Projector string
}

// manifestHints are the optional keys the engine reads from the manifest;
// every other key belongs to the model and is ignored here.
type manifestHints struct {
	ModelFile     string `json:"model_file"`
	ProjectorFile string `json:"projector_file"`
}

// FindArtifacts locates the language model and the multimodal projector in
// dir. The manifest may name them explicitly; otherwise dir must contain
// exactly one projector (mmproj*.gguf) and exactly one other *.gguf.
func FindArtifacts(dir, manifest string) (Artifacts, error) {
	var hints manifestHints
	if manifest != "" {
		b, err := os.ReadFile(filepath.Join(dir, manifest))
		if err != nil {
			return Artifacts{}, fmt.Errorf("read manifest: %w", err)
		}
		if len(strings.TrimSpace(string(b))) > 0 {
			if err := json.Unmarshal(b, &hints); err != nil {
				return Artifacts{}, fmt.Errorf("parse manifest %s: %w", manifest, err)
			}
		}
	}

	var models, projectors []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Artifacts{}, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".gguf") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), "mmproj") {
			projectors = append(projectors, name)
		} else {
			models = append(models, name)
		}
	}
	sort.Strings(models)
	sort.Strings(projectors)

	model, err := pick(dir, "model", hints.ModelFile, models)
	if err != nil {
		return Artifacts{}, err
	}
	proj, err := pick(dir, "projector", hints.ProjectorFile, projectors)
	if err != nil {
		return Artifacts{}, err
	}
	return Artifacts{Model: model, Projector: proj}, nil
}

func pick(dir, what, hint string, found []string) (string, error) {
	if hint != "" {
		p, err := fsutil.JoinWithin(dir, hint)
		if err != nil {
			return "", fmt.Errorf("%s file named in manifest: %w", what, err)
		}
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			return "", fmt.Errorf("%s file %q named in manifest not found", what, hint)
		}
		return p, nil
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no %s .gguf file in %s", what, dir)
	case 1:
		return filepath.Join(dir, found[0]), nil
	default:
		return "", fmt.Errorf("multiple %s files in %s: %s", what, dir, strings.Join(found, ", "))
	}
}
