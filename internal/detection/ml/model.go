package ml

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// Artifact file names inside the artifact directory.
const (
	ModelFileName              = "model.gob"
	ThresholdFileName          = "threshold.txt"
	OptimizedThresholdFileName = "threshold_optimized.txt"
)

// ArtifactSchemaVersion is written into every persisted model. Loaders
// accept any 1.x artifact; a major bump means the weight layout changed.
const ArtifactSchemaVersion = "1.0.0"

var artifactConstraint = version.MustConstraints(version.NewConstraint(">= 1.0.0, < 2.0.0"))

// Artifact bundles everything inference needs: the trained weights, the
// scaler fit alongside them, and enough metadata to refuse incompatible
// files. Artifacts are immutable once written.
type Artifact struct {
	SchemaVersion string
	TrainedAt     time.Time
	WindowLength  int
	FeatureNames  []string
	Scaler        *Scaler
	Model         *Autoencoder
}

// SaveArtifact writes the artifact atomically: gob-encode to a temp file in
// the same directory, then rename over the destination.
func SaveArtifact(path string, a *Artifact) error {
	if a.SchemaVersion == "" {
		a.SchemaVersion = ArtifactSchemaVersion
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.gob")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(a); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding model artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing model artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads and validates a persisted model. A missing file maps to
// ModelUnavailableError so inference can degrade instead of crashing.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, &ModelUnavailableError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("opening model artifact: %w", err)
	}
	defer f.Close()

	var a Artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("decoding model artifact %s: %w", path, err)
	}

	v, err := version.NewVersion(a.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("artifact %s has invalid schema version %q: %w", path, a.SchemaVersion, err)
	}
	if !artifactConstraint.Check(v) {
		return nil, fmt.Errorf("artifact %s schema version %s outside supported range %s", path, a.SchemaVersion, artifactConstraint)
	}

	if a.Model == nil || a.Scaler == nil {
		return nil, fmt.Errorf("artifact %s is incomplete", path)
	}
	return &a, nil
}

// SaveThreshold writes a threshold file: exactly one floating-point literal.
func SaveThreshold(path string, threshold float64) error {
	data := strconv.FormatFloat(threshold, 'g', -1, 64) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing threshold file: %w", err)
	}
	return nil
}

// LoadThreshold reads a threshold file written by SaveThreshold.
func LoadThreshold(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing threshold file %s: %w", path, err)
	}
	return v, nil
}
