package calib

import (
	"fmt"

	"github.com/samcharles93/nndquant/internal/frontier"
	"github.com/samcharles93/nndquant/pkg/nnd"
)

// ArtifactKind classifies a file produced by a run.
type ArtifactKind uint8

const (
	ArtifactCalib ArtifactKind = iota
	ArtifactRawCalib
	ArtifactFrontier
	ArtifactWeights
	ArtifactQuantFactors
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactCalib:
		return "calib"
	case ArtifactRawCalib:
		return "raw_calib"
	case ArtifactFrontier:
		return "frontier"
	case ArtifactWeights:
		return "weights"
	case ArtifactQuantFactors:
		return "quant_factors"
	default:
		return fmt.Sprintf("ArtifactKind(%d)", uint8(k))
	}
}

func (k ArtifactKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Artifact is one tensor produced by a run. Tensor is only retained when
// the matching Ret* option is set.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	Name      string       `json:"name"`
	Path      string       `json:"path"`
	Primitive string       `json:"primitive,omitempty"`
	// Group is the zero-based feature group, -1 for all groups.
	Group    int  `json:"group"`
	Frontier int  `json:"frontier"`
	Saved    bool `json:"saved"`

	Tensor *nnd.Tensor `json:"-"`
}

// Result describes a finished run.
type Result struct {
	Frontiers []frontier.Frontier
	// Deps maps every primitive to the frontier index of each dependency,
	// keeping the shape of its dependency frontiers.
	Deps      map[string][][]int
	Artifacts []Artifact
}

// ByKind returns the artifacts of one kind in emission order.
func (r *Result) ByKind(kind ArtifactKind) []Artifact {
	var out []Artifact
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Lookup returns the artifact with the given file name.
func (r *Result) Lookup(name string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}
