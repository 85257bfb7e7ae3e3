// Package model loads a trained KMeans persona model from a JSON artifact
// and assigns wallets to clusters.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/chainsight/persona-api/internal/domain/features"
	domain "github.com/chainsight/persona-api/internal/domain/model"
)

// Artifact is the serialized form of a trained model: the feature order the
// preprocessing expects, per-feature Yeo-Johnson lambdas, standardization
// means and scales, cluster centroids in transformed space, and the persona
// label per cluster index.
type Artifact struct {
	Features  []string    `json:"features"`
	Lambdas   []float64   `json:"lambdas"`
	Means     []float64   `json:"means"`
	Scales    []float64   `json:"scales"`
	Centroids [][]float64 `json:"centroids"`
	Personas  []string    `json:"personas"`
}

// KMeansPredictor assigns a wallet's feature vector to the nearest trained
// centroid after applying the same preprocessing used at training time.
type KMeansPredictor struct {
	artifact Artifact
}

// Load reads and validates a model artifact from disk.
func Load(path string) (*KMeansPredictor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	return New(art)
}

// New builds a predictor from an in-memory artifact.
func New(art Artifact) (*KMeansPredictor, error) {
	n := len(art.Features)
	if n == 0 {
		return nil, fmt.Errorf("model artifact has no features")
	}
	if len(art.Lambdas) != n || len(art.Means) != n || len(art.Scales) != n {
		return nil, fmt.Errorf("model artifact: preprocessing arrays must match %d features", n)
	}
	if len(art.Centroids) == 0 {
		return nil, fmt.Errorf("model artifact has no centroids")
	}
	for i, c := range art.Centroids {
		if len(c) != n {
			return nil, fmt.Errorf("model artifact: centroid %d has %d dimensions, want %d", i, len(c), n)
		}
	}
	for i, s := range art.Scales {
		if s == 0 {
			return nil, fmt.Errorf("model artifact: scale for feature %q is zero", art.Features[i])
		}
	}
	if len(art.Personas) == 0 {
		art.Personas = domain.DefaultPersonas
	}
	seen := make(map[string]struct{}, len(art.Personas))
	for i, name := range art.Personas {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("model artifact: persona %q mapped to more than one cluster (index %d)", name, i)
		}
		seen[name] = struct{}{}
	}
	return &KMeansPredictor{artifact: art}, nil
}

// Predict transforms the raw feature vector and returns the nearest-cluster
// assignment with softmax confidence scores over the negative distances.
func (p *KMeansPredictor) Predict(vec features.Vector) (*domain.Prediction, error) {
	art := p.artifact

	x := make([]float64, len(art.Features))
	for i, name := range art.Features {
		raw, ok := vec.Values[name]
		if !ok {
			return nil, fmt.Errorf("feature vector missing %q", name)
		}
		x[i] = standardize(yeoJohnson(raw, art.Lambdas[i]), art.Means[i], art.Scales[i])
	}

	dists := make([]float64, len(art.Centroids))
	best := 0
	for i, centroid := range art.Centroids {
		dists[i] = euclidean(x, centroid)
		if dists[i] < dists[best] {
			best = i
		}
	}

	probs := softmaxNegative(dists)
	scores := make(map[string]float64, len(probs))
	for i, p := range probs {
		// ClusterKey keeps unmapped clusters distinct; collapsing them onto
		// one "Unknown" entry would silently drop probability mass.
		scores[domain.ClusterKey(art.Personas, i)] = p
	}

	return &domain.Prediction{
		ClusterLabel:  best,
		Persona:       domain.PersonaForCluster(art.Personas, best),
		Probabilities: scores,
	}, nil
}

// Personas exposes the cluster-index-to-persona mapping the model was
// trained with.
func (p *KMeansPredictor) Personas() []string {
	out := make([]string, len(p.artifact.Personas))
	copy(out, p.artifact.Personas)
	return out
}

// yeoJohnson applies the Yeo-Johnson power transform with parameter lambda.
func yeoJohnson(x, lambda float64) float64 {
	switch {
	case x >= 0 && lambda != 0:
		return (math.Pow(x+1, lambda) - 1) / lambda
	case x >= 0:
		return math.Log1p(x)
	case lambda != 2:
		return -(math.Pow(-x+1, 2-lambda) - 1) / (2 - lambda)
	default:
		return -math.Log1p(-x)
	}
}

func standardize(x, mean, scale float64) float64 {
	return (x - mean) / scale
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// softmaxNegative converts distances to probabilities: closer centroids get
// higher mass. Shifted by the max exponent for numeric stability.
func softmaxNegative(dists []float64) []float64 {
	maxNeg := math.Inf(-1)
	for _, d := range dists {
		if -d > maxNeg {
			maxNeg = -d
		}
	}

	probs := make([]float64, len(dists))
	var total float64
	for i, d := range dists {
		probs[i] = math.Exp(-d - maxNeg)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}
