package model_test

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/persona-api/internal/adapters/model"
	"github.com/chainsight/persona-api/internal/domain/features"
	domain "github.com/chainsight/persona-api/internal/domain/model"
)

// twoFeatureArtifact uses lambda=1, mean=0, scale=1 everywhere so the
// preprocessing is the identity and distances are easy to reason about.
func twoFeatureArtifact() model.Artifact {
	return model.Artifact{
		Features: []string{"tx_count", "active_days"},
		Lambdas:  []float64{1, 1},
		Means:    []float64{0, 0},
		Scales:   []float64{1, 1},
		Centroids: [][]float64{
			{0, 0},
			{10, 10},
			{-10, 0},
			{0, 20},
		},
		Personas: []string{"Dormant", "Power User", "Seller", "Collector"},
	}
}

func vector(t *testing.T, values map[string]float64) features.Vector {
	t.Helper()
	return features.FromValues(values)
}

func TestKMeansPredictor_AssignsNearestCentroid(t *testing.T) {
	t.Parallel()

	predictor, err := model.New(twoFeatureArtifact())
	require.NoError(t, err)

	tests := []struct {
		name        string
		values      map[string]float64
		wantCluster int
		wantPersona string
	}{
		{"near origin", map[string]float64{"tx_count": 0.5, "active_days": -0.5}, 0, "Dormant"},
		{"near second centroid", map[string]float64{"tx_count": 9, "active_days": 11}, 1, "Power User"},
		{"near third centroid", map[string]float64{"tx_count": -8, "active_days": 1}, 2, "Seller"},
		{"near fourth centroid", map[string]float64{"tx_count": 1, "active_days": 19}, 3, "Collector"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pred, err := predictor.Predict(vector(t, tt.values))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCluster, pred.ClusterLabel)
			assert.Equal(t, tt.wantPersona, pred.Persona)
		})
	}
}

func TestKMeansPredictor_ProbabilitiesSumToOneAndFavorWinner(t *testing.T) {
	t.Parallel()

	predictor, err := model.New(twoFeatureArtifact())
	require.NoError(t, err)

	pred, err := predictor.Predict(vector(t, map[string]float64{"tx_count": 9, "active_days": 11}))
	require.NoError(t, err)

	require.Len(t, pred.Probabilities, 4)
	var sum float64
	argmax := ""
	for persona, p := range pred.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		sum += p
		if argmax == "" || p > pred.Probabilities[argmax] {
			argmax = persona
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, pred.Persona, argmax)
}

func TestKMeansPredictor_UnmappedClustersKeepDistinctScores(t *testing.T) {
	t.Parallel()

	// Six centroids but only four named personas: the extra clusters must
	// keep their own distribution entries instead of collapsing onto one
	// "Unknown" key and losing probability mass.
	art := twoFeatureArtifact()
	art.Centroids = append(art.Centroids, []float64{20, -20}, []float64{-20, -20})
	predictor, err := model.New(art)
	require.NoError(t, err)

	pred, err := predictor.Predict(vector(t, map[string]float64{"tx_count": 19, "active_days": -19}))
	require.NoError(t, err)

	require.Len(t, pred.Probabilities, 6)
	assert.Contains(t, pred.Probabilities, "Cluster 4")
	assert.Contains(t, pred.Probabilities, "Cluster 5")
	assert.Equal(t, 4, pred.ClusterLabel)
	assert.Equal(t, domain.PersonaUnknown, pred.Persona)

	var sum float64
	for _, p := range pred.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestKMeansPredictor_YeoJohnsonHandlesNegatives(t *testing.T) {
	t.Parallel()

	// lambda=0.5 exercises the positive power branch; a negative input
	// exercises the reflected branch. Probabilities must stay finite.
	art := twoFeatureArtifact()
	art.Lambdas = []float64{0.5, 0.5}
	predictor, err := model.New(art)
	require.NoError(t, err)

	pred, err := predictor.Predict(vector(t, map[string]float64{"tx_count": -4, "active_days": 100}))
	require.NoError(t, err)
	for _, p := range pred.Probabilities {
		assert.False(t, math.IsNaN(p))
		assert.False(t, math.IsInf(p, 0))
	}
}

func TestKMeansPredictor_MissingFeature(t *testing.T) {
	t.Parallel()

	predictor, err := model.New(twoFeatureArtifact())
	require.NoError(t, err)

	_, err = predictor.Predict(features.Vector{Values: map[string]float64{"tx_count": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active_days")
}

func TestNew_ValidatesArtifact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*model.Artifact)
	}{
		{"no features", func(a *model.Artifact) { a.Features = nil }},
		{"lambda length mismatch", func(a *model.Artifact) { a.Lambdas = a.Lambdas[:1] }},
		{"no centroids", func(a *model.Artifact) { a.Centroids = nil }},
		{"centroid dimension mismatch", func(a *model.Artifact) { a.Centroids[0] = []float64{1} }},
		{"zero scale", func(a *model.Artifact) { a.Scales[0] = 0 }},
		{"duplicate persona", func(a *model.Artifact) { a.Personas[1] = a.Personas[0] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			art := twoFeatureArtifact()
			tt.mutate(&art)
			_, err := model.New(art)
			assert.Error(t, err)
		})
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	art := twoFeatureArtifact()
	raw, err := json.Marshal(art)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "kmeans_model.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	predictor, err := model.Load(path)
	require.NoError(t, err)
	assert.Equal(t, art.Personas, predictor.Personas())

	_, err = model.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
