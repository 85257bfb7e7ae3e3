package config

// ModelConfig contains configuration for the clustering model artifact.
type ModelConfig struct {
	// ArtifactPath points at the JSON artifact exported by the training
	// pipeline (centroids, power-transform parameters, persona mapping).
	// When the artifact is missing the service still starts, but analysis
	// endpoints return 503 until it is provided.
	ArtifactPath string `env:"MODEL_ARTIFACT_PATH" envDefault:"kmeans_model.json"`
}
