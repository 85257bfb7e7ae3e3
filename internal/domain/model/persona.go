package model

import "fmt"

// PersonaUnknown is returned for cluster labels with no persona mapping.
const PersonaUnknown = "Unknown"

// DefaultPersonas maps cluster labels to the behavioral persona names the
// model was trained against. The slice index is the cluster label.
var DefaultPersonas = []string{
	"High-Frequency Bots / Automated Traders",
	"High-Value NFT & Crypto Traders (Degen Whales)",
	"Active Retail Users / Everyday Traders",
	"Ultra-Whales / Institutional & Exchange Wallets",
}

// PersonaForCluster resolves a cluster label against a persona list,
// defaulting to PersonaUnknown for unmapped labels.
func PersonaForCluster(personas []string, label int) string {
	if label < 0 || label >= len(personas) || personas[label] == "" {
		return PersonaUnknown
	}
	return personas[label]
}

// ClusterKey resolves a cluster label to a distinct key for probability
// distributions. Unmapped labels get "Cluster N" so two unnamed clusters
// never collapse onto one map entry.
func ClusterKey(personas []string, label int) string {
	if label < 0 || label >= len(personas) || personas[label] == "" {
		return fmt.Sprintf("Cluster %d", label)
	}
	return personas[label]
}

// Prediction is the output of the clustering model for one feature vector.
type Prediction struct {
	// ClusterLabel is the index of the nearest centroid.
	ClusterLabel int `json:"cluster_label"`
	// Persona is the human-readable name for the cluster.
	Persona string `json:"persona"`
	// Probabilities holds one confidence score in [0,1] per cluster,
	// keyed by persona name (or "Cluster N" for unmapped clusters); the
	// scores sum to 1 and ClusterLabel is always the argmax.
	Probabilities map[string]float64 `json:"probabilities"`
}
