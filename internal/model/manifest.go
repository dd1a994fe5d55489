package model

import "encoding/json"

// Fixed tuning constants for the streaming micro model. These match what
// the trainer's packaging step emits; ESPHome refuses manifests without
// them.
const (
	manifestVersion       = 2
	probabilityCutoff     = 0.97
	slidingWindowSize     = 5
	featureStepSize       = 10
	tensorArenaSize       = 30000
	minimumESPHomeVersion = "2024.7.0"
)

// Manifest is the metadata document published next to each model blob.
type Manifest struct {
	Type             string      `json:"type"`
	WakeWord         string      `json:"wake_word"`
	Author           string      `json:"author"`
	Website          string      `json:"website"`
	Model            string      `json:"model"`
	TrainedLanguages []string    `json:"trained_languages"`
	Version          int         `json:"version"`
	Micro            MicroConfig `json:"micro"`
}

type MicroConfig struct {
	ProbabilityCutoff     float64 `json:"probability_cutoff"`
	SlidingWindowSize     int     `json:"sliding_window_size"`
	FeatureStepSize       int     `json:"feature_step_size"`
	TensorArenaSize       int     `json:"tensor_arena_size"`
	MinimumESPHomeVersion string  `json:"minimum_esphome_version"`
}

// NewManifest builds the manifest for a trained model. phrase is the
// original free-text wake word, id the canonical id the artifacts are
// named by.
func NewManifest(phrase, id, lang string) Manifest {
	return Manifest{
		Type:             "micro",
		WakeWord:         phrase,
		Author:           "master phooey",
		Website:          "https://github.com/MasterPhooey/MicroWakeWord-Trainer-Docker",
		Model:            id + ".tflite",
		TrainedLanguages: []string{lang},
		Version:          manifestVersion,
		Micro: MicroConfig{
			ProbabilityCutoff:     probabilityCutoff,
			SlidingWindowSize:     slidingWindowSize,
			FeatureStepSize:       featureStepSize,
			TensorArenaSize:       tensorArenaSize,
			MinimumESPHomeVersion: minimumESPHomeVersion,
		},
	}
}

// Encode renders the manifest the way the packaging script does:
// two-space indented JSON.
func (m Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
