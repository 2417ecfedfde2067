package plugin

import "context"

// ConfigQuestion describes a single configuration prompt for a producer.
type ConfigQuestion struct {
	Key    string
	Prompt string
	Type   string // "text"
}

// ArtifactProducer is the interface every sentinel analysis plugin implements.
type ArtifactProducer interface {
	// Name returns the producer's canonical short identifier (e.g. "crewai").
	Name() string

	// Configure returns the questions the producer needs answered before it can run.
	Configure() ([]ConfigQuestion, error)

	// Analyze runs the producer using the provided config key/value pairs,
	// writing its artifacts into outputDir.
	Analyze(ctx context.Context, config map[string]string, outputDir string) error
}
