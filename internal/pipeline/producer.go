package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"sentinel/internal/plugin"
	"sentinel/internal/settings"
)

// ProducerName is the plugin key of the multi-agent analyzer.
const ProducerName = "crewai"

// Producer implements plugin.ArtifactProducer for multi-agent source trees.
// Settings are loaded from the configured path's .sentinel/settings.yaml.
type Producer struct {
	Logger *slog.Logger
	// Done, when set, is called with every finished result.
	Done func(path string, res *Result)
}

var _ plugin.ArtifactProducer = (*Producer)(nil)

func (p *Producer) Name() string { return ProducerName }

func (p *Producer) Configure() ([]plugin.ConfigQuestion, error) {
	return []plugin.ConfigQuestion{
		{Key: "path", Prompt: "Path to the multi-agent source tree", Type: "text"},
	}, nil
}

// Analyze runs the pipeline over config["path"] and writes inventory.json,
// graph.json, analysis.json and vault/ into outputDir. Done receives the
// absolute path.
func (p *Producer) Analyze(ctx context.Context, config map[string]string, outputDir string) error {
	if config["path"] == "" {
		return fmt.Errorf("%s: missing required config key 'path'", ProducerName)
	}
	path, err := filepath.Abs(config["path"])
	if err != nil {
		return fmt.Errorf("%s: %w", ProducerName, err)
	}
	s, err := settings.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", ProducerName, err)
	}
	res, err := Run(ctx, path, Options{Settings: s, Logger: p.Logger})
	if err != nil {
		return fmt.Errorf("%s: %w", ProducerName, err)
	}
	if err := res.Write(ArtifactsIn(outputDir)); err != nil {
		return fmt.Errorf("%s: %w", ProducerName, err)
	}
	if p.Done != nil {
		p.Done(path, res)
	}
	return nil
}
