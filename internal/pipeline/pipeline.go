// Package pipeline sequences the packaging steps end to end.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"blockpack/internal/config"
	"blockpack/internal/engine"
	"blockpack/internal/manifest"
	"blockpack/internal/templates"
)

// Acquirer ensures the base image is present in the local store.
type Acquirer interface {
	EnsureImage(ctx context.Context, ref string) error
}

// Prober classifies the base image's Linux distribution.
type Prober interface {
	ProbeOS(ctx context.Context, ref string) (engine.Distribution, error)
}

// ImageBuilder builds the wrapped image from the materialized context.
type ImageBuilder interface {
	BuildImage(ctx context.Context, dcfg config.DockerConfig, contextDir string) error
}

// ManifestService builds, validates and persists the platform manifest.
type ManifestService interface {
	Build(cfg config.ManifestConfig) (*manifest.Manifest, error)
	Persist(m *manifest.Manifest, dir string) error
}

// Materializer writes the build-context template files into a directory.
type Materializer func(dir string, dist engine.Distribution) error

var (
	_ Acquirer        = (*engine.Engine)(nil)
	_ Prober          = (*engine.Engine)(nil)
	_ ImageBuilder    = (*engine.Engine)(nil)
	_ ManifestService = (*manifest.Builder)(nil)
	_ Materializer    = templates.Materialize
)

// Packager runs the packaging pipeline. The pipeline is strictly
// sequential; concurrency lives inside the engine's log-stream workers.
type Packager struct {
	acquirer    Acquirer
	prober      Prober
	builder     ImageBuilder
	manifests   ManifestService
	materialize Materializer
	log         zerolog.Logger
}

// New wires a Packager from the engine and the manifest builder.
func New(eng *engine.Engine, manifests *manifest.Builder, logger zerolog.Logger) *Packager {
	return &Packager{
		acquirer:    eng,
		prober:      eng,
		builder:     eng,
		manifests:   manifests,
		materialize: templates.Materialize,
		log:         logger,
	}
}

// Run packages the image described by the config file into destination.
// Steps run in a fixed order; the first failure aborts the run and is
// returned unchanged. Effects of already-completed steps (output directory,
// pulled image, persisted manifest) are deliberately left in place.
func (p *Packager) Run(ctx context.Context, configPath, destination string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		p.log.Error().Err(err).Str("config", configPath).Msg("Configuration is invalid")
		return err
	}
	p.log.Info().Str("config", configPath).Msg("Configuration file is valid")

	baseImage := cfg.Docker.Input.BaseImage

	if err := p.acquirer.EnsureImage(ctx, baseImage); err != nil {
		p.log.Error().Err(err).Str("image", baseImage).Msg("Failed to acquire base image")
		return err
	}

	dist, err := p.prober.ProbeOS(ctx, baseImage)
	if err != nil {
		p.log.Error().Err(err).Str("image", baseImage).Msg("Failed to classify base image operating system")
		return err
	}

	// Idempotent: a pre-existing output directory is not an error.
	if err := os.MkdirAll(destination, 0755); err != nil {
		p.log.Error().Err(err).Str("dir", destination).Msg("Failed to create output directory")
		return fmt.Errorf("failed to create output directory %s: %w", destination, err)
	}

	m, err := p.manifests.Build(cfg.Manifest)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to build manifest")
		return err
	}
	if err := p.manifests.Persist(m, destination); err != nil {
		p.log.Error().Err(err).Str("dir", destination).Msg("Failed to persist manifest")
		return err
	}

	if err := p.materialize(destination, dist); err != nil {
		p.log.Error().Err(err).Str("dir", destination).Msg("Failed to materialize template files")
		return err
	}
	p.log.Info().Str("dir", destination).Msg("Template files copied to output directory")

	if err := p.builder.BuildImage(ctx, cfg.Docker, destination); err != nil {
		p.log.Error().Err(err).Str("tag", cfg.Docker.Output.Tag).Msg("Failed to build image")
		return err
	}

	p.log.Info().Str("tag", cfg.Docker.Output.Tag).Msg("Packaging of the application succeeded")
	return nil
}
