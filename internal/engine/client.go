// Package engine wraps the Docker Engine API for the packaging pipeline:
// image acquisition with pull-progress streaming, base image OS probing,
// and the final wrapped-image build.
package engine

import (
	"fmt"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

// Engine owns the Docker client handle for a pipeline run. It is created
// once at process start and passed by reference into each component.
type Engine struct {
	cli engineAPI
	log zerolog.Logger
}

// New creates an Engine from the environment (DOCKER_HOST et al.) with API
// version negotiation.
func New(logger zerolog.Logger) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &Engine{cli: cli, log: logger}, nil
}

// Close releases the underlying client connection.
func (e *Engine) Close() error {
	return e.cli.Close()
}
