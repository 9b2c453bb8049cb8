package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestContext creates a test context with timeout
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// WriteConfigFile writes content to a config file under a temp dir and
// returns its path.
func WriteConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// LoadFixtureConfig returns a packaging config fixture by name.
func LoadFixtureConfig(t *testing.T, filename string) string {
	content := `docker:
  input:
    base_image: "debian:bullseye"
    exposed_port: 8080
    type: objectDetectionAOI
    routes:
      healthcheck: /healthcheck
      process: /predict
    resolution: 0.5
  output:
    tag: "blocks/object-detection:latest"
    workdir: /opt/app
manifest:
  name: object-detection
  display_name: Object Detection
  description: Detects objects in AOI-clipped tiles.
  type: processing
  tags:
    - detection
    - aerial
  parameters:
    intersects:
      type: geometry
  machine: large
  input_capabilities:
    raster:
      up42_standard:
        format: GTiff
  output_capabilities:
    vector:
      up42_standard:
        format: GeoJSON
`

	switch filename {
	case "minimal.yaml":
		return `docker:
  input:
    base_image: "ubuntu:22.04"
    exposed_port: 8080
    type: changeDetectionAOI
    routes:
      healthcheck: /health
      process: /process
  output:
    tag: "blocks/change-detection:v1"
manifest:
  name: change-detection
  display_name: Change Detection
  description: ""
  type: data
  machine: small
`
	case "invalid.yaml":
		return `docker:
  input: [not, a, mapping
`
	default:
		return content
	}
}
