// Package manifest assembles, validates and persists the platform manifest
// describing the packaged algorithm.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"blockpack/internal/config"
	"blockpack/internal/pkgerr"
)

// SpecificationVersion is stamped into every manifest.
const SpecificationVersion = 2

// Filename is the manifest file written into the output directory.
const Filename = "UP42Manifest.json"

// DefaultEndpoint is the platform's remote manifest validation endpoint.
const DefaultEndpoint = "https://api.up42.com/validate-schema/block"

// Manifest is the versioned platform record. Field order is fixed so the
// marshaled JSON is byte-identical across runs of the same config.
type Manifest struct {
	SpecificationVersion int            `json:"_up42_specification_version"`
	Name                 string         `json:"name"`
	Type                 string         `json:"type"`
	Tags                 []string       `json:"tags"`
	DisplayName          string         `json:"display_name"`
	Description          string         `json:"description"`
	Parameters           map[string]any `json:"parameters"`
	Machine              Machine        `json:"machine"`
	InputCapabilities    map[string]any `json:"input_capabilities"`
	OutputCapabilities   map[string]any `json:"output_capabilities"`
}

// Machine declares the compute tier the block runs on.
type Machine struct {
	Type string `json:"type"`
}

// Builder produces validated manifests.
type Builder struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewBuilder creates a Builder validating against endpoint. An empty endpoint
// selects the platform default.
func NewBuilder(endpoint string, logger zerolog.Logger) *Builder {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Builder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logger,
	}
}

// Build projects the manifest config into a manifest, validates it locally
// and then against the platform endpoint. Only a manifest that passed both
// is returned.
func (b *Builder) Build(cfg config.ManifestConfig) (*Manifest, error) {
	m := &Manifest{
		SpecificationVersion: SpecificationVersion,
		Name:                 cfg.Name,
		Type:                 cfg.Type,
		Tags:                 cfg.Tags,
		DisplayName:          cfg.DisplayName,
		Description:          cfg.Description,
		Parameters:           cfg.Parameters,
		Machine:              Machine{Type: cfg.Machine},
		InputCapabilities:    cfg.InputCapabilities,
		OutputCapabilities:   cfg.OutputCapabilities,
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	if err := b.validateRemote(m); err != nil {
		return nil, err
	}

	b.log.Info().Str("name", m.Name).Str("type", m.Type).Msg("Manifest is valid")
	return m, nil
}

// validate re-checks the projected record against the manifest schema. The
// config layer already constrains its inputs, but the manifest contract is
// owned here.
func (m *Manifest) validate() error {
	if m.SpecificationVersion != SpecificationVersion {
		return pkgerr.New(pkgerr.InvalidManifest, "_up42_specification_version must be %d, got %d", SpecificationVersion, m.SpecificationVersion)
	}
	if m.Name == "" {
		return pkgerr.New(pkgerr.InvalidManifest, "name must be a non-empty string")
	}
	if m.DisplayName == "" {
		return pkgerr.New(pkgerr.InvalidManifest, "display_name must be a non-empty string")
	}
	if m.Type != "data" && m.Type != "processing" {
		return pkgerr.New(pkgerr.InvalidManifest, "type must be data or processing, got %q", m.Type)
	}
	if !contains(config.MachineTypes, m.Machine.Type) {
		return pkgerr.New(pkgerr.InvalidManifest, "machine.type must be one of %v, got %q", config.MachineTypes, m.Machine.Type)
	}
	return nil
}

// validationResponse is the platform's answer envelope.
type validationResponse struct {
	Data struct {
		Valid  bool  `json:"valid"`
		Errors []any `json:"errors"`
	} `json:"data"`
}

func (b *Builder) validateRemote(m *Manifest) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return pkgerr.Wrap(pkgerr.InvalidManifest, err, "unable to serialize manifest")
	}

	b.log.Debug().Str("endpoint", b.endpoint).Msg("Validating manifest against platform")

	resp, err := b.client.Post(b.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerr.New(pkgerr.RequestFailed, "http error: validation endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerr.Wrap(pkgerr.RequestFailed, err, "unable to read validation response")
	}

	var result validationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return pkgerr.Wrap(pkgerr.RequestFailed, err, "unable to decode validation response")
	}

	if !result.Data.Valid {
		return pkgerr.New(pkgerr.InvalidManifest, "platform rejected manifest: %v", result.Data.Errors)
	}

	return nil
}

// classifyTransportError subdivides transport faults so the user can tell a
// timeout from a refused connection.
func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return pkgerr.Wrap(pkgerr.RequestFailed, err, "timeout reaching validation endpoint")
		}
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return pkgerr.Wrap(pkgerr.RequestFailed, err, "connection error reaching validation endpoint")
		}
	}
	return pkgerr.Wrap(pkgerr.RequestFailed, err, "unexpected error reaching validation endpoint")
}

// Persist writes the manifest into dir as a single JSON object. Write
// failures are I/O faults propagated unchanged.
func (b *Builder) Persist(m *Manifest, dir string) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	path := filepath.Join(dir, Filename)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("failed to write manifest to %s: %w", path, err)
	}

	b.log.Info().Str("path", path).Msg("Manifest saved")
	return nil
}

func contains(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
