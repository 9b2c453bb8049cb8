package manifest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockpack/internal/config"
	"blockpack/internal/pkgerr"
)

func validManifestConfig() config.ManifestConfig {
	return config.ManifestConfig{
		Name:        "object-detection",
		DisplayName: "Object Detection",
		Description: "Detects objects in AOI-clipped tiles.",
		Type:        "processing",
		Tags:        []string{"detection"},
		Parameters:  map[string]any{"intersects": map[string]any{"type": "geometry"}},
		Machine:     "large",
		InputCapabilities: map[string]any{
			"raster": map[string]any{"up42_standard": map[string]any{"format": "GTiff"}},
		},
		OutputCapabilities: map[string]any{
			"vector": map[string]any{"up42_standard": map[string]any{"format": "GeoJSON"}},
		},
	}
}

func validationServer(t *testing.T, valid bool, errs []any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		resp := map[string]any{"data": map[string]any{"valid": valid, "errors": errs}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuild_Valid(t *testing.T) {
	srv := validationServer(t, true, nil)
	b := NewBuilder(srv.URL, zerolog.Nop())

	m, err := b.Build(validManifestConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, m.SpecificationVersion)
	assert.Equal(t, "object-detection", m.Name)
	assert.Equal(t, "processing", m.Type)
	assert.Equal(t, "large", m.Machine.Type)
}

func TestBuild_LocalSchemaViolation(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	b := NewBuilder(srv.URL, zerolog.Nop())

	cfg := validManifestConfig()
	cfg.Type = "streaming"

	_, err := b.Build(cfg)
	require.Error(t, err)
	assert.True(t, pkgerr.IsKind(err, pkgerr.InvalidManifest))
	assert.False(t, called, "remote validation must not run after a local schema violation")
}

func TestBuild_RemoteRejection(t *testing.T) {
	srv := validationServer(t, false, []any{"machine.type is not allowed"})
	b := NewBuilder(srv.URL, zerolog.Nop())

	_, err := b.Build(validManifestConfig())
	require.Error(t, err)
	assert.True(t, pkgerr.IsKind(err, pkgerr.InvalidManifest))
	assert.Contains(t, err.Error(), "machine.type is not allowed")
}

func TestBuild_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := NewBuilder(srv.URL, zerolog.Nop())

	_, err := b.Build(validManifestConfig())
	require.Error(t, err)
	assert.True(t, pkgerr.IsKind(err, pkgerr.RequestFailed))
	assert.Contains(t, err.Error(), "502")
}

func TestBuild_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	b := NewBuilder(srv.URL, zerolog.Nop())

	_, err := b.Build(validManifestConfig())
	require.Error(t, err)
	assert.True(t, pkgerr.IsKind(err, pkgerr.RequestFailed))
	assert.Contains(t, err.Error(), "connection error")
}

func TestBuild_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	b := NewBuilder(srv.URL, zerolog.Nop())
	b.client.Timeout = 20 * time.Millisecond

	_, err := b.Build(validManifestConfig())
	require.Error(t, err)
	assert.True(t, pkgerr.IsKind(err, pkgerr.RequestFailed))
	assert.Contains(t, err.Error(), "timeout")
}

func TestPersist_ByteIdenticalAcrossRuns(t *testing.T) {
	srv := validationServer(t, true, nil)
	b := NewBuilder(srv.URL, zerolog.Nop())

	dir1 := t.TempDir()
	dir2 := t.TempDir()

	for _, dir := range []string{dir1, dir2} {
		m, err := b.Build(validManifestConfig())
		require.NoError(t, err)
		require.NoError(t, b.Persist(m, dir))
	}

	first, err := os.ReadFile(filepath.Join(dir1, Filename))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir2, Filename))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, string(first), "\n")
}

func TestPersist_WriteFailurePropagates(t *testing.T) {
	b := NewBuilder("http://unused", zerolog.Nop())
	m := &Manifest{SpecificationVersion: 2, Name: "x", DisplayName: "x", Type: "data", Machine: Machine{Type: "small"}}

	err := b.Persist(m, "/nonexistent/output/dir")
	require.Error(t, err)
	assert.Equal(t, pkgerr.Kind(""), pkgerr.KindOf(err), "I/O faults carry no taxonomy kind")
}
