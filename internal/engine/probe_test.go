package engine

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockpack/internal/pkgerr"
	"blockpack/internal/testutils"
)

func stdoutFramed(t *testing.T, content string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	w := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	return io.NopCloser(bytes.NewReader(buf.Bytes()))
}

func TestProbeOS_ClassifiesContainerOutput(t *testing.T) {
	api := &fakeAPI{
		logs: func(id string) (io.ReadCloser, error) {
			return stdoutFramed(t, "PRETTY_NAME=\"Debian GNU/Linux 11\"\nID=debian\n"), nil
		},
	}
	e := newFakeEngine(api)

	dist, err := e.ProbeOS(testutils.TestContext(t), "debian:bullseye")
	require.NoError(t, err)

	assert.Equal(t, Debian, dist)
	assert.Equal(t, []string{"probe-1"}, api.removedContainers)
}

func TestProbeOS_MissingImage(t *testing.T) {
	api := &fakeAPI{
		create: func(cfg *container.Config) (container.CreateResponse, error) {
			return container.CreateResponse{}, errdefs.NotFound(errors.New("no such image"))
		},
	}
	e := newFakeEngine(api)

	_, err := e.ProbeOS(testutils.TestContext(t), "debian:gone")
	require.Error(t, err)

	assert.True(t, pkgerr.IsKind(err, pkgerr.ImageNotFound))
}

func TestProbeOS_NonZeroExit(t *testing.T) {
	api := &fakeAPI{
		wait: func(id string) (container.WaitResponse, error) {
			return container.WaitResponse{StatusCode: 2}, nil
		},
	}
	e := newFakeEngine(api)

	_, err := e.ProbeOS(testutils.TestContext(t), "debian:bullseye")
	require.Error(t, err)

	assert.True(t, pkgerr.IsKind(err, pkgerr.ContainerFault))
	assert.Equal(t, []string{"probe-1"}, api.removedContainers, "probe container must be removed on failure too")
}

func TestProbeOS_UnsupportedDistributionIsTerminal(t *testing.T) {
	api := &fakeAPI{
		logs: func(id string) (io.ReadCloser, error) {
			return stdoutFramed(t, "ID=alpine\n"), nil
		},
	}
	e := newFakeEngine(api)

	_, err := e.ProbeOS(testutils.TestContext(t), "alpine:3.19")
	require.Error(t, err)

	// A plain error: the caller must not retry or fall back to a default.
	assert.Equal(t, pkgerr.Kind(""), pkgerr.KindOf(err))
	assert.Contains(t, err.Error(), "alpine")
}
