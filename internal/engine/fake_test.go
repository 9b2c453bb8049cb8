package engine

import (
	"context"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

// fakeAPI implements engineAPI with per-call overrides. Unset calls succeed
// with zero values.
type fakeAPI struct {
	inspect func(ref string) (types.ImageInspect, error)
	pull    func(ref string) (io.ReadCloser, error)
	build   func(options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	create  func(cfg *container.Config) (container.CreateResponse, error)
	wait    func(id string) (container.WaitResponse, error)
	logs    func(id string) (io.ReadCloser, error)

	pulled            []string
	removed           []string
	removedContainers []string
}

func newFakeEngine(api *fakeAPI) *Engine {
	return &Engine{cli: api, log: zerolog.Nop()}
}

func (f *fakeAPI) ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error) {
	if f.inspect == nil {
		return types.ImageInspect{}, nil, nil
	}
	img, err := f.inspect(imageID)
	return img, nil, err
}

func (f *fakeAPI) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, refStr)
	if f.pull == nil {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return f.pull(refStr)
}

func (f *fakeAPI) ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error) {
	f.removed = append(f.removed, imageID)
	return nil, nil
}

func (f *fakeAPI) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	if f.build == nil {
		return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return f.build(options)
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	if f.create == nil {
		return container.CreateResponse{ID: "probe-1"}, nil
	}
	return f.create(config)
}

func (f *fakeAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return nil
}

func (f *fakeAPI) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.wait == nil {
		statusCh <- container.WaitResponse{}
		return statusCh, errCh
	}
	resp, err := f.wait(containerID)
	if err != nil {
		errCh <- err
	} else {
		statusCh <- resp
	}
	return statusCh, errCh
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	if f.logs == nil {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return f.logs(containerID)
}

func (f *fakeAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.removedContainers = append(f.removedContainers, containerID)
	return nil
}

func (f *fakeAPI) Close() error {
	return nil
}
