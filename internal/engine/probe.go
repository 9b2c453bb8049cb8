package engine

import (
	"bytes"
	"context"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"blockpack/internal/pkgerr"
)

const osReleasePath = "/etc/os-release"

// ProbeOS classifies the Linux distribution of the base image by running an
// ephemeral container that emits the os-release file. Exactly one container
// is created and it is removed regardless of outcome.
func (e *Engine) ProbeOS(ctx context.Context, ref string) (Distribution, error) {
	e.log.Info().Str("image", ref).Msg("Probing operating system of base image")

	resp, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image:      ref,
		Entrypoint: []string{"cat", osReleasePath},
	}, nil, nil, nil, "")
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", pkgerr.Wrap(pkgerr.ImageNotFound, err, "base image %s does not exist locally", ref)
		}
		return "", pkgerr.Wrap(pkgerr.EngineFault, err, "failed to create probe container")
	}
	defer func() {
		// Removal must happen even when ctx is already done.
		if err := e.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			e.log.Warn().Err(err).Str("container", resp.ID).Msg("Failed to remove probe container")
		}
	}()

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", pkgerr.Wrap(pkgerr.EngineFault, err, "failed to start probe container")
	}

	statusCh, errCh := e.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return "", pkgerr.Wrap(pkgerr.EngineFault, err, "failed waiting for probe container")
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return "", pkgerr.New(pkgerr.ContainerFault, "probe container exited with non-zero status %d", status.StatusCode)
		}
	}

	logs, err := e.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", pkgerr.Wrap(pkgerr.EngineFault, err, "failed to read probe container output")
	}
	defer logs.Close()

	var stdout bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, io.Discard, logs); err != nil {
		return "", pkgerr.Wrap(pkgerr.EngineFault, err, "failed to demux probe container output")
	}

	dist, err := classifyOSRelease(&stdout)
	if err != nil {
		return "", err
	}

	e.log.Info().Str("image", ref).Str("distribution", string(dist)).Msg("Base image distribution detected")
	return dist, nil
}
