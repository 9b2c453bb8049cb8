package engine

import (
	"context"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"blockpack/internal/pkgerr"
)

// EnsureImage makes sure ref is present in the local store, pulling it if
// absent. The pull progress stream is consumed on a dedicated worker; this
// call blocks until the worker has fully drained it, then re-resolves the
// image from the store.
func (e *Engine) EnsureImage(ctx context.Context, ref string) error {
	e.log.Info().Str("image", ref).Msg("Checking if base image is already present")

	_, _, err := e.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		e.log.Info().Str("image", ref).Msg("Base image already present")
		return nil
	}
	if !client.IsErrNotFound(err) {
		return pkgerr.Wrap(pkgerr.ImagePullFailed, err, "failed to inspect base image %s", ref)
	}

	e.log.Info().Str("image", ref).Msg("Base image not present, pulling")
	if err := e.pullImage(ctx, ref); err != nil {
		return err
	}

	if _, _, err := e.cli.ImageInspectWithRaw(ctx, ref); err != nil {
		return pkgerr.Wrap(pkgerr.EngineFault, err, "image %s not resolvable after pull", ref)
	}

	e.log.Info().Str("image", ref).Msg("Image pull succeeded")
	return nil
}

func (e *Engine) pullImage(ctx context.Context, ref string) error {
	body, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return pkgerr.Wrap(pkgerr.ImagePullFailed, err, "image pull of %s failed", ref)
	}
	defer body.Close()

	streamer := newPullStreamer(body, e.log)
	streamer.Start()
	if err := streamer.Wait(); err != nil {
		return pkgerr.Wrap(pkgerr.ImagePullFailed, err, "image pull of %s failed", ref)
	}

	return nil
}

// RemoveImage removes ref from the local store. An absent image is not an
// error.
func (e *Engine) RemoveImage(ctx context.Context, ref string) error {
	_, err := e.cli.ImageRemove(ctx, ref, image.RemoveOptions{})
	if err != nil && !client.IsErrNotFound(err) {
		return pkgerr.Wrap(pkgerr.EngineFault, err, "failed to remove image %s", ref)
	}
	return nil
}
