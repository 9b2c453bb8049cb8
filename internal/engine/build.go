package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/moby/go-archive"

	"blockpack/internal/config"
	"blockpack/internal/manifest"
	"blockpack/internal/pkgerr"
)

// BuildImage builds the wrapped image from the materialized context in
// contextDir, tagged with the configured output tag. The build log stream
// is consumed on a dedicated worker; success is determined exclusively by
// the presence of the success marker in that stream. On failure any image
// created under the target tag is removed best-effort.
func (e *Engine) BuildImage(ctx context.Context, dcfg config.DockerConfig, contextDir string) error {
	raw, err := os.ReadFile(filepath.Join(contextDir, manifest.Filename))
	if err != nil {
		return pkgerr.Wrap(pkgerr.BuildFailed, err, "unable to read persisted manifest")
	}
	if !json.Valid(raw) {
		return pkgerr.New(pkgerr.BuildFailed, "persisted manifest is not valid JSON")
	}

	// Inspect once; both derivations read the same image config.
	var imgCfg *container.Config
	if dcfg.Input.Command == "" || dcfg.Output.Workdir == "" {
		img, _, err := e.cli.ImageInspectWithRaw(ctx, dcfg.Input.BaseImage)
		if err != nil {
			return pkgerr.Wrap(pkgerr.BuildFailed, err, "unable to inspect base image %s", dcfg.Input.BaseImage)
		}
		imgCfg = img.Config
	}

	command, err := deriveRunCommand(dcfg.Input.Command, imgCfg)
	if err != nil {
		return err
	}
	e.log.Info().Str("command", command).Msg("Run command for the packaged application")

	workdir, err := deriveWorkdir(dcfg.Output.Workdir, imgCfg)
	if err != nil {
		return err
	}
	e.log.Info().Str("workdir", workdir).Msg("Working directory for the packaged application")

	buildArgs := map[string]*string{
		"BASE_IMAGE":        ptr(dcfg.Input.BaseImage),
		"MANIFEST":          ptr(string(raw)),
		"PORT":              ptr(strconv.Itoa(dcfg.Input.ExposedPort)),
		"PROCESS_ROUTE":     ptr(dcfg.Input.Routes.Process),
		"HEALTHCHECK_ROUTE": ptr(dcfg.Input.Routes.Healthcheck),
		"RUN_COMMAND":       ptr(command),
		"TYPE":              ptr(dcfg.Input.Type),
		"WORKDIR":           ptr(workdir),
		"RESOLUTION":        ptr(strconv.FormatFloat(dcfg.Input.Resolution, 'f', -1, 64)),
	}

	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return pkgerr.Wrap(pkgerr.BuildFailed, err, "unable to create build context")
	}
	defer buildCtx.Close()

	tag := dcfg.Output.Tag
	e.log.Info().Str("tag", tag).Str("context", contextDir).Msg("Building image")

	resp, err := e.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
		BuildArgs:  buildArgs,
	})
	if err != nil {
		return pkgerr.Wrap(pkgerr.BuildFailed, err, "image build of %s failed", tag)
	}
	defer resp.Body.Close()

	streamer := newBuildStreamer(resp.Body, e.log)
	streamer.Start()
	streamer.Wait()

	if !streamer.Succeeded() {
		e.rollbackTag(ctx, tag)
		return pkgerr.New(pkgerr.BuildFailed, "the build of image %s failed, see build log for details", tag)
	}

	e.log.Info().Str("tag", tag).Msg("Image build succeeded")
	return nil
}

// deriveRunCommand returns the configured override, or reconstructs the run
// command from the image's Cmd, falling back to Entrypoint. An image
// configured with neither has no runnable process to wrap.
func deriveRunCommand(override string, imgCfg *container.Config) (string, error) {
	if override != "" {
		return override, nil
	}
	if imgCfg == nil {
		return "", pkgerr.New(pkgerr.BuildFailed, "unable to fetch CMD and ENTRYPOINT from base image configuration")
	}

	command := []string(imgCfg.Cmd)
	if len(command) == 0 {
		command = []string(imgCfg.Entrypoint)
	}
	if len(command) == 0 {
		return "", pkgerr.New(pkgerr.BuildFailed, "unable to fetch CMD and ENTRYPOINT from base image configuration")
	}

	return strings.Join(command, " "), nil
}

// deriveWorkdir returns the configured override, or the image's working
// directory, defaulting to root when unset.
func deriveWorkdir(override string, imgCfg *container.Config) (string, error) {
	if override != "" {
		return override, nil
	}
	if imgCfg == nil {
		return "", pkgerr.New(pkgerr.BuildFailed, "unable to fetch WORKDIR from base image configuration")
	}

	if imgCfg.WorkingDir == "" {
		return "/", nil
	}
	return imgCfg.WorkingDir, nil
}

// rollbackTag removes a partially-created image under tag. Best-effort:
// absence is fine and other failures only warn.
func (e *Engine) rollbackTag(ctx context.Context, tag string) {
	if err := e.RemoveImage(ctx, tag); err != nil {
		e.log.Warn().Err(err).Str("tag", tag).Msg("Failed to remove partially-built image")
	}
}

func ptr(s string) *string {
	return &s
}
