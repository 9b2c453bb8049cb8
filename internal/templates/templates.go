// Package templates holds the embedded build-context files and materializes
// them into the output directory.
package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"blockpack/internal/engine"
)

//go:embed files
var templateFS embed.FS

// Materialize writes the wrapper script, the run command script and the
// Dockerfile variant matching the distribution into dir. Existing files are
// overwritten.
func Materialize(dir string, dist engine.Distribution) error {
	if err := copyTemplate("files/run.py", filepath.Join(dir, "run.py")); err != nil {
		return err
	}
	if err := copyTemplate("files/run_command.sh", filepath.Join(dir, "run_command.sh")); err != nil {
		return err
	}

	var variant string
	switch dist {
	case engine.Debian, engine.Ubuntu:
		variant = "files/Dockerfiles/debian.Dockerfile"
	case engine.CentOS:
		variant = "files/Dockerfiles/centos.Dockerfile"
	default:
		return fmt.Errorf("no Dockerfile template for operating system: %q", dist)
	}

	return copyTemplate(variant, filepath.Join(dir, "Dockerfile"))
}

func copyTemplate(name, dest string) error {
	content, err := templateFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", name, err)
	}
	if err := os.WriteFile(dest, content, 0644); err != nil {
		return fmt.Errorf("failed to write template to %s: %w", dest, err)
	}
	return nil
}
