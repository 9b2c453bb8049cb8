package config

import (
	"fmt"

	"github.com/distribution/reference"
	"github.com/spf13/viper"

	"blockpack/internal/pkgerr"
)

// AlgorithmTypes is the closed set of supported algorithm types.
var AlgorithmTypes = []string{"objectDetectionAOI", "changeDetectionAOI"}

// BlockTypes is the closed set of manifest block types.
var BlockTypes = []string{"data", "processing"}

// MachineTypes is the closed set of platform compute tiers.
var MachineTypes = []string{"small", "medium", "large", "xlarge", "gpu_nvidia_tesla_k80"}

// Config is the parsed packaging configuration. Both sections must satisfy
// their schemas before any image operation begins.
type Config struct {
	Docker   DockerConfig   `mapstructure:"docker"`
	Manifest ManifestConfig `mapstructure:"manifest"`
}

// DockerConfig holds the build/runtime parameters of the image being wrapped.
type DockerConfig struct {
	Input  DockerInput  `mapstructure:"input"`
	Output DockerOutput `mapstructure:"output"`
}

type DockerInput struct {
	BaseImage   string  `mapstructure:"base_image"`
	ExposedPort int     `mapstructure:"exposed_port"`
	Type        string  `mapstructure:"type"`
	Routes      Routes  `mapstructure:"routes"`
	Command     string  `mapstructure:"command"`
	Resolution  float64 `mapstructure:"resolution"`
}

type Routes struct {
	Healthcheck string `mapstructure:"healthcheck"`
	Process     string `mapstructure:"process"`
}

type DockerOutput struct {
	Tag     string `mapstructure:"tag"`
	Workdir string `mapstructure:"workdir"`
}

// ManifestConfig holds the descriptive metadata projected into the manifest.
type ManifestConfig struct {
	Name               string         `mapstructure:"name"`
	DisplayName        string         `mapstructure:"display_name"`
	Description        string         `mapstructure:"description"`
	Type               string         `mapstructure:"type"`
	Tags               []string       `mapstructure:"tags"`
	Parameters         map[string]any `mapstructure:"parameters"`
	Machine            string         `mapstructure:"machine"`
	InputCapabilities  map[string]any `mapstructure:"input_capabilities"`
	OutputCapabilities map[string]any `mapstructure:"output_capabilities"`
}

// Load reads and validates the packaging config file at path. Parse failures
// and the first violated constraint are both reported as InvalidConfig.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, pkgerr.Wrap(pkgerr.InvalidConfig, err, "unable to read config file %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pkgerr.Wrap(pkgerr.InvalidConfig, err, "unable to decode config file %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks both sections against their schemas. It stops at the first
// violated constraint; rejection of any invalid document is the contract,
// exhaustive reporting is not.
func (c *Config) Validate() error {
	if err := c.Docker.validate(); err != nil {
		return err
	}
	return c.Manifest.validate()
}

func (d *DockerConfig) validate() error {
	in := d.Input

	if in.BaseImage == "" {
		return pkgerr.New(pkgerr.InvalidConfig, "docker.input.base_image must be a non-empty string")
	}
	if _, err := reference.ParseNormalizedNamed(in.BaseImage); err != nil {
		return pkgerr.Wrap(pkgerr.InvalidConfig, err, "docker.input.base_image %q is not a valid image reference", in.BaseImage)
	}
	if in.ExposedPort < 1 || in.ExposedPort > 65535 {
		return pkgerr.New(pkgerr.InvalidConfig, "docker.input.exposed_port must be a port number, got %d", in.ExposedPort)
	}
	if !contains(AlgorithmTypes, in.Type) {
		return pkgerr.New(pkgerr.InvalidConfig, "docker.input.type must be one of %v, got %q", AlgorithmTypes, in.Type)
	}
	if in.Routes.Healthcheck == "" {
		return pkgerr.New(pkgerr.InvalidConfig, "docker.input.routes.healthcheck must be a non-empty string")
	}
	if in.Routes.Process == "" {
		return pkgerr.New(pkgerr.InvalidConfig, "docker.input.routes.process must be a non-empty string")
	}
	// A zero resolution is indistinguishable from the field being absent,
	// so only negative values can be rejected here.
	if in.Resolution < 0 {
		return pkgerr.New(pkgerr.InvalidConfig, "docker.input.resolution must be positive, got %v", in.Resolution)
	}

	if d.Output.Tag == "" {
		return pkgerr.New(pkgerr.InvalidConfig, "docker.output.tag must be a non-empty string")
	}
	if _, err := reference.ParseNormalizedNamed(d.Output.Tag); err != nil {
		return pkgerr.Wrap(pkgerr.InvalidConfig, err, "docker.output.tag %q is not a valid image reference", d.Output.Tag)
	}

	return nil
}

func (m *ManifestConfig) validate() error {
	if m.Name == "" {
		return pkgerr.New(pkgerr.InvalidConfig, "manifest.name must be a non-empty string")
	}
	if m.DisplayName == "" {
		return pkgerr.New(pkgerr.InvalidConfig, "manifest.display_name must be a non-empty string")
	}
	if !contains(BlockTypes, m.Type) {
		return pkgerr.New(pkgerr.InvalidConfig, "manifest.type must be one of %v, got %q", BlockTypes, m.Type)
	}
	if !contains(MachineTypes, m.Machine) {
		return pkgerr.New(pkgerr.InvalidConfig, "manifest.machine must be one of %v, got %q", MachineTypes, m.Machine)
	}
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

// String renders a short summary used by CLI output.
func (c *Config) String() string {
	return fmt.Sprintf("base_image=%s type=%s tag=%s", c.Docker.Input.BaseImage, c.Docker.Input.Type, c.Docker.Output.Tag)
}
