package shade

import (
	"fmt"
	"io/fs"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the compiler config picked up by the engine.
const ConfigFileName = "shade.toml"

// Options configures compilation.
type Options struct {
	// GLSLVersion is emitted as the #version line of every stage.
	GLSLVersion string

	// EntryPoint is the stage function whose body may hold @provide,
	// @yield and @write.
	EntryPoint string

	// Ambient is the value a bare @yield; threads through the chain.
	Ambient map[StageKind]string

	// Structs holds the known struct shapes.
	Structs *StructRegistry
}

// DefaultOptions returns the desktop GL 3.3 defaults.
func DefaultOptions() Options {
	return Options{
		GLSLVersion: "330 core",
		EntryPoint:  "main",
		Ambient: map[StageKind]string{
			StageVertex:   "gl_Position",
			StageGeometry: "gl_Position",
			StageFragment: "color",
		},
		Structs: DefaultStructs(),
	}
}

// Config is the on-disk form of Options.
//
// Example shade.toml:
//
//	glsl_version = "300 es"
//	entry_point = "main"
//
//	[ambient]
//	fragment = "fragColor"
//
//	[light_limits]
//	PointLight = 8
type Config struct {
	GLSLVersion string            `toml:"glsl_version"`
	EntryPoint  string            `toml:"entry_point"`
	Ambient     map[string]string `toml:"ambient"`
	LightLimits map[string]int    `toml:"light_limits"`
}

// ParseConfig decodes a TOML config document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}

// LoadConfig reads the config at name from fsys and applies it over
// DefaultOptions.
func LoadConfig(fsys fs.FS, name string) (Options, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Options{}, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Options{}, err
	}
	return cfg.Apply(DefaultOptions())
}

// Apply overrides opts with the fields set in c. Light limits are applied
// to a copy of the struct registry.
func (c *Config) Apply(opts Options) (Options, error) {
	if c.GLSLVersion != "" {
		opts.GLSLVersion = c.GLSLVersion
	}
	if c.EntryPoint != "" {
		opts.EntryPoint = c.EntryPoint
	}
	if len(c.Ambient) > 0 {
		ambient := make(map[StageKind]string, len(opts.Ambient))
		for k, v := range opts.Ambient {
			ambient[k] = v
		}
		for stage, value := range c.Ambient {
			kind, ok := ParseStageKind(stage)
			if !ok {
				return Options{}, fmt.Errorf("%s: unknown stage %q in [ambient]", ConfigFileName, stage)
			}
			ambient[kind] = value
		}
		opts.Ambient = ambient
	}
	if len(c.LightLimits) > 0 {
		reg := opts.Structs.Clone()
		for name, limit := range c.LightLimits {
			if err := reg.SetLimit(name, limit); err != nil {
				return Options{}, fmt.Errorf("%s: %w", ConfigFileName, err)
			}
		}
		opts.Structs = reg
	}
	return opts, nil
}

func (o *Options) withDefaults() {
	def := DefaultOptions()
	if o.GLSLVersion == "" {
		o.GLSLVersion = def.GLSLVersion
	}
	if o.EntryPoint == "" {
		o.EntryPoint = def.EntryPoint
	}
	if o.Ambient == nil {
		o.Ambient = def.Ambient
	}
	if o.Structs == nil {
		o.Structs = def.Structs
	}
}
