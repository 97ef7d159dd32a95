package knight

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"
)

// Features selects the optional parts of the language. It is resolved once
// and handed to every component; nothing re-reads it while running.
type Features struct {
	Floats         bool `toml:"floats" yaml:"floats" cbor:"1,keyasint,omitempty"`
	CheckVariables bool `toml:"check-variables" yaml:"check-variables" cbor:"2,keyasint,omitempty"`
	CheckParens    bool `toml:"check-parens" yaml:"check-parens" cbor:"3,keyasint,omitempty"`
	Extensions     bool `toml:"extensions" yaml:"extensions" cbor:"4,keyasint,omitempty"`
	CustomTypes    bool `toml:"custom-types" yaml:"custom-types" cbor:"5,keyasint,omitempty"`
	Compliance     bool `toml:"compliance" yaml:"compliance" cbor:"6,keyasint,omitempty"`
	Stacktrace     bool `toml:"stacktrace" yaml:"stacktrace" cbor:"7,keyasint,omitempty"`
	Multithreaded  bool `toml:"multithreaded" yaml:"multithreaded" cbor:"8,keyasint,omitempty"`
}

var featureNames = map[string]func(*Features) *bool{
	"floats":          func(f *Features) *bool { return &f.Floats },
	"check-variables": func(f *Features) *bool { return &f.CheckVariables },
	"check-parens":    func(f *Features) *bool { return &f.CheckParens },
	"extensions":      func(f *Features) *bool { return &f.Extensions },
	"custom-types":    func(f *Features) *bool { return &f.CustomTypes },
	"compliance":      func(f *Features) *bool { return &f.Compliance },
	"stacktrace":      func(f *Features) *bool { return &f.Stacktrace },
	"multithreaded":   func(f *Features) *bool { return &f.Multithreaded },
}

// FeatureNames lists the recognised feature switches in sorted order.
func FeatureNames() []string {
	names := make([]string, 0, len(featureNames))
	for name := range featureNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFeatures reads a comma separated list such as "floats,stacktrace".
func ParseFeatures(list string) (Features, error) {
	var f Features
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		field, ok := featureNames[name]
		if !ok {
			return f, fmt.Errorf("knight: unknown feature %q", name)
		}
		*field(&f) = true
	}
	return f.Resolve(), nil
}

// Resolve applies the implications between switches.
func (f Features) Resolve() Features {
	if f.CustomTypes {
		f.Extensions = true
	}
	return f
}

// Merge enables every switch that is on in either set.
func (f Features) Merge(other Features) Features {
	for _, field := range featureNames {
		if *field(&other) {
			*field(&f) = true
		}
	}
	return f.Resolve()
}

func (f Features) String() string {
	var on []string
	for _, name := range FeatureNames() {
		if *featureNames[name](&f) {
			on = append(on, name)
		}
	}
	return strings.Join(on, ",")
}

type RunConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	Seed      *int64 `toml:"seed" yaml:"seed"`
	History   string `toml:"history" yaml:"history"`
}

// Config is the contents of a knight.toml or knight.yaml file.
type Config struct {
	Features Features  `toml:"features" yaml:"features"`
	Run      RunConfig `toml:"run" yaml:"run"`

	// Path is the file the config was loaded from.
	Path string `toml:"-" yaml:"-"`
}

var configFileNames = []string{"knight.toml", "knight.yaml", "knight.yml"}

// LoadConfig parses a TOML or YAML config file, chosen by extension.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knight: cannot read %s: %w", path, err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("knight: parse error in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("knight: parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("knight: unsupported config format %q", filepath.Ext(path))
	}

	cfg.Path = path
	cfg.Features = cfg.Features.Resolve()
	if cfg.Run.History == "" {
		cfg.Run.History = ".knight_history"
	}
	commonlog.GetLogger("knight.config").Infof("loaded %s (features: %s)", path, cfg.Features)
	return &cfg, nil
}

// FindConfig walks up from startDir looking for a config file. It returns
// nil without error when there is none.
func FindConfig(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		for _, name := range configFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadConfig(path)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}
