// Package config holds the Replay Engine's configuration knobs, loadable
// from TOML (github.com/naoina/toml) or YAML (gopkg.in/yaml.v3), so callers
// can check either format into a repo alongside the transactions they
// replay.
package config

import (
	"io"
	"os"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ReconciliationPolicy selects how strictly local effects must match
// on-chain effects.
type ReconciliationPolicy string

const (
	ReconciliationOff     ReconciliationPolicy = "off"
	ReconciliationLenient ReconciliationPolicy = "lenient"
	ReconciliationStrict  ReconciliationPolicy = "strict"
)

// Config is the set of replay knobs. The Engine reads ChildResolutionMode,
// SynthesizeMissing, SelfHealDynamicFields, Reconciliation,
// AutoSystemObjects, VMOnly and Compare. MaxDependencyDepth, SkipFramework,
// PrefetchDynamicFields, PrefetchDepth, PrefetchLimit and AllowFallback are
// decoded and defaulted but not read by the Engine; package resolution takes
// its depth limit and framework skip from EngineConfig.Resolver.
type Config struct {
	MaxDependencyDepth int                  `toml:"max_dependency_depth" yaml:"max_dependency_depth"`
	SkipFramework      bool                 `toml:"skip_framework" yaml:"skip_framework"`
	ChildResolutionMode string              `toml:"child_resolution_mode" yaml:"child_resolution_mode"` // "sandbox" | "replay"
	SynthesizeMissing  bool                 `toml:"synthesize_missing" yaml:"synthesize_missing"`
	SelfHealDynamicFields bool              `toml:"self_heal_dynamic_fields" yaml:"self_heal_dynamic_fields"`
	Reconciliation     ReconciliationPolicy `toml:"reconciliation" yaml:"reconciliation"`
	AutoSystemObjects  bool                 `toml:"auto_system_objects" yaml:"auto_system_objects"`
	PrefetchDynamicFields bool              `toml:"prefetch_dynamic_fields" yaml:"prefetch_dynamic_fields"`
	PrefetchDepth      int                  `toml:"prefetch_depth" yaml:"prefetch_depth"`
	PrefetchLimit      int                  `toml:"prefetch_limit" yaml:"prefetch_limit"`
	AllowFallback      bool                 `toml:"allow_fallback" yaml:"allow_fallback"`
	VMOnly             bool                 `toml:"vm_only" yaml:"vm_only"`
	Compare            bool                 `toml:"compare" yaml:"compare"`
}

// Default returns the stated production defaults.
func Default() Config {
	return Config{
		MaxDependencyDepth:  10,
		SkipFramework:       true,
		ChildResolutionMode: "replay",
		Reconciliation:      ReconciliationLenient,
		PrefetchLimit:       50,
		Compare:             true,
	}
}

// LoadTOML reads a Config from a TOML file, seeded with Default().
func LoadTOML(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: open %s", path)
	}
	defer f.Close()
	if err := decodeTOML(f, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, nil
}

// LoadYAML reads a Config from a YAML file, seeded with Default().
func LoadYAML(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: open %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, nil
}

func decodeTOML(r io.Reader, cfg *Config) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return toml.Unmarshal(raw, cfg)
}
