package heapbuilder

import (
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config enumerates the build-wide switches from spec.md §6
// ("Configuration (enumerated)"). It is loaded once, before construction of
// a NativeImageHeap, and never mutated afterward.
type Config struct {
	// UseHeapBase selects the compressed-reference encoding: true means
	// references are written as a shifted in-section offset; false means
	// every reference is emitted as a relocation record.
	UseHeapBase bool `yaml:"use_heap_base"`

	// SpawnIsolates requires UseHeapBase.
	SpawnIsolates bool `yaml:"spawn_isolates"`

	// CompressionShift is the right-shift applied to in-section offsets
	// before emission when UseHeapBase is set.
	CompressionShift uint `yaml:"compression_shift"`

	// WordBytes is the pointer width. The exercised setting is 8.
	WordBytes int `yaml:"word_bytes"`

	// PrintHeapHistogram and PrintPartitionSizes are diagnostics toggles.
	PrintHeapHistogram  bool `yaml:"print_heap_histogram"`
	PrintPartitionSizes bool `yaml:"print_partition_sizes"`

	// UseOnlyWritableBootImageHeap is the emergency flag that forces every
	// object into the writable-reference partition. Must be false whenever
	// SpawnIsolates is true.
	UseOnlyWritableBootImageHeap bool `yaml:"use_only_writable_boot_image_heap"`
}

// DefaultConfig returns the configuration for the exercised setting in
// spec.md: word_bytes == 8, heap base compression on, isolates off.
func DefaultConfig() Config {
	return Config{
		UseHeapBase:                  true,
		SpawnIsolates:                false,
		CompressionShift:             3,
		WordBytes:                    8,
		PrintHeapHistogram:           false,
		PrintPartitionSizes:          false,
		UseOnlyWritableBootImageHeap: false,
	}
}

// LoadConfig reads an optional YAML file at path and merges it over
// DefaultConfig(), mirroring the way lazydocker's config package layers a
// user YAML file over compiled-in defaults with mergo. A missing file is
// not an error: the defaults are returned unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, validateConfig(cfg)
		}
		return cfg, wrapf(err, "reading config file %q", path)
	}

	var fromFile Config
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return cfg, wrapf(err, "parsing config file %q", path)
	}

	// Deliberately not WithOverwriteWithEmptyValue: that would make every
	// field omitted from the YAML file (not just ones explicitly set to
	// false/0) reset to its zero value instead of keeping its default,
	// since mergo cannot distinguish "absent" from "explicitly zero" once
	// yaml.Unmarshal has produced fromFile. See DESIGN.md for the
	// consequence (a YAML file cannot turn a default-true bool off) and
	// why lazydocker's own mergo.Merge call sites accept the same
	// limitation rather than work around it.
	if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
		return cfg, wrapf(err, "merging config file %q over defaults", path)
	}

	return cfg, validateConfig(cfg)
}

// validateConfig enforces the cross-field constraints spec.md §6 calls out:
// spawn_isolates requires use_heap_base, and the emergency writable-only
// flag must never be combined with isolates.
func validateConfig(cfg Config) error {
	if cfg.SpawnIsolates && !cfg.UseHeapBase {
		return newConfigError("spawn_isolates requires use_heap_base")
	}
	if cfg.SpawnIsolates && cfg.UseOnlyWritableBootImageHeap {
		return newConfigError("use_only_writable_boot_image_heap must be disabled when spawn_isolates is on")
	}
	if cfg.WordBytes <= 0 {
		return newConfigError("word_bytes must be positive")
	}
	return nil
}
