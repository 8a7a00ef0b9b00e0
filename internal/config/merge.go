package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML keys that may appear in an overlay file.
const (
	keyLogging   = "logging"
	keyStore     = "store"
	keyExport    = "export"
	keyReader    = "reader"
	keyDiscovery = "discovery"
	keySink      = "sink"
)

// ShallowMergeYAML applies an overlay file on top of target. Each top-level section
// present in the overlay replaces the whole section in target; absent sections are
// left alone and unknown keys are ignored.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]yaml.Node
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	for key, node := range overlay {
		if err = decodeSection(target, key, &node); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// decodeSection decodes node into a zero value of the section type before assigning,
// so maps and unset fields from the base config do not leak through.
func decodeSection(target *Config, key string, node *yaml.Node) error {
	switch key {
	case keyLogging:
		var v LoggingConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Logging = v
	case keyStore:
		var v StoreConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Store = v
	case keyExport:
		var v ExporterConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Export = v
	case keyReader:
		var v ReaderConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Reader = v
	case keyDiscovery:
		var v DiscoveryConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Discovery = v
	case keySink:
		var v SinkConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Sink = v
	}
	return nil
}
