// Package config implements YAML-file configuration load/save, in the
// yaml.Node round-trip style the teacher uses to preserve comments and
// structure across a rewrite.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ramses-go/ramses-go/frame"
)

// KnownDevice is one known_list entry: a declared device class, whether the
// host may fake messages from it, and a display alias.
type KnownDevice struct {
	Class string `yaml:"class"`
	Faked bool   `yaml:"faked,omitempty"`
	Alias string `yaml:"alias,omitempty"`
}

// RegexSet names substitution patterns applied to inbound/outbound frame
// text before parsing/after formatting, for carriers needing line massaging.
type RegexSet struct {
	Inbound  map[string]string `yaml:"inbound,omitempty"`
	Outbound map[string]string `yaml:"outbound,omitempty"`
}

// PacketLogConfig configures a replay source: either a bare file_name
// string, or the full object form with rotation settings.
type PacketLogConfig struct {
	FileName      string `yaml:"file_name"`
	RotateBackups int    `yaml:"rotate_backups,omitempty"`
	RotateBytes   int64  `yaml:"rotate_bytes,omitempty"`
}

// UnmarshalYAML accepts either a bare scalar file path or the full mapping
// form.
func (p *PacketLogConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.FileName = node.Value
		return nil
	}
	type plain PacketLogConfig
	var aux plain
	if err := node.Decode(&aux); err != nil {
		return err
	}
	*p = PacketLogConfig(aux)
	return nil
}

// ZoneSchema declares one heating zone of a controller: its class, its
// sensor device and its actuator devices.
type ZoneSchema struct {
	Class     string          `yaml:"class,omitempty"`
	Sensor    frame.Address   `yaml:"sensor,omitempty"`
	Actuators []frame.Address `yaml:"actuators,omitempty"`
}

// DhwSchema declares a controller's stored-hot-water zone.
type DhwSchema struct {
	Sensor        frame.Address `yaml:"sensor,omitempty"`
	HotwaterValve frame.Address `yaml:"hotwater_valve,omitempty"`
	HeatingValve  frame.Address `yaml:"heating_valve,omitempty"`
}

// SystemSchema declares the static topology of one TCS, keyed in
// Config.Schema by its controller id.
type SystemSchema struct {
	ApplianceControl frame.Address         `yaml:"appliance_control,omitempty"`
	Zones            map[string]ZoneSchema `yaml:"zones,omitempty"`
	StoredHotwater   *DhwSchema            `yaml:"stored_hotwater,omitempty"`
	UfhControllers   []frame.Address       `yaml:"ufh_controllers,omitempty"`
}

// Config is the gateway's complete configuration: exactly one wire source
// (port_name, packet_log or packet_dict), the known/block address lists,
// and the behavioural flags from the project specification's configuration
// table.
type Config struct {
	PortName string `yaml:"port_name,omitempty"`

	PacketLog  *PacketLogConfig  `yaml:"packet_log,omitempty"`
	PacketDict map[string]string `yaml:"packet_dict,omitempty"`

	KnownList map[frame.Address]KnownDevice `yaml:"known_list,omitempty"`
	BlockList []frame.Address               `yaml:"block_list,omitempty"`

	Schema map[frame.Address]SystemSchema `yaml:"schema,omitempty"`

	EnforceKnownList bool `yaml:"enforce_known_list,omitempty"`
	DisableSending   bool `yaml:"disable_sending,omitempty"`
	DisableDiscovery bool `yaml:"disable_discovery,omitempty"`
	DisableQos       bool `yaml:"disable_qos,omitempty"`
	EnableEavesdrop  bool `yaml:"enable_eavesdrop,omitempty"`

	MaxZones int `yaml:"max_zones,omitempty"`

	UseRegex  RegexSet `yaml:"use_regex,omitempty"`
	EvofwFlag string   `yaml:"evofw_flag,omitempty"`
}

const defaultMaxZones = 12

// Normalized returns a copy of c with defaults applied and implied flags
// set (disable_sending implies disable_discovery: nothing to discover if
// nothing can be requested).
func (c Config) Normalized() Config {
	out := c
	if out.MaxZones == 0 {
		out.MaxZones = defaultMaxZones
	}
	if out.DisableSending {
		out.DisableDiscovery = true
	}
	return out
}

// Validate checks the invariants Load can't express through struct tags
// alone: exactly one wire source must be configured.
func (c Config) Validate() error {
	sources := 0
	if c.PortName != "" {
		sources++
	}
	if c.PacketLog != nil {
		sources++
	}
	if c.PacketDict != nil {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("config: exactly one of port_name, packet_log, packet_dict must be set (got %d)", sources)
	}
	return nil
}

// Document is a loaded configuration file: the typed Config plus the raw
// yaml.Node tree, kept so Write can round-trip comments and key order the
// same way the teacher's config type does.
type Document struct {
	mu   sync.RWMutex
	node yaml.Node
	Config
}

// Load reads and decodes path into a Document, validating it.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	doc := &Document{}
	if err := yaml.Unmarshal(data, &doc.node); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &doc.Config); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	doc.Config = doc.Config.Normalized()

	if err := doc.Config.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write persists doc back to path, encoding the preserved yaml.Node tree
// via a temp-file-then-rename, the same pattern the teacher's config.write
// uses.
func (doc *Document) Write(path string) error {
	doc.mu.RLock()
	defer doc.mu.RUnlock()

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&doc.node); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Get returns a copy of the currently loaded Config.
func (doc *Document) Get() Config {
	doc.mu.RLock()
	defer doc.mu.RUnlock()
	return doc.Config
}
