// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the file form of the build options. The zero value matches the
// defaults of NewBuilder except ImbalanceWarn, where zero means
// DefaultImbalanceWarn.
//
//	unwritten_reads: reject        # or "undefined"
//	imbalance_warn: 4
//	imbalance_limit: 0             # 0 disables the hard limit
//	plan_cache_size: 64            # 0 recomputes every build
//	parallel:
//	  override: ""                 # yes | no | "" (unknown)
//	  measured: ""
//	  default_table: true
//	  vendors:
//	    "0x8086": yes
type Config struct {
	UnwrittenReads string         `json:"unwritten_reads,omitempty"`
	ImbalanceWarn  float64        `json:"imbalance_warn,omitempty"`
	ImbalanceLimit float64        `json:"imbalance_limit,omitempty"`
	PlanCacheSize  int            `json:"plan_cache_size,omitempty"`
	Parallel       ParallelConfig `json:"parallel"`
}

// ParallelConfig configures the capability policy.
type ParallelConfig struct {
	Override string `json:"override,omitempty"`
	Measured string `json:"measured,omitempty"`

	// DefaultTable enables DefaultVendorTable. Pointer so that an omitted
	// field (default on) differs from an explicit false.
	DefaultTable *bool `json:"default_table,omitempty"`

	// Vendors overrides table entries, keyed by PCI vendor ID ("0x10DE" or
	// decimal).
	Vendors map[string]string `json:"vendors,omitempty"`
}

// LoadConfig reads a YAML or JSON config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("framegraph: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("framegraph: %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML (or JSON, a subset of it). Unknown fields are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	j, err := yamlToJSON(data)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// yamlToJSON converts a YAML document to JSON so the strict JSON decoder
// can be used for both formats. An empty document becomes "{}".
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		return []byte("{}"), nil
	}
	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// Policy returns the capability policy described by the config.
func (c Config) Policy() (Policy, error) {
	var p Policy
	var err error
	if p.Override, err = ParseTristate(c.Parallel.Override); err != nil {
		return Policy{}, fmt.Errorf("parallel.override: %w", err)
	}
	if p.Measured, err = ParseTristate(c.Parallel.Measured); err != nil {
		return Policy{}, fmt.Errorf("parallel.measured: %w", err)
	}
	p.Table = VendorTable{}
	if c.Parallel.DefaultTable == nil || *c.Parallel.DefaultTable {
		p.Table = DefaultVendorTable()
	}
	for k, v := range c.Parallel.Vendors {
		id, err := ParseVendorID(k)
		if err != nil {
			return Policy{}, fmt.Errorf("parallel.vendors: %w", err)
		}
		t, err := ParseTristate(v)
		if err != nil {
			return Policy{}, fmt.Errorf("parallel.vendors[%s]: %w", k, err)
		}
		p.Table[id] = t
	}
	return p, nil
}

// ParseVendorID parses a PCI vendor ID written in decimal or, with a 0x
// prefix, in hexadecimal.
func ParseVendorID(s string) (uint32, error) {
	digits := strings.ToLower(strings.TrimSpace(s))
	base := 10
	if rest, ok := strings.CutPrefix(digits, "0x"); ok {
		digits, base = rest, 16
	}
	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid vendor id %q", s)
	}
	return uint32(v), nil
}

// BuildOptions converts the config into build options for dev. Each call
// with a non-zero PlanCacheSize creates a new PlanCache; convert once and
// reuse the options across frames.
func (c Config) BuildOptions(dev DeviceInfo) ([]BuildOption, error) {
	var opts []BuildOption
	switch c.UnwrittenReads {
	case "", "reject":
		opts = append(opts, WithUnwrittenReads(RejectUnwritten))
	case "undefined":
		opts = append(opts, WithUnwrittenReads(UndefinedUnwritten))
	default:
		return nil, fmt.Errorf("framegraph: unwritten_reads: invalid value %q", c.UnwrittenReads)
	}
	if c.ImbalanceWarn < 0 || c.ImbalanceLimit < 0 {
		return nil, fmt.Errorf("framegraph: imbalance thresholds must be >= 0")
	}
	if c.ImbalanceWarn > 0 {
		opts = append(opts, WithImbalanceWarn(c.ImbalanceWarn))
	}
	opts = append(opts, WithImbalanceLimit(c.ImbalanceLimit))
	p, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("framegraph: %w", err)
	}
	opts = append(opts, WithPolicy(p, dev))
	if c.PlanCacheSize > 0 {
		opts = append(opts, WithPlanCache(NewPlanCache(c.PlanCacheSize)))
	}
	return opts, nil
}
