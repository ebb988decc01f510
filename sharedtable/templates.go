package sharedtable

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/dynashard/dynashard/metadata"
)

// StaticTemplateFactory serves virtual tables from a fixed list of physical
// templates: the first template whose key schema (and index inventory) can
// accommodate the virtual table wins. A single-template factory is the common
// shape, with every virtual table multiplexed onto one shared table.
type StaticTemplateFactory struct {
	Templates []metadata.TableDescription
}

func (f *StaticTemplateFactory) CreateTableRequest(virtual metadata.TableDescription) (*metadata.TableDescription, error) {
	for i := range f.Templates {
		if templateCompatible(virtual, f.Templates[i]) {
			tmpl := f.Templates[i]
			return &tmpl, nil
		}
	}
	return nil, nil
}

func (f *StaticTemplateFactory) PrecreateTables() []metadata.TableDescription {
	return f.Templates
}

// templateCompatible reports whether every key schema of the virtual table
// can be laid over the template: the table key, each GSI onto some compatible
// template GSI, and each LSI onto its own compatible template LSI.
func templateCompatible(virtual, tmpl metadata.TableDescription) bool {
	if tmpl.Key.HashKeyType != metadata.KeyTypeS {
		return false
	}
	if compatibleKeys(virtual.Key, tmpl.Key) != nil {
		return false
	}
	for _, gsi := range virtual.GSIs() {
		found := false
		for _, candidate := range tmpl.GSIs() {
			if compatibleKeys(gsi.Key, candidate.Key) == nil {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// LSIs claim physical LSIs exclusively; assign greedily in declaration
	// order, mirroring the by-type index mapper.
	used := make(map[string]bool)
	for _, lsi := range virtual.LSIs() {
		found := false
		for _, candidate := range tmpl.LSIs() {
			if used[candidate.Name] {
				continue
			}
			if compatibleKeys(lsi.Key, candidate.Key) == nil {
				used[candidate.Name] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// templateConfig is the YAML document shape for physical table templates.
type templateConfig struct {
	Tables []metadata.TableDescription `yaml:"tables"`
}

// NewYAMLTemplateFactory reads physical table templates from a YAML document:
//
//	tables:
//	  - name: shared_data
//	    key:
//	      hashKey: hk
//	      hashKeyType: S
//	      rangeKey: rk
//	      rangeKeyType: S
//	    indexes:
//	      - name: gsi_1
//	        kind: GSI
//	        key: {hashKey: gsi_hk, hashKeyType: S}
func NewYAMLTemplateFactory(r io.Reader) (*StaticTemplateFactory, error) {
	var cfg templateConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode template config: %w", err)
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("template config declares no tables")
	}
	for _, tmpl := range cfg.Tables {
		if tmpl.Name == "" {
			return nil, fmt.Errorf("template config declares a table with no name")
		}
		if tmpl.Key.HashKey == "" {
			return nil, fmt.Errorf("template table %s has no hash key", tmpl.Name)
		}
	}
	return &StaticTemplateFactory{Templates: cfg.Tables}, nil
}
