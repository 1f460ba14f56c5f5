package loader

import (
	"encoding/json"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

// Kind selects the manifest section a name is resolved in
type Kind string

// Module kinds
const (
	KindProcesses Kind = "processes"
	KindTypes     Kind = "types"
)

// Library points at a nested manifest. Dir is relative to the directory of
// the manifest that lists it.
type Library struct {
	Name string `json:"name" yaml:"name"`
	Dir  string `json:"dir" yaml:"dir"`
}

// ModuleRef names a loadable module and where its source lives
type ModuleRef struct {
	Name string `json:"name" yaml:"name"`
	Src  string `json:"src" yaml:"src"`
}

// Section is one kind's part of a manifest
type Section struct {
	Libraries []Library   `json:"libraries,omitempty" yaml:"libraries,omitempty"`
	Modules   []ModuleRef `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// Library returns the library entry called name
func (s Section) Library(name string) (Library, bool) {
	for _, lib := range s.Libraries {
		if lib.Name == name {
			return lib, true
		}
	}
	return Library{}, false
}

// Module returns the module entry called name
func (s Section) Module(name string) (ModuleRef, bool) {
	for _, mod := range s.Modules {
		if mod.Name == name {
			return mod, true
		}
	}
	return ModuleRef{}, false
}

// Manifest describes one library directory
type Manifest struct {
	Processes Section `json:"processes" yaml:"processes"`
	Types     Section `json:"types" yaml:"types"`
}

// Section returns the part of m for kind
func (m *Manifest) Section(kind Kind) Section {
	if kind == KindTypes {
		return m.Types
	}
	return m.Processes
}

// ParseManifest decodes a manifest. YAML is accepted for names ending in
// .yaml or .yml, JSON otherwise.
func ParseManifest(name string, data []byte) (*Manifest, error) {
	var m Manifest
	var err error
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownLibrary, "manifest %s: %v", name, err),
			"Manifest", "ParseManifest", "decode")
	}
	return &m, nil
}

// Module is a resolved module. Exactly one of Handler or Types is set,
// matching Kind.
type Module struct {
	Kind    Kind
	Handler *flow.Handler
	Types   *types.Module
}
