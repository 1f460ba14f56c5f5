package types

import (
	"github.com/c360/semflow/errors"
)

// Module is a loadable bundle of types. Types lists the names the module
// defines; Register installs them into a registry.
type Module struct {
	Name     string
	Types    []string
	Register func(r *Registry, override bool) error
}

// Install registers the module's types into r and verifies that every
// advertised name is present afterwards.
func (m *Module) Install(r *Registry, override bool) error {
	if m.Register == nil {
		return errors.WrapInvalid(errors.Detail(errors.ErrModuleKind, "types module %q has no Register", m.Name),
			"Module", "Install", "contract check")
	}
	if err := m.Register(r, override); err != nil {
		return errors.Wrap(err, "Module", "Install", "register "+m.Name)
	}
	for _, name := range m.Types {
		if _, ok := r.Lookup(name); !ok {
			return errors.WrapInvalid(errors.Detail(errors.ErrUnknownType, "module %q lists %q but did not register it", m.Name, name),
				"Module", "Install", "type list check")
		}
	}
	return nil
}
